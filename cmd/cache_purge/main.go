package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"bookvault/internal/blobcache"
	"bookvault/internal/blobstore"
	"bookvault/internal/config"
	"bookvault/internal/pkg/logger"
)

// Drops remembered misses from the cover cache so the next lookup asks the
// remote store again. Safe to run while the api is serving.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zlog, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	var store blobcache.Store
	switch cfg.BlobBackend {
	case config.BlobBackendDir:
		store, err = blobstore.NewDir(cfg.BlobDir)
	case config.BlobBackendS3:
		store, err = blobstore.NewS3(context.Background(), blobstore.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		}, zlog.Named("s3"))
	default:
		zlog.Fatal("BLOB_BACKEND is not configured, nothing to purge")
	}
	if err != nil {
		zlog.Fatal("open blob store", zap.Error(err))
	}

	cache, err := blobcache.New(store, blobcache.Options{
		Capacity: cfg.CacheCapacity,
		Dir:      cfg.CacheDir,
		Logger:   zlog.Named("blobcache"),
	})
	if err != nil {
		zlog.Fatal("open blob cache", zap.Error(err))
	}

	removed, err := cache.PurgeMisses()
	if err != nil {
		zlog.Fatal("purge misses failed", zap.Error(err))
	}
	stats, err := cache.Stats()
	if err != nil {
		zlog.Fatal("read cache stats", zap.Error(err))
	}
	zlog.Info("cache purge completed",
		zap.Int("removed", removed),
		zap.Int("disk_hits", stats.DiskHits),
		zap.Int("disk_misses", stats.DiskMisses),
	)
}
