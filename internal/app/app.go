// Package app assembles the HTTP service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"bookvault/internal/blobcache"
	"bookvault/internal/blobstore"
	"bookvault/internal/config"
	"bookvault/internal/database"
	"bookvault/internal/envelope"
	"bookvault/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Deps are the constructed components the router is built from. Cache and
// Blobs are nil when no remote blob store is configured.
type Deps struct {
	Config *config.Config
	DB     *gorm.DB
	Crypto *envelope.Service
	Local  *storage.Local
	Cache  *blobcache.Cache
	Blobs  blobstore.Store
	Log    *zap.Logger
}

type App struct {
	deps   Deps
	server *http.Server
	log    *zap.Logger
}

// Build opens the database, migrates it and constructs every component.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	log.Info("database is initialized")

	crypto, err := envelope.New(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("init envelope: %w", err)
	}
	if cfg.KeyDerived {
		log.Warn("CONTENT_ENCRYPTION_KEY is not set, using a key derived from JWT_SECRET")
	}

	local, err := storage.NewLocal(cfg.StorageDir)
	if err != nil {
		return nil, err
	}

	deps := Deps{Config: cfg, DB: db, Crypto: crypto, Local: local, Log: log}

	blobs, err := openBlobStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if blobs != nil {
		cache, err := blobcache.New(blobs, blobcache.Options{
			Capacity: cfg.CacheCapacity,
			Dir:      cfg.CacheDir,
			Logger:   log.Named("blobcache"),
		})
		if err != nil {
			return nil, fmt.Errorf("init blob cache: %w", err)
		}
		deps.Blobs = blobs
		deps.Cache = cache
		log.Info("blob cache is initialized", zap.String("backend", cfg.BlobBackend), zap.String("dir", cfg.CacheDir))
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return &App{deps: deps, server: server, log: log}, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendDir:
		dir, err := blobstore.NewDir(cfg.BlobDir)
		if err != nil {
			return nil, err
		}
		return dir, nil
	case config.BlobBackendS3:
		s3, err := blobstore.NewS3(ctx, blobstore.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		}, log.Named("s3"))
		if err != nil {
			return nil, fmt.Errorf("init s3: %w", err)
		}
		return s3, nil
	}
	return nil, nil
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server started", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(stopCtx); err != nil {
		a.log.Warn("forced to shutdown", zap.Error(err))
	}
	a.Close()
	return nil
}

func (a *App) Close() {
	sqlDB, err := a.deps.DB.DB()
	if err == nil {
		_ = sqlDB.Close()
	}
}
