package config

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

const (
	defaultHTTPAddr       = ":8080"
	defaultDatabaseURL    = "bookvault.db"
	defaultJWTSecret      = "change-me-jwt-secret"
	defaultJWTTTL         = "24h"
	defaultStorageDir     = "./data/assets"
	defaultCacheDir       = "./data/blobcache"
	defaultBlobDir        = "./data/blobs"
	defaultCacheCapacity  = "100"
	defaultMaxFileSize    = "26214400"  // 25 MiB
	defaultMaxCoverSize   = "5242880"   // 5 MiB
	defaultMaxAudioSize   = "52428800"  // 50 MiB
	defaultMaxUploadBody  = "268435456" // 256 MiB
	defaultPreviewWorkers = "2"
	defaultRequestTimeout = "60s"
	defaultS3Region       = "us-east-1"

	contentKeySize = 32
	devKeySalt     = "bookvault/dev-content-key"
	devKeyInfo     = "content-encryption"
)

const (
	BlobBackendNone = ""
	BlobBackendDir  = "dir"
	BlobBackendS3   = "s3"
)

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type Config struct {
	AppEnv      string
	HTTPAddr    string
	DatabaseURL string

	JWTSecret     string
	JWTTTL        time.Duration
	InternalToken string

	// EncryptionKey is the 32-byte content key. KeyDerived is set when it was
	// derived from JWT_SECRET because CONTENT_ENCRYPTION_KEY was empty.
	EncryptionKey []byte
	KeyDerived    bool

	StorageDir    string
	CacheDir      string
	CacheCapacity int

	MaxFileSize   int64
	MaxCoverSize  int64
	MaxAudioSize  int64
	MaxUploadBody int64

	PreviewWorkers    int
	AllowQuerySubject bool

	BlobBackend string
	BlobDir     string
	S3          S3Config

	CORSAllowedOrigins []string
	RequestTimeout     time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.InternalToken = strings.TrimSpace(os.Getenv("INTERNAL_TOKEN"))
	cfg.StorageDir = strings.TrimSpace(getEnv("STORAGE_DIR", defaultStorageDir))
	cfg.CacheDir = strings.TrimSpace(getEnv("CACHE_DIR", defaultCacheDir))
	cfg.BlobBackend = strings.ToLower(strings.TrimSpace(os.Getenv("BLOB_BACKEND")))
	cfg.BlobDir = strings.TrimSpace(getEnv("BLOB_DIR", defaultBlobDir))
	cfg.S3 = S3Config{
		Bucket:    strings.TrimSpace(os.Getenv("S3_BUCKET")),
		Region:    strings.TrimSpace(getEnv("S3_REGION", defaultS3Region)),
		Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		AccessKey: strings.TrimSpace(os.Getenv("S3_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("S3_SECRET_KEY")),
	}
	cfg.CORSAllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	defaultAllowQuery := "true"
	if isProdLike(cfg.AppEnv) {
		defaultAllowQuery = "false"
	}
	cfg.AllowQuerySubject = parseBoolEnv("ALLOW_QUERY_SUBJECT", defaultAllowQuery)

	var err error
	if cfg.JWTTTL, err = parseDurationEnv("JWT_TTL", defaultJWTTTL); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = parseDurationEnv("REQUEST_TIMEOUT", defaultRequestTimeout); err != nil {
		return nil, err
	}
	if cfg.CacheCapacity, err = parseIntEnv("CACHE_CAPACITY", defaultCacheCapacity); err != nil {
		return nil, err
	}
	if cfg.PreviewWorkers, err = parseIntEnv("PREVIEW_WORKERS", defaultPreviewWorkers); err != nil {
		return nil, err
	}
	if cfg.MaxFileSize, err = parseSizeEnv("MAX_FILE_SIZE", defaultMaxFileSize); err != nil {
		return nil, err
	}
	if cfg.MaxCoverSize, err = parseSizeEnv("MAX_COVER_SIZE", defaultMaxCoverSize); err != nil {
		return nil, err
	}
	if cfg.MaxAudioSize, err = parseSizeEnv("MAX_AUDIO_SIZE", defaultMaxAudioSize); err != nil {
		return nil, err
	}
	if cfg.MaxUploadBody, err = parseSizeEnv("MAX_UPLOAD_BODY", defaultMaxUploadBody); err != nil {
		return nil, err
	}

	if raw := strings.TrimSpace(os.Getenv("CONTENT_ENCRYPTION_KEY")); raw != "" {
		if cfg.EncryptionKey, err = ParseKey(raw); err != nil {
			return nil, err
		}
	} else if !isProdLike(cfg.AppEnv) {
		if cfg.EncryptionKey, err = deriveDevKey(cfg.JWTSecret); err != nil {
			return nil, err
		}
		cfg.KeyDerived = true
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return isProdLike(c.AppEnv)
}

func validateConfig(cfg *Config) error {
	if cfg.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be > 0")
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if cfg.CacheCapacity <= 0 {
		return fmt.Errorf("CACHE_CAPACITY must be > 0")
	}
	if cfg.PreviewWorkers <= 0 {
		return fmt.Errorf("PREVIEW_WORKERS must be > 0")
	}
	if cfg.MaxUploadBody < cfg.MaxFileSize {
		return fmt.Errorf("MAX_UPLOAD_BODY must be >= MAX_FILE_SIZE")
	}
	if cfg.StorageDir == "" || cfg.CacheDir == "" {
		return fmt.Errorf("STORAGE_DIR and CACHE_DIR must not be empty")
	}
	switch cfg.BlobBackend {
	case BlobBackendNone, BlobBackendDir:
	case BlobBackendS3:
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_BACKEND=s3")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be one of: dir, s3")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if len(cfg.EncryptionKey) != contentKeySize {
			return fmt.Errorf("in prod/release CONTENT_ENCRYPTION_KEY must be set")
		}
	}
	return nil
}

// ParseKey accepts a 32-byte key as base64 or as 64 hex characters.
func ParseKey(raw string) ([]byte, error) {
	if len(raw) == 2*contentKeySize {
		if key, err := hex.DecodeString(raw); err == nil {
			return key, nil
		}
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid CONTENT_ENCRYPTION_KEY: not base64 or hex")
	}
	if len(key) != contentKeySize {
		return nil, fmt.Errorf("invalid CONTENT_ENCRYPTION_KEY: want %d bytes, got %d", contentKeySize, len(key))
	}
	return key, nil
}

func deriveDevKey(secret string) ([]byte, error) {
	key := make([]byte, contentKeySize)
	r := hkdf.New(sha256.New, []byte(secret), []byte(devKeySalt), []byte(devKeyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive content key: %w", err)
	}
	return key, nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseSizeEnv(name, fallback string) (int64, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be a positive byte count", name, value)
	}
	return n, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
