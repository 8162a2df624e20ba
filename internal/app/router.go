package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bookvault/internal/domain/content"
	"bookvault/internal/middleware"
	"bookvault/internal/modules/access"
	"bookvault/internal/modules/catalog"
	"bookvault/internal/modules/delivery"
	"bookvault/internal/modules/upload"
	"bookvault/internal/pkg/jwt"
	"bookvault/internal/pkg/response"
	"bookvault/internal/preview"
	"bookvault/internal/storage"
)

// NewRouter wires repositories, services and handlers onto a gin engine.
func NewRouter(d Deps) *gin.Engine {
	cfg, log := d.Config, d.Log
	if log == nil {
		log = zap.NewNop()
	}

	repo := content.NewRepository(d.DB)
	jwtService := jwt.New(cfg.JWTSecret, cfg.JWTTTL)

	// typed nils must not leak into the interfaces below
	var (
		resolver     storage.BlobResolver
		uploadCache  upload.BlobCache
		catalogCache catalog.BlobCache
	)
	if d.Cache != nil {
		resolver, uploadCache, catalogCache = d.Cache, d.Cache, d.Cache
	}

	deliveryService := delivery.NewService(
		repo,
		storage.NewRouter(d.Local, resolver),
		d.Crypto,
		preview.New(cfg.PreviewWorkers, log.Named("preview")),
		log.Named("delivery"),
	)
	uploadService := upload.NewService(repo, d.Local, d.Crypto, upload.Options{
		Blobs: d.Blobs,
		Cache: uploadCache,
		Limits: upload.Limits{
			MaxFile:  cfg.MaxFileSize,
			MaxCover: cfg.MaxCoverSize,
			MaxAudio: cfg.MaxAudioSize,
		},
		Logger: log.Named("upload"),
	})
	accessService := access.NewService(repo, log.Named("access"))
	catalogService := catalog.NewService(repo, catalogCache, d.Blobs, log.Named("catalog"))

	deliveryHandler := delivery.NewHandler(deliveryService, log.Named("delivery"))
	uploadHandler := upload.NewHandler(uploadService, cfg.MaxUploadBody, log.Named("upload"))
	accessHandler := access.NewHandler(accessService, log.Named("access"))
	catalogHandler := catalog.NewHandler(catalogService, cfg.MaxCoverSize, log.Named("catalog"))

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.RequestLogger(log),
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	r.GET("/healthz", func(c *gin.Context) {
		response.Success(c, http.StatusOK, "ok")
	})
	r.GET("/readyz", readiness(d, log))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Subject(middleware.SubjectOptions{
		JWT:           jwtService,
		InternalToken: cfg.InternalToken,
		AllowQuery:    cfg.AllowQuerySubject,
	}))
	{
		deliveryHandler.RegisterRoutes(v1)
		uploadHandler.RegisterRoutes(v1)
		accessHandler.RegisterRoutes(v1)
		catalogHandler.RegisterRoutes(v1)
		catalogHandler.RegisterInternalRoutes(v1, cfg.InternalToken)
	}

	return r
}

func readiness(d Deps, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			log.Warn("readiness: database ping failed", zap.Error(err))
			response.Error(c, http.StatusServiceUnavailable, response.CodeStorage, "Database unavailable")
			return
		}
		response.Success(c, http.StatusOK, "ready")
	}
}
