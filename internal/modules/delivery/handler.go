package delivery

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bookvault/internal/domain/content"
	"bookvault/internal/middleware"
	"bookvault/internal/pkg/response"
)

type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(service *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, log: log}
}

// RegisterRoutes expects middleware.Subject to run first.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/books/:id/files/:kind", h.BookFile)
	rg.GET("/proposals/:id/files/:kind", h.ProposalFile)
	rg.GET("/assets/:assetId", h.Asset)
	rg.GET("/books/:id/preview/:kind", h.BookPreview)
	rg.GET("/proposals/:id/preview/:kind", h.ProposalPreview)
	rg.GET("/me/books/:id/access", middleware.RequireSubject(), h.BookAccess)
}

func (h *Handler) BookFile(c *gin.Context) {
	h.serve(c, h.itemRequest(c, content.OwnerBook), false)
}

func (h *Handler) ProposalFile(c *gin.Context) {
	h.serve(c, h.itemRequest(c, content.OwnerProposal), false)
}

func (h *Handler) Asset(c *gin.Context) {
	subject, _ := middleware.SubjectFrom(c)
	h.serve(c, Request{AssetID: c.Param("assetId"), Subject: subject}, false)
}

func (h *Handler) BookPreview(c *gin.Context) {
	h.serve(c, h.itemRequest(c, content.OwnerBook), true)
}

func (h *Handler) ProposalPreview(c *gin.Context) {
	h.serve(c, h.itemRequest(c, content.OwnerProposal), true)
}

func (h *Handler) BookAccess(c *gin.Context) {
	subject, _ := middleware.SubjectFrom(c)
	resp, err := h.service.HasBookAccess(c.Request.Context(), c.Param("id"), subject)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp)
}

func (h *Handler) itemRequest(c *gin.Context, owner content.OwnerKind) Request {
	subject, _ := middleware.SubjectFrom(c)
	return Request{
		Owner:   owner,
		ItemID:  c.Param("id"),
		Kind:    content.AssetKind(c.Param("kind")),
		TrackID: c.Query("track"),
		Subject: subject,
	}
}

func (h *Handler) serve(c *gin.Context, req Request, preview bool) {
	ctx := c.Request.Context()

	var (
		dl  *Download
		err error
	)
	if preview {
		dl, err = h.service.Preview(ctx, req)
	} else {
		dl, err = h.service.Open(ctx, req)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer dl.Body.Close()

	disposition := "attachment"
	if dl.Inline {
		disposition = "inline"
	}
	header := c.Writer.Header()
	header.Set("Content-Type", dl.ContentType)
	header.Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	header.Set("Content-Disposition", ContentDisposition(disposition, dl.FileName))
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Cache-Control", "private, no-store")
	c.Status(http.StatusOK)

	n, err := io.Copy(c.Writer, dl.Body)
	if err == nil {
		return
	}

	if !c.Writer.Written() {
		// nothing reached the client yet, so a proper error can still be sent
		for _, k := range []string{"Content-Type", "Content-Length", "Content-Disposition", "Cache-Control"} {
			header.Del(k)
		}
		h.writeError(c, err)
		return
	}

	fields := []zap.Field{
		zap.String("asset_id", dl.AssetID),
		zap.Int64("written", n),
		zap.Int64("size", dl.Size),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, ErrIntegrity):
		h.log.Error("asset failed authentication mid-stream", fields...)
	case errors.Is(ctx.Err(), context.Canceled):
		h.log.Debug("client went away during download", fields...)
	default:
		h.log.Warn("download interrupted", fields...)
	}
	c.Abort()
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "Asset not found")
	case errors.Is(err, ErrNoPreview):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "Preview not available for this asset")
	case errors.Is(err, ErrInvalidKind):
		response.Error(c, http.StatusBadRequest, response.CodeValidation, "Unknown asset kind")
	case errors.Is(err, ErrUnauthenticated):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "Authentication required")
	case errors.Is(err, ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "Access to this item has not been granted")
	case errors.Is(err, ErrMissingEnvelope), errors.Is(err, ErrIntegrity):
		h.log.Error("refusing to serve asset", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, response.CodeIntegrity, "Asset could not be decrypted")
	case errors.Is(err, ErrStorageUnavailable):
		h.log.Error("asset storage failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, response.CodeStorage, "Asset storage unavailable")
	case errors.Is(err, context.Canceled):
		c.Abort()
	default:
		h.log.Error("delivery failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, "Failed to deliver asset")
	}
}
