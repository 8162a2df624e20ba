package catalog

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bookvault/internal/blobcache"
	"bookvault/internal/middleware"
	"bookvault/internal/pkg/response"
	"bookvault/internal/pkg/validator"
)

const defaultMaxBlob = 5 << 20

type Handler struct {
	service *Service
	maxBlob int64
	log     *zap.Logger
}

func NewHandler(service *Service, maxBlob int64, log *zap.Logger) *Handler {
	if maxBlob <= 0 {
		maxBlob = defaultMaxBlob
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, maxBlob: maxBlob, log: log}
}

// RegisterRoutes expects middleware.Subject to run first.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/books/:id", h.GetBook)
	rg.GET("/proposals/:id", middleware.RequireSubject(), h.GetProposal)
	rg.POST("/covers/resolve", h.ResolveCovers)
	rg.PUT("/admin/blobs/*key", middleware.AdminOnly(), h.PutBlob)
}

// RegisterInternalRoutes exposes cache maintenance to internal callers.
func (h *Handler) RegisterInternalRoutes(rg *gin.RouterGroup, token string) {
	internal := rg.Group("/internal/blobcache", middleware.InternalTokenAuth(token, h.log))
	{
		internal.GET("/stats", h.CacheStats)
		internal.POST("/purge-misses", h.PurgeMisses)
	}
}

// GetBook godoc
// @Summary Book card
// @Tags Catalog
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /books/{id} [get]
func (h *Handler) GetBook(c *gin.Context) {
	card, err := h.service.BookCard(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, card)
}

func (h *Handler) GetProposal(c *gin.Context) {
	subject, _ := middleware.SubjectFrom(c)
	card, err := h.service.ProposalCard(c.Request.Context(), c.Param("id"), subject)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, card)
}

// ResolveCovers godoc
// @Summary Resolve cover blobs to data URLs
// @Tags Catalog
// @Accept json
// @Produce json
// @Param request body ResolveRequest true "Blob ids"
// @Success 200 {object} map[string]interface{}
// @Failure 400,502 {object} map[string]interface{}
// @Router /covers/resolve [post]
func (h *Handler) ResolveCovers(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeValidation, "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, response.CodeValidation, "Invalid request", errs)
		return
	}

	out, err := h.service.ResolveCovers(c.Request.Context(), req.IDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

func (h *Handler) PutBlob(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBlob))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, "Blob is too large")
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeMalformedUpload, "Failed to read request body")
		return
	}
	if len(data) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeValidation, "Blob is empty")
		return
	}

	resp, err := h.service.PutBlob(c.Request.Context(), key, data, c.ContentType())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, resp)
}

func (h *Handler) CacheStats(c *gin.Context) {
	stats, err := h.service.CacheStats()
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

func (h *Handler) PurgeMisses(c *gin.Context) {
	resp, err := h.service.PurgeMisses()
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "Item not found")
	case errors.Is(err, ErrUnauthenticated):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "Authentication required")
	case errors.Is(err, ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "Proposals are visible to members only")
	case errors.Is(err, ErrTooManyIDs), errors.Is(err, ErrInvalidKey):
		response.Error(c, http.StatusBadRequest, response.CodeValidation, err.Error())
	case errors.Is(err, ErrBlobStoreMissing):
		response.Error(c, http.StatusServiceUnavailable, response.CodeUpstream, "Remote blob store is not configured")
	case errors.Is(err, blobcache.ErrUpstream):
		h.log.Warn("blob store unavailable", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.Error(c, http.StatusBadGateway, response.CodeUpstream, "Blob store unavailable")
	default:
		h.log.Error("catalog request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, "Internal error")
	}
}
