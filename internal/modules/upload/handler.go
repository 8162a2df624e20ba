package upload

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bookvault/internal/middleware"
	"bookvault/internal/multipart"
	"bookvault/internal/pkg/response"
)

const DefaultMaxBody = 256 << 20

// Handler accepts multipart uploads of books and proposals.
type Handler struct {
	service *Service
	maxBody int64
	log     *zap.Logger
}

func NewHandler(service *Service, maxBody int64, log *zap.Logger) *Handler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, maxBody: maxBody, log: log}
}

// RegisterRoutes expects middleware.Subject to run first.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/admin/books", middleware.AdminOnly(), h.CreateBook)
	rg.POST("/proposals", middleware.RequireSubject(), h.CreateProposal)
}

// CreateBook godoc
// @Summary Upload a book
// @Tags Admin
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param title formData string true "Title"
// @Param price formData integer false "Price in minor units"
// @Param file formData file true "Book file"
// @Param cover formData file false "Cover image"
// @Success 201 {object} map[string]interface{}
// @Failure 400,401,403,500 {object} map[string]interface{}
// @Router /admin/books [post]
func (h *Handler) CreateBook(c *gin.Context) {
	form, ok := h.readForm(c)
	if !ok {
		return
	}
	res, err := h.service.CreateBook(c.Request.Context(), form)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

// CreateProposal godoc
// @Summary Submit a book proposal
// @Tags Proposals
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Success 201 {object} map[string]interface{}
// @Failure 400,401,403,500 {object} map[string]interface{}
// @Router /proposals [post]
func (h *Handler) CreateProposal(c *gin.Context) {
	subject, _ := middleware.SubjectFrom(c)

	form, ok := h.readForm(c)
	if !ok {
		return
	}
	res, err := h.service.CreateProposal(c.Request.Context(), subject, form)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

// readForm reads the whole body under the size cap and decodes it strictly.
func (h *Handler) readForm(c *gin.Context) (*multipart.Form, bool) {
	boundary, err := multipart.BoundaryFromContentType(c.GetHeader("Content-Type"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeMalformedUpload, "Content-Type must be multipart/form-data with a boundary")
		return nil, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, "Request body is too large")
			return nil, false
		}
		response.Error(c, http.StatusBadRequest, response.CodeMalformedUpload, "Failed to read request body")
		return nil, false
	}

	form, err := multipart.DecodeStrict(body, boundary)
	if err != nil {
		h.log.Debug("rejected malformed upload", zap.Error(err))
		response.Error(c, http.StatusBadRequest, response.CodeMalformedUpload, "Malformed multipart body")
		return nil, false
	}
	return form, true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		response.ErrorWithDetails(c, http.StatusBadRequest, response.CodeValidation, "Invalid upload", verr.Fields)
	case errors.Is(err, ErrFileTooLarge):
		response.ErrorWithDetails(c, http.StatusBadRequest, response.CodeFileTooLarge, "File exceeds maximum allowed size", partDetails(err))
	case errors.Is(err, ErrEmptyFile), errors.Is(err, ErrInvalidMimeType):
		response.ErrorWithDetails(c, http.StatusBadRequest, response.CodeValidation, err.Error(), partDetails(err))
	case errors.Is(err, ErrUnauthenticated):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "Authentication required")
	case errors.Is(err, ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "Only members can submit proposals")
	default:
		h.log.Error("upload failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, response.CodeStorage, "Upload failed")
	}
}

func partDetails(err error) gin.H {
	var perr *PartError
	if errors.As(err, &perr) {
		return gin.H{"part": perr.Part}
	}
	return nil
}
