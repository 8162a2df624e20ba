package access

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bookvault/internal/middleware"
	"bookvault/internal/pkg/response"
	"bookvault/internal/pkg/validator"
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

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	admin := rg.Group("/admin", middleware.AdminOnly())
	{
		admin.POST("/purchases", h.GrantPurchase)
		admin.POST("/memberships", h.GrantMembership)
		admin.DELETE("/memberships/:telegramId", h.RevokeMembership)
	}
}

// GrantPurchase godoc
// @Summary Record a purchase
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body GrantPurchaseRequest true "Purchase"
// @Success 200,201 {object} map[string]interface{}
// @Failure 400,404 {object} map[string]interface{}
// @Router /admin/purchases [post]
func (h *Handler) GrantPurchase(c *gin.Context) {
	var req GrantPurchaseRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.GrantPurchase(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, grantStatus(resp.Created), resp)
}

func (h *Handler) GrantMembership(c *gin.Context) {
	var req GrantMembershipRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.service.GrantMembership(c.Request.Context(), req.TelegramID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, grantStatus(resp.Created), resp)
}

func (h *Handler) RevokeMembership(c *gin.Context) {
	telegramID, err := strconv.ParseInt(c.Param("telegramId"), 10, 64)
	if err != nil || telegramID <= 0 {
		response.Error(c, http.StatusBadRequest, response.CodeValidation, "telegramId must be a positive integer")
		return
	}

	resp, err := h.service.RevokeMembership(c.Request.Context(), telegramID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp)
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeValidation, "Invalid request body")
		return false
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, response.CodeValidation, "Invalid request", errs)
		return false
	}
	return true
}

func grantStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		response.Error(c, http.StatusBadRequest, response.CodeValidation, "Invalid request")
	case errors.Is(err, ErrBookNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "Book not found")
	default:
		h.log.Error("grant failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, response.CodeInternal, "Failed to record grant")
	}
}
