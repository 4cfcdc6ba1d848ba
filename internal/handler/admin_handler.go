package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cragline/service-booking/internal/application"
	"github.com/cragline/service-booking/internal/domain/access"
	"github.com/cragline/service-booking/internal/platform/auth"
	"github.com/cragline/service-booking/internal/platform/middleware"
	"github.com/cragline/service-booking/internal/platform/response"
)

// AdminBookingHandler handles staff HTTP requests for booking management.
type AdminBookingHandler struct {
	service *application.BookingService
}

// NewAdminBookingHandler creates a new AdminBookingHandler.
func NewAdminBookingHandler(service *application.BookingService) *AdminBookingHandler {
	return &AdminBookingHandler{service: service}
}

// RegisterRoutes registers admin booking routes.
func (h *AdminBookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	staffRole := middleware.RequireRole(access.RoleAdmin.String(), access.RoleCoach.String())

	admin := r.Group("/api/v1/admin")
	admin.Use(authMW, staffRole)
	{
		admin.GET("/bookings", h.ListBookings)
		admin.GET("/stats/bookings", h.BookingStats)
		admin.GET("/sessions/:id/capacity-check", h.CapacityCheck)
		admin.POST("/sessions/:id/reconcile", h.Reconcile)
	}
}

// ListBookings handles GET /api/v1/admin/bookings.
func (h *AdminBookingHandler) ListBookings(c *gin.Context) {
	filter, ok := parseListFilter(c)
	if !ok {
		return
	}
	page, limit := parsePagination(c)

	bookings, total, err := h.service.ListAllBookings(c.Request.Context(), filter, page, limit)
	if err != nil {
		renderError(c, err)
		return
	}

	response.Paginated(c, bookings, total, page, limit)
}

// BookingStats handles GET /api/v1/admin/stats/bookings.
func (h *AdminBookingHandler) BookingStats(c *gin.Context) {
	stats, err := h.service.GetBookingStats(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}

	response.Success(c, stats)
}

// CapacityCheck handles GET /api/v1/admin/sessions/:id/capacity-check?capacity=N.
func (h *AdminBookingHandler) CapacityCheck(c *gin.Context) {
	sessionID, ok := parseID(c, "id")
	if !ok {
		return
	}
	capacity, err := strconv.Atoi(c.Query("capacity"))
	if err != nil {
		response.BadRequest(c, "capacity must be an integer")
		return
	}

	result, err := h.service.ValidateCapacityChange(c.Request.Context(), sessionID, capacity)
	if err != nil {
		renderError(c, err)
		return
	}

	response.Success(c, result)
}

// Reconcile handles POST /api/v1/admin/sessions/:id/reconcile.
func (h *AdminBookingHandler) Reconcile(c *gin.Context) {
	sessionID, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.service.ReconcileSession(c.Request.Context(), sessionID)
	if err != nil {
		renderError(c, err)
		return
	}

	response.Success(c, gin.H{
		"session_id": result.SessionID,
		"before":     result.Before,
		"after":      result.After,
		"drifted":    result.Drifted(),
	})
}
