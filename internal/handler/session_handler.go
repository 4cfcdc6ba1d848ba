package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/cragline/service-booking/internal/application"
	"github.com/cragline/service-booking/internal/platform/auth"
	"github.com/cragline/service-booking/internal/platform/middleware"
	"github.com/cragline/service-booking/internal/platform/response"
)

// SessionHandler exposes read-only capacity views of sessions.
type SessionHandler struct {
	service *application.BookingService
}

func NewSessionHandler(service *application.BookingService) *SessionHandler {
	return &SessionHandler{service: service}
}

func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	sessions := r.Group("/api/v1/sessions")
	sessions.Use(middleware.AuthMiddleware(jwtManager))
	sessions.GET("/:id/availability", h.Availability)
}

// Availability handles GET /api/v1/sessions/:id/availability.
func (h *SessionHandler) Availability(c *gin.Context) {
	sessionID, ok := parseID(c, "id")
	if !ok {
		return
	}

	result, err := h.service.GetSessionAvailability(c.Request.Context(), sessionID)
	if err != nil {
		renderError(c, err)
		return
	}

	response.Success(c, result)
}
