package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cragline/service-booking/internal/application"
	bookingDomain "github.com/cragline/service-booking/internal/domain/booking"
	"github.com/cragline/service-booking/internal/platform/auth"
	"github.com/cragline/service-booking/internal/platform/middleware"
	"github.com/cragline/service-booking/internal/platform/response"
)

const dateLayout = "2006-01-02"

// CreateBookingRequest books one climber, or several when ClimberIDs is set.
type CreateBookingRequest struct {
	SessionID  string   `json:"session_id" binding:"required,uuid"`
	ClimberID  string   `json:"climber_id" binding:"omitempty,uuid"`
	ClimberIDs []string `json:"climber_ids" binding:"omitempty,max=50,dive,uuid"`
}

// RecurringBookingRequest books every matching session between two dates.
type RecurringBookingRequest struct {
	ClimberID       string   `json:"climber_id" binding:"omitempty,uuid"`
	ClimberIDs      []string `json:"climber_ids" binding:"omitempty,max=50,dive,uuid"`
	DaysOfWeek      []string `json:"days_of_week" binding:"required,min=1,dive,weekday"`
	StartDate       string   `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate         string   `json:"end_date" binding:"required,datetime=2006-01-02"`
	Time            string   `json:"time" binding:"omitempty,clock"`
	DurationMinutes int      `json:"duration_minutes" binding:"required,gt=0"`
}

// BookingHandler handles HTTP requests for booking operations.
type BookingHandler struct {
	service *application.BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service *application.BookingService) *BookingHandler {
	registerValidators()
	return &BookingHandler{service: service}
}

// RegisterRoutes registers all booking routes on the given router group.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)

	bookings := r.Group("/api/v1/bookings")
	bookings.Use(authMW)
	{
		bookings.POST("", h.CreateBooking)
		bookings.POST("/recurring", h.CreateRecurringBookings)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.DELETE("/:id", h.CancelBooking)
	}
}

// CreateBooking handles POST /api/v1/bookings.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sessionID := uuid.MustParse(req.SessionID)

	if len(req.ClimberIDs) > 0 {
		climberIDs := mustParseIDs(req.ClimberIDs)
		result, err := h.service.CreateMultipleBookings(c.Request.Context(), actor, sessionID, climberIDs)
		if err != nil {
			renderError(c, err)
			return
		}
		if result.Failed > 0 {
			response.MultiStatus(c, result)
			return
		}
		response.Created(c, result)
		return
	}

	var climberID uuid.UUID
	if req.ClimberID != "" {
		climberID = uuid.MustParse(req.ClimberID)
	}
	result, err := h.service.CreateBooking(c.Request.Context(), actor, sessionID, climberID)
	if err != nil {
		renderError(c, err)
		return
	}

	response.Created(c, result)
}

// CreateRecurringBookings handles POST /api/v1/bookings/recurring.
func (h *BookingHandler) CreateRecurringBookings(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req RecurringBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	start, _ := time.Parse(dateLayout, req.StartDate)
	end, _ := time.Parse(dateLayout, req.EndDate)
	spec, err := bookingDomain.NewRecurrenceSpec(req.DaysOfWeek, start, end, req.Time, req.DurationMinutes, h.service.Location())
	if err != nil {
		renderError(c, err)
		return
	}

	if len(req.ClimberIDs) > 0 {
		results, err := h.service.CreateRecurringBookingsForClimbers(c.Request.Context(), actor, mustParseIDs(req.ClimberIDs), spec)
		if err != nil {
			renderError(c, err)
			return
		}
		response.MultiStatus(c, results)
		return
	}

	climberID := uuid.Nil
	if req.ClimberID != "" {
		climberID = uuid.MustParse(req.ClimberID)
	}
	result, err := h.service.CreateRecurringBookings(c.Request.Context(), actor, climberID, spec)
	if err != nil {
		renderError(c, err)
		return
	}
	if len(result.Failed) > 0 {
		response.MultiStatus(c, result)
		return
	}
	response.Created(c, result)
}

// ListBookings handles GET /api/v1/bookings. Climbers see bookings they
// created; staff see every booking.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	filter, ok := parseListFilter(c)
	if !ok {
		return
	}
	page, limit := parsePagination(c)

	result, err := h.service.ListBookingsForActor(c.Request.Context(), actor, filter, page, limit)
	if err != nil {
		renderError(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// GetBooking handles GET /api/v1/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bookingID, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	result, err := h.service.GetBooking(c.Request.Context(), actor, bookingID)
	if err != nil {
		renderError(c, err)
		return
	}

	response.Success(c, result)
}

// CancelBooking handles DELETE /api/v1/bookings/:id.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	bookingID, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	result, err := h.service.CancelBooking(c.Request.Context(), actor, bookingID)
	if err != nil {
		renderError(c, err)
		return
	}

	response.Success(c, result)
}

func parseListFilter(c *gin.Context) (bookingDomain.ListFilter, bool) {
	var filter bookingDomain.ListFilter
	if s := c.Query("status"); s != "" {
		status := bookingDomain.BookingStatus(s)
		if !status.IsValid() {
			response.BadRequest(c, "invalid status")
			return filter, false
		}
		filter.Status = status
	}
	if s := c.Query("climber_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid climber_id")
			return filter, false
		}
		filter.ClimberID = id
	}
	if s := c.Query("session_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid session_id")
			return filter, false
		}
		filter.SessionID = id
	}
	return filter, true
}

// mustParseIDs parses IDs already checked by the uuid binding tag.
func mustParseIDs(raw []string) []uuid.UUID {
	ids := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		ids[i] = uuid.MustParse(s)
	}
	return ids
}
