package handler

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cragline/service-booking/internal/application"
	"github.com/cragline/service-booking/internal/domain/access"
	bookingDomain "github.com/cragline/service-booking/internal/domain/booking"
	"github.com/cragline/service-booking/internal/platform/middleware"
	"github.com/cragline/service-booking/internal/platform/response"
)

var statusByKind = map[bookingDomain.ErrorKind]int{
	bookingDomain.KindSessionNotFound:           http.StatusNotFound,
	bookingDomain.KindBookingNotFound:           http.StatusNotFound,
	bookingDomain.KindNotAuthorized:             http.StatusForbidden,
	bookingDomain.KindAlreadyBooked:             http.StatusConflict,
	bookingDomain.KindSessionFull:               http.StatusConflict,
	bookingDomain.KindAlreadyCancelled:          http.StatusConflict,
	bookingDomain.KindCapacityBelowActive:       http.StatusConflict,
	bookingDomain.KindSessionNotActive:          http.StatusBadRequest,
	bookingDomain.KindSessionInPast:             http.StatusBadRequest,
	bookingDomain.KindOutsideBookingHorizon:     http.StatusBadRequest,
	bookingDomain.KindCancellationWindowExpired: http.StatusBadRequest,
	bookingDomain.KindInvalidRequest:            http.StatusBadRequest,
	bookingDomain.KindTransient:                 http.StatusServiceUnavailable,
}

// renderError writes err as a JSON error envelope. Untyped errors become 500.
func renderError(c *gin.Context, err error) {
	e, ok := bookingDomain.AsError(err)
	if !ok {
		_ = c.Error(err)
		response.InternalError(c)
		return
	}

	status, ok := statusByKind[e.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	msg := e.Message
	if msg == "" || e.Kind == bookingDomain.KindTransient {
		msg = bookingDomain.NewError(e.Kind).Message
	}

	details := map[string]interface{}{}
	if e.SessionID != uuid.Nil {
		details["session_id"] = e.SessionID.String()
	}
	if e.ClimberID != uuid.Nil {
		details["climber_id"] = e.ClimberID.String()
	}
	if e.BookingID != uuid.Nil {
		details["booking_id"] = e.BookingID.String()
	}
	if e.Kind == bookingDomain.KindTransient {
		details["retryable"] = true
	}
	if len(details) == 0 {
		details = nil
	}

	response.Fail(c, status, string(e.Kind), msg, details)
}

// actorFrom builds the calling Actor from the authenticated gin context.
func actorFrom(c *gin.Context) (application.Actor, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return application.Actor{}, false
	}
	roles, _ := middleware.GetRoles(c)
	return application.Actor{ID: userID, Roles: access.NewRoleSet(roles...)}, true
}

func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// parsePagination extracts page and limit query parameters with defaults.
func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return page, limit
}

var registerOnce sync.Once

// registerValidators adds the weekday and clock tags to gin's validator.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
			_, err := bookingDomain.ParseWeekday(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, _, err := bookingDomain.ParseClock(fl.Field().String())
			return err == nil
		})
	})
}
