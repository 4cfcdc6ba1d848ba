package application

import (
	"time"

	"github.com/google/uuid"

	"github.com/cragline/service-booking/internal/domain/access"
	bookingDomain "github.com/cragline/service-booking/internal/domain/booking"
)

// Actor is the authenticated caller. Roles come from the upstream token.
type Actor struct {
	ID    uuid.UUID
	Roles access.RoleSet
}

// SystemActor acts for internal flows such as session cancellation fan-out.
var SystemActor = Actor{ID: uuid.Nil, Roles: access.RoleSet{access.RoleAdmin}}

// BookingDTO is the response representation of a booking.
type BookingDTO struct {
	ID          uuid.UUID  `json:"id"`
	SessionID   uuid.UUID  `json:"session_id"`
	ClimberID   uuid.UUID  `json:"climber_id"`
	BookedByID  uuid.UUID  `json:"booked_by_id"`
	Status      string     `json:"status"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ItemError describes why one item of a batch or recurring request failed.
type ItemError struct {
	Kind    bookingDomain.ErrorKind `json:"kind"`
	Message string                  `json:"message"`
}

// BatchItemResult is the outcome for one climber in a batch request.
type BatchItemResult struct {
	ClimberID uuid.UUID   `json:"climber_id"`
	Success   bool        `json:"success"`
	Booking   *BookingDTO `json:"booking,omitempty"`
	Error     *ItemError  `json:"error,omitempty"`
}

// BatchResult holds per-climber outcomes in request order.
type BatchResult struct {
	SessionID uuid.UUID         `json:"session_id"`
	Results   []BatchItemResult `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// RecurringSuccess is one session booked by a recurring request.
type RecurringSuccess struct {
	SessionID uuid.UUID `json:"session_id"`
	BookingID uuid.UUID `json:"booking_id"`
	Date      time.Time `json:"date"`
}

// RecurringFailure is one matching session that could not be booked.
type RecurringFailure struct {
	SessionID uuid.UUID               `json:"session_id"`
	Date      time.Time               `json:"date"`
	Kind      bookingDomain.ErrorKind `json:"kind"`
	Reason    string                  `json:"reason"`
}

// RecurringResult partitions matching sessions by outcome, ordered by date.
type RecurringResult struct {
	ClimberID  uuid.UUID          `json:"climber_id"`
	Successful []RecurringSuccess `json:"successful"`
	Failed     []RecurringFailure `json:"failed"`
}

// ClimberRecurringResult wraps one climber's recurring outcome in a
// multi-climber request. Error is set when the climber was rejected outright.
type ClimberRecurringResult struct {
	ClimberID uuid.UUID        `json:"climber_id"`
	Result    *RecurringResult `json:"result,omitempty"`
	Error     *ItemError       `json:"error,omitempty"`
}

// AvailabilityDTO is a display projection of a session's capacity.
type AvailabilityDTO struct {
	SessionID uuid.UUID `json:"session_id"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	Capacity  int       `json:"capacity"`
	Active    int       `json:"active"`
	Available int       `json:"available"`
}

// BookingStatsDTO holds booking statistics for the admin dashboard.
type BookingStatsDTO struct {
	TotalBookings int64            `json:"total_bookings"`
	ByStatus      map[string]int64 `json:"by_status"`
}

// PaginatedResult is one page of items.
type PaginatedResult[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

func toBookingDTO(bk *bookingDomain.Booking) BookingDTO {
	return BookingDTO{
		ID:          bk.ID(),
		SessionID:   bk.SessionID(),
		ClimberID:   bk.ClimberID(),
		BookedByID:  bk.BookedByID(),
		Status:      string(bk.Status()),
		CancelledAt: bk.CancelledAt(),
		Version:     bk.Version(),
		CreatedAt:   bk.CreatedAt(),
		UpdatedAt:   bk.UpdatedAt(),
	}
}

func toItemError(err error) *ItemError {
	if e, ok := bookingDomain.AsError(err); ok {
		msg := e.Message
		if msg == "" {
			msg = e.Error()
		}
		return &ItemError{Kind: e.Kind, Message: msg}
	}
	return &ItemError{Kind: "internal", Message: "internal error"}
}
