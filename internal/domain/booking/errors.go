package booking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrorKind classifies booking engine failures so callers can render messages
// and telemetry can aggregate by kind.
type ErrorKind string

const (
	KindSessionNotFound           ErrorKind = "session_not_found"
	KindSessionNotActive          ErrorKind = "session_not_active"
	KindSessionInPast             ErrorKind = "session_in_past"
	KindOutsideBookingHorizon     ErrorKind = "outside_booking_horizon"
	KindNotAuthorized             ErrorKind = "not_authorized"
	KindAlreadyBooked             ErrorKind = "already_booked"
	KindSessionFull               ErrorKind = "session_full"
	KindBookingNotFound           ErrorKind = "booking_not_found"
	KindAlreadyCancelled          ErrorKind = "already_cancelled"
	KindCancellationWindowExpired ErrorKind = "cancellation_window_expired"
	KindCapacityBelowActive       ErrorKind = "capacity_below_active"
	KindInvalidRequest            ErrorKind = "invalid_request"
	KindTransient                 ErrorKind = "transient"
)

var defaultMessages = map[ErrorKind]string{
	KindSessionNotFound:           "session not found",
	KindSessionNotActive:          "session is not active",
	KindSessionInPast:             "cannot book past sessions",
	KindOutsideBookingHorizon:     "session is outside the booking horizon",
	KindNotAuthorized:             "not authorized",
	KindAlreadyBooked:             "climber is already registered for this session",
	KindSessionFull:               "session is full",
	KindBookingNotFound:           "booking not found",
	KindAlreadyCancelled:          "booking is already cancelled",
	KindCancellationWindowExpired: "cancellation period has expired",
	KindCapacityBelowActive:       "capacity cannot be reduced below active bookings",
	KindInvalidRequest:            "invalid request",
	KindTransient:                 "temporary storage failure, retry the request",
}

// Error is the typed error returned by every booking engine operation.
type Error struct {
	Kind      ErrorKind
	Message   string
	SessionID uuid.UUID
	ClimberID uuid.UUID
	ActorID   uuid.UUID
	BookingID uuid.UUID
	Err       error
}

// Sentinels for errors.Is comparisons. Matching is by Kind only.
var (
	ErrSessionNotFound           = &Error{Kind: KindSessionNotFound}
	ErrSessionNotActive          = &Error{Kind: KindSessionNotActive}
	ErrSessionInPast             = &Error{Kind: KindSessionInPast}
	ErrOutsideBookingHorizon     = &Error{Kind: KindOutsideBookingHorizon}
	ErrNotAuthorized             = &Error{Kind: KindNotAuthorized}
	ErrAlreadyBooked             = &Error{Kind: KindAlreadyBooked}
	ErrSessionFull               = &Error{Kind: KindSessionFull}
	ErrBookingNotFound           = &Error{Kind: KindBookingNotFound}
	ErrAlreadyCancelled          = &Error{Kind: KindAlreadyCancelled}
	ErrCancellationWindowExpired = &Error{Kind: KindCancellationWindowExpired}
	ErrCapacityBelowActive       = &Error{Kind: KindCapacityBelowActive}
	ErrInvalidRequest            = &Error{Kind: KindInvalidRequest}
	ErrTransient                 = &Error{Kind: KindTransient}
)

// NewError creates an Error of the given kind with its default message.
func NewError(kind ErrorKind) *Error {
	return &Error{Kind: kind, Message: defaultMessages[kind]}
}

// NewErrorf creates an Error of the given kind with a formatted message.
func NewErrorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewTransientError wraps a retryable storage failure.
func NewTransientError(op string, err error) *Error {
	return &Error{
		Kind:    KindTransient,
		Message: fmt.Sprintf("%s: %s", op, defaultMessages[KindTransient]),
		Err:     err,
	}
}

// WithSession attaches the session ID and returns e.
func (e *Error) WithSession(id uuid.UUID) *Error { e.SessionID = id; return e }

// WithClimber attaches the climber ID and returns e.
func (e *Error) WithClimber(id uuid.UUID) *Error { e.ClimberID = id; return e }

// WithActor attaches the actor ID and returns e.
func (e *Error) WithActor(id uuid.UUID) *Error { e.ActorID = id; return e }

// WithBooking attaches the booking ID and returns e.
func (e *Error) WithBooking(id uuid.UUID) *Error { e.BookingID = id; return e }

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessages[e.Kind]
	}
	var ctx []string
	if e.SessionID != uuid.Nil {
		ctx = append(ctx, "session="+e.SessionID.String())
	}
	if e.ClimberID != uuid.Nil {
		ctx = append(ctx, "climber="+e.ClimberID.String())
	}
	if e.BookingID != uuid.Nil {
		ctx = append(ctx, "booking="+e.BookingID.String())
	}
	if len(ctx) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(ctx, " "))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a booking Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the caller may safely retry the operation.
func (e *Error) Retryable() bool { return e.Kind == KindTransient }

// KindOf returns the kind of err, or "" when err is not a booking Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err, or any error joined into it, is a
// transient failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// AsError returns err as a booking Error, if it is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
