package booking

import (
	"time"

	"github.com/google/uuid"
)

// Booking is the aggregate root for one climber's reservation in one session.
type Booking struct {
	id         uuid.UUID
	sessionID  uuid.UUID
	climberID  uuid.UUID
	bookedByID uuid.UUID
	status     BookingStatus

	cancelledAt *time.Time

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// NewBooking creates a new Booking aggregate with status=booked. The booking is
// only durable once a CapacityLedger has admitted it.
func NewBooking(sessionID, climberID, bookedByID uuid.UUID, now time.Time) (*Booking, error) {
	if sessionID == uuid.Nil {
		return nil, NewErrorf(KindInvalidRequest, "session ID is required")
	}
	if climberID == uuid.Nil {
		return nil, NewErrorf(KindInvalidRequest, "climber ID is required").WithSession(sessionID)
	}
	if bookedByID == uuid.Nil {
		return nil, NewErrorf(KindInvalidRequest, "booker ID is required").WithSession(sessionID).WithClimber(climberID)
	}

	now = now.UTC()
	return &Booking{
		id:         uuid.New(),
		sessionID:  sessionID,
		climberID:  climberID,
		bookedByID: bookedByID,
		status:     StatusBooked,
		version:    1,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// ReconstructBooking rebuilds a Booking from persistence data (no validation).
func ReconstructBooking(
	id uuid.UUID,
	sessionID uuid.UUID,
	climberID uuid.UUID,
	bookedByID uuid.UUID,
	status BookingStatus,
	cancelledAt *time.Time,
	version int64,
	createdAt time.Time,
	updatedAt time.Time,
) *Booking {
	return &Booking{
		id:          id,
		sessionID:   sessionID,
		climberID:   climberID,
		bookedByID:  bookedByID,
		status:      status,
		cancelledAt: cancelledAt,
		version:     version,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// --- Getters ---

// ID returns the booking's unique identifier.
func (b *Booking) ID() uuid.UUID { return b.id }

// SessionID returns the booked session.
func (b *Booking) SessionID() uuid.UUID { return b.sessionID }

// ClimberID returns the climber holding the slot.
func (b *Booking) ClimberID() uuid.UUID { return b.climberID }

// BookedByID returns the actor who created the booking.
func (b *Booking) BookedByID() uuid.UUID { return b.bookedByID }

// Status returns the current booking status.
func (b *Booking) Status() BookingStatus { return b.status }

// CancelledAt returns the cancellation time, or nil while booked.
func (b *Booking) CancelledAt() *time.Time { return b.cancelledAt }

// Version returns the entity version for optimistic locking.
func (b *Booking) Version() int64 { return b.version }

// CreatedAt returns the creation timestamp.
func (b *Booking) CreatedAt() time.Time { return b.createdAt }

// UpdatedAt returns the last-updated timestamp.
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// IsActive returns true while the booking holds a capacity slot.
func (b *Booking) IsActive() bool { return b.status.IsActive() }

// --- Behavior ---

// Cancel transitions the booking from booked to cancelled. cancelledAt is set
// exactly once.
func (b *Booking) Cancel(at time.Time) error {
	if !b.status.CanTransitionTo(StatusCancelled) {
		return NewError(KindAlreadyCancelled).WithBooking(b.id).WithSession(b.sessionID).WithClimber(b.climberID)
	}
	at = at.UTC()
	b.status = StatusCancelled
	b.cancelledAt = &at
	b.version++
	b.updatedAt = at
	return nil
}

// CanBeManagedBy reports whether actorID controls this booking without staff
// privileges. Only the original booker qualifies, not the climber.
func (b *Booking) CanBeManagedBy(actorID uuid.UUID) bool {
	return b.bookedByID == actorID
}
