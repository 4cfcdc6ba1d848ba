package booking

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows booking listings. Zero values are ignored.
type ListFilter struct {
	Status    BookingStatus
	ClimberID uuid.UUID
	SessionID uuid.UUID
}

// BookingRepository defines the read side of booking persistence. Writes go
// through a CapacityLedger so the capacity counter and the rows never diverge.
type BookingRepository interface {
	// FindByID retrieves a booking by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindByBooker retrieves bookings created by a specific actor with pagination.
	FindByBooker(ctx context.Context, bookedByID uuid.UUID, filter ListFilter, page, limit int) ([]*Booking, int64, error)

	// ListAll retrieves all bookings with pagination (staff).
	ListAll(ctx context.Context, filter ListFilter, page, limit int) ([]*Booking, int64, error)

	// FindActiveBySession returns every booking holding a slot in the session.
	FindActiveBySession(ctx context.Context, sessionID uuid.UUID) ([]*Booking, error)

	// CountByStatus returns booking counts grouped by status (admin).
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// AdmissionOutcome is the result of a single admission attempt.
type AdmissionOutcome int

const (
	Admitted AdmissionOutcome = iota
	AdmissionAlreadyBooked
	AdmissionSessionFull
	AdmissionSessionNotFound
)

func (o AdmissionOutcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case AdmissionAlreadyBooked:
		return "already_booked"
	case AdmissionSessionFull:
		return "session_full"
	case AdmissionSessionNotFound:
		return "session_not_found"
	}
	return "unknown"
}

// Err converts a rejected outcome into the matching typed error. Admitted yields nil.
func (o AdmissionOutcome) Err() error {
	switch o {
	case AdmissionAlreadyBooked:
		return NewError(KindAlreadyBooked)
	case AdmissionSessionFull:
		return NewError(KindSessionFull)
	case AdmissionSessionNotFound:
		return NewError(KindSessionNotFound)
	}
	return nil
}

// ReconcileResult reports a ledger counter before and after recomputation.
type ReconcileResult struct {
	SessionID uuid.UUID `json:"session_id"`
	Before    int       `json:"before"`
	After     int       `json:"after"`
}

// Drifted reports whether the counter disagreed with the booking rows.
func (r ReconcileResult) Drifted() bool { return r.Before != r.After }

// CapacityLedger is the only component allowed to decide admissions. Every
// implementation must make the capacity check and the booking write atomic
// per session.
type CapacityLedger interface {
	// Admit reserves a slot for b and persists it with status=booked.
	// Only a storage failure returns a non-nil error.
	Admit(ctx context.Context, b *Booking) (AdmissionOutcome, error)

	// Release persists b's cancellation and frees its slot. It returns
	// ErrAlreadyCancelled when another caller cancelled b first.
	Release(ctx context.Context, b *Booking) error

	// ActiveCount returns the number of active bookings in the session.
	ActiveCount(ctx context.Context, sessionID uuid.UUID) (int, error)

	// Reconcile recomputes the session counter from booking rows.
	Reconcile(ctx context.Context, sessionID uuid.UUID) (ReconcileResult, error)
}
