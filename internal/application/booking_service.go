package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cragline/service-booking/internal/domain/access"
	bookingDomain "github.com/cragline/service-booking/internal/domain/booking"
	"github.com/cragline/service-booking/internal/domain/session"
	"github.com/cragline/service-booking/internal/metrics"
)

const defaultRecurringConcurrency = 4

// BookingService is the application service orchestrating booking use cases.
type BookingService struct {
	repo      bookingDomain.BookingRepository
	ledger    bookingDomain.CapacityLedger
	sessions  session.Registry
	resolver  *access.Resolver
	policy    bookingDomain.WindowPolicy
	publisher EventPublisher
	logger    *zap.Logger

	location             *time.Location
	recurringConcurrency int
}

// Option configures optional BookingService settings.
type Option func(*BookingService)

// WithLocation sets the zone used to match recurring weekdays and times.
func WithLocation(loc *time.Location) Option {
	return func(s *BookingService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithRecurringConcurrency bounds how many sessions a recurring request books at once.
func WithRecurringConcurrency(n int) Option {
	return func(s *BookingService) {
		if n > 0 {
			s.recurringConcurrency = n
		}
	}
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	repo bookingDomain.BookingRepository,
	ledger bookingDomain.CapacityLedger,
	sessions session.Registry,
	resolver *access.Resolver,
	policy bookingDomain.WindowPolicy,
	publisher EventPublisher,
	logger *zap.Logger,
	opts ...Option,
) *BookingService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	s := &BookingService{
		repo:                 repo,
		ledger:               ledger,
		sessions:             sessions,
		resolver:             resolver,
		policy:               policy,
		publisher:            publisher,
		logger:               logger,
		location:             time.UTC,
		recurringConcurrency: defaultRecurringConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the zone used for recurrence matching.
func (s *BookingService) Location() *time.Location { return s.location }

// CreateBooking books climberID into sessionID on behalf of actor. A nil
// climberID books the actor themself when they hold the climber role.
func (s *BookingService) CreateBooking(ctx context.Context, actor Actor, sessionID, climberID uuid.UUID) (*BookingDTO, error) {
	climberID, err := defaultClimber(actor, climberID)
	if err != nil {
		return nil, err
	}

	sess, err := s.bookableSession(ctx, sessionID)
	if err != nil {
		return nil, s.admissionFailed(err, sessionID, climberID, actor.ID)
	}
	if err := s.authorize(ctx, actor, climberID); err != nil {
		return nil, s.admissionFailed(err, sessionID, climberID, actor.ID)
	}

	bk, err := s.admit(ctx, actor, sess, climberID)
	if err != nil {
		return nil, err
	}
	result := toBookingDTO(bk)
	return &result, nil
}

// defaultClimber resolves an omitted climber to the actor. Only actors holding
// the climber role may omit it; staff must name who they book.
func defaultClimber(actor Actor, climberID uuid.UUID) (uuid.UUID, error) {
	if climberID != uuid.Nil {
		return climberID, nil
	}
	if !actor.Roles.Has(access.RoleClimber) {
		return uuid.Nil, bookingDomain.NewErrorf(bookingDomain.KindInvalidRequest, "climber_id is required").WithActor(actor.ID)
	}
	return actor.ID, nil
}

// CancelBooking cancels an active booking and releases its slot.
func (s *BookingService) CancelBooking(ctx context.Context, actor Actor, bookingID uuid.UUID) (*BookingDTO, error) {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, s.cancellationFailed(err)
	}
	if !bk.IsActive() {
		return nil, s.cancellationFailed(bookingDomain.NewError(bookingDomain.KindAlreadyCancelled).
			WithBooking(bk.ID()).WithSession(bk.SessionID()).WithClimber(bk.ClimberID()))
	}
	if !actor.Roles.IsStaff() && !bk.CanBeManagedBy(actor.ID) {
		return nil, s.cancellationFailed(bookingDomain.NewErrorf(bookingDomain.KindNotAuthorized, "only the original booker or staff may cancel this booking").
			WithBooking(bk.ID()).WithActor(actor.ID))
	}

	sess, err := s.sessions.GetSession(ctx, bk.SessionID())
	if err != nil {
		return nil, s.cancellationFailed(sessionLookupError(err, bk.SessionID()))
	}
	if !s.policy.CancellationAllowed(sess.Date) {
		return nil, s.cancellationFailed(bookingDomain.NewError(bookingDomain.KindCancellationWindowExpired).
			WithBooking(bk.ID()).WithSession(sess.ID))
	}

	if err := s.release(ctx, actor.ID, bk, ReasonUserCancelled); err != nil {
		return nil, s.cancellationFailed(err)
	}

	result := toBookingDTO(bk)
	return &result, nil
}

// CancelSessionBookings releases every active booking of a cancelled session.
// The cancellation cutoff does not apply. It returns how many were released.
func (s *BookingService) CancelSessionBookings(ctx context.Context, sessionID, cancelledBy uuid.UUID) (int, error) {
	bookings, err := s.repo.FindActiveBySession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	released := 0
	var errs []error
	for _, bk := range bookings {
		err := s.release(ctx, cancelledBy, bk, ReasonSessionCancelled)
		switch {
		case err == nil:
			released++
		case errors.Is(err, bookingDomain.ErrAlreadyCancelled):
			// Cancelled concurrently; nothing left to release.
		default:
			errs = append(errs, fmt.Errorf("booking %s: %w", bk.ID(), err))
		}
	}

	s.logger.Info("session bookings released",
		zap.String("session_id", sessionID.String()),
		zap.Int("released", released),
		zap.Int("failed", len(errs)),
	)
	return released, errors.Join(errs...)
}

// GetBooking retrieves a single booking. Non-staff callers only see bookings
// they created or hold.
func (s *BookingService) GetBooking(ctx context.Context, actor Actor, bookingID uuid.UUID) (*BookingDTO, error) {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.Roles.IsStaff() && bk.BookedByID() != actor.ID && bk.ClimberID() != actor.ID {
		return nil, bookingDomain.NewError(bookingDomain.KindNotAuthorized).WithBooking(bookingID).WithActor(actor.ID)
	}
	result := toBookingDTO(bk)
	return &result, nil
}

// ListBookingsForActor lists bookings the actor created. Staff see all bookings.
func (s *BookingService) ListBookingsForActor(ctx context.Context, actor Actor, filter bookingDomain.ListFilter, page, limit int) (*PaginatedResult[BookingDTO], error) {
	var (
		bookings []*bookingDomain.Booking
		total    int64
		err      error
	)
	if actor.Roles.IsStaff() {
		bookings, total, err = s.repo.ListAll(ctx, filter, page, limit)
	} else {
		bookings, total, err = s.repo.FindByBooker(ctx, actor.ID, filter, page, limit)
	}
	if err != nil {
		return nil, err
	}

	dtos := make([]BookingDTO, len(bookings))
	for i, bk := range bookings {
		dtos[i] = toBookingDTO(bk)
	}
	return &PaginatedResult[BookingDTO]{Items: dtos, Total: total, Page: page, Limit: limit}, nil
}

// GetSessionAvailability reports capacity, active bookings and free slots.
// The figures are for display only and may be stale by the time they render.
func (s *BookingService) GetSessionAvailability(ctx context.Context, sessionID uuid.UUID) (*AvailabilityDTO, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, sessionLookupError(err, sessionID)
	}
	active, err := s.ledger.ActiveCount(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &AvailabilityDTO{
		SessionID: sess.ID,
		Date:      sess.Date,
		Status:    string(sess.Status),
		Capacity:  sess.Capacity,
		Active:    active,
		Available: max(0, sess.Capacity-active),
	}, nil
}

// ValidateCapacityChange checks whether the scheduling service may lower a
// session's capacity to newCapacity.
func (s *BookingService) ValidateCapacityChange(ctx context.Context, sessionID uuid.UUID, newCapacity int) (*AvailabilityDTO, error) {
	if newCapacity < 0 {
		return nil, bookingDomain.NewErrorf(bookingDomain.KindInvalidRequest, "capacity must not be negative").WithSession(sessionID)
	}
	avail, err := s.GetSessionAvailability(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if newCapacity < avail.Active {
		return nil, bookingDomain.NewErrorf(bookingDomain.KindCapacityBelowActive,
			"cannot reduce capacity below current bookings (%d)", avail.Active).WithSession(sessionID)
	}
	avail.Capacity = newCapacity
	avail.Available = newCapacity - avail.Active
	return avail, nil
}

// ReconcileSession recomputes the session's ledger counter from booking rows.
func (s *BookingService) ReconcileSession(ctx context.Context, sessionID uuid.UUID) (bookingDomain.ReconcileResult, error) {
	result, err := s.ledger.Reconcile(ctx, sessionID)
	if err != nil {
		return result, err
	}
	if result.Drifted() {
		metrics.RecordLedgerDrift()
		s.logger.Warn("ledger counter corrected",
			zap.String("session_id", sessionID.String()),
			zap.Int("before", result.Before),
			zap.Int("after", result.After),
		)
	}
	return result, nil
}

// --- Admin methods ---

// ListAllBookings returns a paginated list of all bookings (admin).
func (s *BookingService) ListAllBookings(ctx context.Context, filter bookingDomain.ListFilter, page, limit int) ([]BookingDTO, int64, error) {
	bookings, total, err := s.repo.ListAll(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	dtos := make([]BookingDTO, len(bookings))
	for i, bk := range bookings {
		dtos[i] = toBookingDTO(bk)
	}
	return dtos, total, nil
}

// GetBookingStats returns aggregate booking statistics (admin).
func (s *BookingService) GetBookingStats(ctx context.Context) (*BookingStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking stats: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c
	}
	return &BookingStatsDTO{TotalBookings: total, ByStatus: counts}, nil
}

// --- Helpers ---

// bookableSession resolves sessionID and requires it to be active.
func (s *BookingService) bookableSession(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, sessionLookupError(err, sessionID)
	}
	if !sess.IsBookable() {
		return nil, bookingDomain.NewError(bookingDomain.KindSessionNotActive).WithSession(sessionID)
	}
	return sess, nil
}

// authorize asks the resolver whether actor may act for climberID.
func (s *BookingService) authorize(ctx context.Context, actor Actor, climberID uuid.UUID) error {
	decision, err := s.resolver.Authorize(ctx, actor.ID, actor.Roles, climberID)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return bookingDomain.NewErrorf(bookingDomain.KindNotAuthorized, "%s", decision.Reason).
			WithActor(actor.ID).WithClimber(climberID)
	}
	return nil
}

// admit applies the time window checks and asks the ledger for a slot.
// Session status and ownership must already be checked.
func (s *BookingService) admit(ctx context.Context, actor Actor, sess *session.Session, climberID uuid.UUID) (*bookingDomain.Booking, error) {
	if !s.policy.IsFuture(sess.Date) {
		return nil, s.admissionFailed(bookingDomain.NewError(bookingDomain.KindSessionInPast), sess.ID, climberID, actor.ID)
	}
	if !s.policy.WithinBookingHorizon(sess.Date) {
		return nil, s.admissionFailed(bookingDomain.NewError(bookingDomain.KindOutsideBookingHorizon), sess.ID, climberID, actor.ID)
	}

	bk, err := bookingDomain.NewBooking(sess.ID, climberID, actor.ID, s.policy.Now())
	if err != nil {
		return nil, s.admissionFailed(err, sess.ID, climberID, actor.ID)
	}

	outcome, err := s.ledger.Admit(ctx, bk)
	if err != nil {
		return nil, s.admissionFailed(err, sess.ID, climberID, actor.ID)
	}
	if outcome != bookingDomain.Admitted {
		return nil, s.admissionFailed(outcome.Err(), sess.ID, climberID, actor.ID)
	}

	metrics.RecordAdmission("admitted")
	s.logger.Info("booking created",
		zap.String("booking_id", bk.ID().String()),
		zap.String("session_id", sess.ID.String()),
		zap.String("climber_id", climberID.String()),
		zap.String("booked_by", actor.ID.String()),
	)

	evt := BookingCreatedEvent{
		BookingID:   bk.ID(),
		SessionID:   bk.SessionID(),
		ClimberID:   bk.ClimberID(),
		BookedByID:  bk.BookedByID(),
		SessionDate: sess.Date,
		OccurredAt:  time.Now().UTC(),
	}
	s.publishEvent(ctx, TopicBookingEvents, BookingCreated, bk.SessionID().String(), evt)
	return bk, nil
}

// release cancels bk and frees its ledger slot.
func (s *BookingService) release(ctx context.Context, cancelledBy uuid.UUID, bk *bookingDomain.Booking, reason string) error {
	if err := bk.Cancel(s.policy.Now()); err != nil {
		return err
	}
	if err := s.ledger.Release(ctx, bk); err != nil {
		return err
	}

	metrics.RecordCancellation("cancelled")
	s.logger.Info("booking cancelled",
		zap.String("booking_id", bk.ID().String()),
		zap.String("session_id", bk.SessionID().String()),
		zap.String("cancelled_by", cancelledBy.String()),
		zap.String("reason", reason),
	)

	evt := BookingCancelledEvent{
		BookingID:   bk.ID(),
		SessionID:   bk.SessionID(),
		ClimberID:   bk.ClimberID(),
		BookedByID:  bk.BookedByID(),
		CancelledBy: cancelledBy,
		Reason:      reason,
		CancelledAt: *bk.CancelledAt(),
		OccurredAt:  time.Now().UTC(),
	}
	s.publishEvent(ctx, TopicBookingEvents, BookingCancelled, bk.SessionID().String(), evt)
	return nil
}

// admissionFailed attaches context to err and counts it by kind.
func (s *BookingService) admissionFailed(err error, sessionID, climberID, actorID uuid.UUID) error {
	if e, ok := bookingDomain.AsError(err); ok {
		if e.SessionID == uuid.Nil {
			e.WithSession(sessionID)
		}
		if e.ClimberID == uuid.Nil {
			e.WithClimber(climberID)
		}
		if e.ActorID == uuid.Nil {
			e.WithActor(actorID)
		}
		metrics.RecordAdmission(string(e.Kind))
		if e.Kind == bookingDomain.KindTransient {
			s.logger.Warn("booking admission failed", zap.Error(err))
		}
		return err
	}

	metrics.RecordAdmission("error")
	s.logger.Error("booking admission failed",
		zap.String("session_id", sessionID.String()),
		zap.String("climber_id", climberID.String()),
		zap.Error(err),
	)
	return err
}

func (s *BookingService) cancellationFailed(err error) error {
	kind := string(bookingDomain.KindOf(err))
	if kind == "" {
		kind = "error"
		s.logger.Error("booking cancellation failed", zap.Error(err))
	}
	metrics.RecordCancellation(kind)
	return err
}

func sessionLookupError(err error, sessionID uuid.UUID) error {
	if errors.Is(err, session.ErrNotFound) {
		return bookingDomain.NewError(bookingDomain.KindSessionNotFound).WithSession(sessionID)
	}
	return err
}
