package application

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	bookingDomain "github.com/cragline/service-booking/internal/domain/booking"
	"github.com/cragline/service-booking/internal/metrics"
)

// CreateMultipleBookings books each climber into one session. Items run in
// input order and one failure never stops the rest; results are positional.
func (s *BookingService) CreateMultipleBookings(ctx context.Context, actor Actor, sessionID uuid.UUID, climberIDs []uuid.UUID) (*BatchResult, error) {
	if len(climberIDs) == 0 {
		return nil, bookingDomain.NewErrorf(bookingDomain.KindInvalidRequest, "at least one climber is required")
	}
	metrics.RecordBatch("batch", len(climberIDs))

	result := &BatchResult{
		SessionID: sessionID,
		Results:   make([]BatchItemResult, len(climberIDs)),
	}

	sess, sessErr := s.bookableSession(ctx, sessionID)
	for i, climberID := range climberIDs {
		item := BatchItemResult{ClimberID: climberID}

		err := sessErr
		if e, ok := bookingDomain.AsError(sessErr); ok {
			cp := *e
			err = &cp
		}
		if err == nil {
			err = s.authorize(ctx, actor, climberID)
		}
		if err != nil {
			err = s.admissionFailed(err, sessionID, climberID, actor.ID)
		} else {
			var bk *bookingDomain.Booking
			if bk, err = s.admit(ctx, actor, sess, climberID); err == nil {
				dto := toBookingDTO(bk)
				item.Booking = &dto
			}
		}

		if err != nil {
			item.Error = toItemError(err)
			result.Failed++
		} else {
			item.Success = true
			result.Succeeded++
		}
		result.Results[i] = item
	}

	s.logger.Info("batch booking finished",
		zap.String("session_id", sessionID.String()),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// CreateRecurringBookings books climberID into every session matching spec.
// Ownership is checked once; a denial rejects the whole request. Sessions are
// booked with bounded concurrency and reported in date order.
func (s *BookingService) CreateRecurringBookings(ctx context.Context, actor Actor, climberID uuid.UUID, spec bookingDomain.RecurrenceSpec) (*RecurringResult, error) {
	climberID, err := defaultClimber(actor, climberID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, climberID); err != nil {
		return nil, s.admissionFailed(err, uuid.Nil, climberID, actor.ID)
	}

	candidates, err := s.sessions.FindSessions(ctx, spec.Query())
	if err != nil {
		return nil, err
	}
	matched := spec.Filter(candidates)
	metrics.RecordBatch("recurring", len(matched))

	type outcome struct {
		booking *bookingDomain.Booking
		err     error
	}
	outcomes := make([]outcome, len(matched))

	var g errgroup.Group
	g.SetLimit(s.recurringConcurrency)
	for i, sess := range matched {
		g.Go(func() error {
			if !sess.IsBookable() {
				outcomes[i].err = s.admissionFailed(bookingDomain.NewError(bookingDomain.KindSessionNotActive), sess.ID, climberID, actor.ID)
				return nil
			}
			bk, err := s.admit(ctx, actor, sess, climberID)
			outcomes[i] = outcome{booking: bk, err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := &RecurringResult{
		ClimberID:  climberID,
		Successful: []RecurringSuccess{},
		Failed:     []RecurringFailure{},
	}
	for i, sess := range matched {
		o := outcomes[i]
		if o.err != nil {
			ie := toItemError(o.err)
			result.Failed = append(result.Failed, RecurringFailure{
				SessionID: sess.ID,
				Date:      sess.Date,
				Kind:      ie.Kind,
				Reason:    ie.Message,
			})
			continue
		}
		result.Successful = append(result.Successful, RecurringSuccess{
			SessionID: sess.ID,
			BookingID: o.booking.ID(),
			Date:      sess.Date,
		})
	}

	s.logger.Info("recurring booking finished",
		zap.String("climber_id", climberID.String()),
		zap.Int("matched", len(matched)),
		zap.Int("successful", len(result.Successful)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// CreateRecurringBookingsForClimbers runs CreateRecurringBookings for each
// climber. A climber rejected outright is reported with an error instead of
// failing the whole request.
func (s *BookingService) CreateRecurringBookingsForClimbers(ctx context.Context, actor Actor, climberIDs []uuid.UUID, spec bookingDomain.RecurrenceSpec) ([]ClimberRecurringResult, error) {
	if len(climberIDs) == 0 {
		return nil, bookingDomain.NewErrorf(bookingDomain.KindInvalidRequest, "at least one climber is required")
	}

	results := make([]ClimberRecurringResult, len(climberIDs))
	for i, climberID := range climberIDs {
		res, err := s.CreateRecurringBookings(ctx, actor, climberID, spec)
		if err != nil {
			if _, ok := bookingDomain.AsError(err); !ok {
				return nil, err
			}
			results[i] = ClimberRecurringResult{ClimberID: climberID, Error: toItemError(err)}
			continue
		}
		results[i] = ClimberRecurringResult{ClimberID: climberID, Result: res}
	}
	return results, nil
}
