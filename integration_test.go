//go:build integration

package main_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cragline/service-booking/internal/application"
	bookingDomain "github.com/cragline/service-booking/internal/domain/booking"
	"github.com/cragline/service-booking/internal/repository"
)

// TestConcurrentAdmissions_NeverOverbook fires 50 climbers at a session with
// one slot through the Postgres ledger.
func TestConcurrentAdmissions_NeverOverbook(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()

	stack := setupBookingStack(t, db, nil)
	sess := seedSession(t, stack.Sessions, 1, 48*time.Hour)

	const callers = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		full      int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			climber := uuid.New()
			_, err := stack.Service.CreateBooking(context.Background(), climberActor(climber), sess.ID, climber)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case bookingDomain.KindOf(err) == bookingDomain.KindSessionFull:
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, full)

	var active int64
	require.NoError(t, db.Model(&repository.BookingModel{}).
		Where("session_id = ? AND status = ?", sess.ID, "booked").
		Count(&active).Error)
	assert.Equal(t, int64(1), active)

	var ledger repository.SessionLedgerModel
	require.NoError(t, db.Where("session_id = ?", sess.ID).First(&ledger).Error)
	assert.Equal(t, 1, ledger.ActiveCount)
}

// TestDuplicateAdmissions_OneActiveBooking races the same climber against
// itself and then rebooks after cancelling.
func TestDuplicateAdmissions_OneActiveBooking(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()

	stack := setupBookingStack(t, db, nil)
	sess := seedSession(t, stack.Sessions, 10, 48*time.Hour)
	climber := uuid.New()
	actor := climberActor(climber)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids []uuid.UUID
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bk, err := stack.Service.CreateBooking(context.Background(), actor, sess.ID, climber)
			if err != nil {
				assert.ErrorIs(t, err, bookingDomain.ErrAlreadyBooked)
				return
			}
			mu.Lock()
			ids = append(ids, bk.ID)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, ids, 1)

	_, err := stack.Service.CancelBooking(context.Background(), actor, ids[0])
	require.NoError(t, err)

	rebooked, err := stack.Service.CreateBooking(context.Background(), actor, sess.ID, climber)
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], rebooked.ID)

	result, err := stack.Service.ReconcileSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, result.Drifted())
	assert.Equal(t, 1, result.After)
}

// TestSessionCancelled_ReleasesBookings verifies that a session.cancelled
// event on session.events releases every active booking of the session and
// emits booking.cancelled.
func TestSessionCancelled_ReleasesBookings(t *testing.T) {
	infra := setupContainers(t)
	defer infra.Cleanup()

	stack := setupBookingStack(t, infra.DB, infra.KafkaBrokers)
	defer stack.CleanupProducer()
	defer func() { _ = stack.Consumer.Close() }()

	sess := seedSession(t, stack.Sessions, 5, 2*time.Hour)
	climber := uuid.New()
	bk, err := stack.Service.CreateBooking(context.Background(), climberActor(climber), sess.ID, climber)
	require.NoError(t, err)

	// Start the consumer.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stack.Consumer.Start(ctx) }()
	time.Sleep(3 * time.Second) // Wait for consumer group join.

	evt := application.SessionCancelledEvent{
		SessionID:   sess.ID,
		CancelledBy: uuid.New(),
		Reason:      "route setting",
		OccurredAt:  time.Now().UTC(),
	}
	publishTestEvent(t, infra.KafkaBrokers, application.TopicSessionEvents,
		"service-scheduling", application.SessionCancelled, evt)

	// Inside the 4h cutoff, so only the fan-out path can cancel it.
	model := waitForBookingStatus(t, infra.DB, bk.ID, "cancelled", 15*time.Second)
	assert.NotNil(t, model.CancelledAt)

	ce := consumeOneEvent(t, infra.KafkaBrokers, application.TopicBookingEvents,
		application.BookingCancelled, 15*time.Second)

	var cancelled application.BookingCancelledEvent
	require.NoError(t, ce.ParseData(&cancelled))
	assert.Equal(t, bk.ID, cancelled.BookingID)
	assert.Equal(t, application.ReasonSessionCancelled, cancelled.Reason)
	assert.Equal(t, evt.CancelledBy, cancelled.CancelledBy)
}
