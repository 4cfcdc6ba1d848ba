package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cragline/service-booking/internal/domain/access"
	bookingDomain "github.com/cragline/service-booking/internal/domain/booking"
	"github.com/cragline/service-booking/internal/domain/session"
)

func TestCreateMultipleBookings_PartialSuccess(t *testing.T) {
	f := newFixture(t)
	s := f.addSession(t, 48*time.Hour, 2)
	coach := staff(access.RoleCoach)
	x, y, z := uuid.New(), uuid.New(), uuid.New()

	result, err := f.svc.CreateMultipleBookings(context.Background(), coach, s.ID, []uuid.UUID{x, y, z})
	require.NoError(t, err)
	require.Len(t, result.Results, 3)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	assert.True(t, result.Results[0].Success)
	assert.Equal(t, x, result.Results[0].ClimberID)
	assert.True(t, result.Results[1].Success)
	assert.False(t, result.Results[2].Success)
	assert.Equal(t, z, result.Results[2].ClimberID)
	assert.Equal(t, bookingDomain.KindSessionFull, result.Results[2].Error.Kind)

	// Cancelling X frees a slot; retrying Z now succeeds.
	_, err = f.svc.CancelBooking(context.Background(), coach, result.Results[0].Booking.ID)
	require.NoError(t, err)

	retry, err := f.svc.CreateMultipleBookings(context.Background(), coach, s.ID, []uuid.UUID{z})
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Succeeded)
}

func TestCreateMultipleBookings_MixedOwnership(t *testing.T) {
	f := newFixture(t)
	s := f.addSession(t, 48*time.Hour, 10)
	parent, child, stranger := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, f.links.Link(context.Background(), parent, child))

	result, err := f.svc.CreateMultipleBookings(context.Background(), climber(parent), s.ID, []uuid.UUID{parent, stranger, child, parent})
	require.NoError(t, err)

	kinds := make([]bookingDomain.ErrorKind, len(result.Results))
	for i, r := range result.Results {
		if r.Error != nil {
			kinds[i] = r.Error.Kind
		}
	}
	assert.Equal(t, []bookingDomain.ErrorKind{"", bookingDomain.KindNotAuthorized, "", bookingDomain.KindAlreadyBooked}, kinds)
}

func TestCreateMultipleBookings_MissingSessionFailsEveryItem(t *testing.T) {
	f := newFixture(t)
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	result, err := f.svc.CreateMultipleBookings(context.Background(), staff(access.RoleAdmin), uuid.New(), ids)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	for i, r := range result.Results {
		assert.Equal(t, ids[i], r.ClimberID)
		assert.Equal(t, bookingDomain.KindSessionNotFound, r.Error.Kind)
	}

	_, err = f.svc.CreateMultipleBookings(context.Background(), staff(access.RoleAdmin), uuid.New(), nil)
	assert.ErrorIs(t, err, bookingDomain.ErrInvalidRequest)
}

func TestCreateRecurringBookings(t *testing.T) {
	f := newFixture(t)
	me := uuid.New()

	at := func(days int, hour int) time.Time {
		d := f.now.AddDate(0, 0, days)
		return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
	}
	add := func(date time.Time, capacity, duration int) *session.Session {
		s := &session.Session{ID: uuid.New(), Date: date, DurationMinutes: duration, Capacity: capacity, Status: session.StatusActive}
		require.NoError(t, f.sessions.Save(context.Background(), s))
		return s
	}

	// f.now is Monday 09:00.
	monday := add(at(7, 18), 5, 90)
	wednesday := add(at(9, 18), 5, 90)
	fullMonday := add(at(14, 18), 0, 90)
	add(at(8, 18), 5, 90)  // Tuesday
	add(at(7, 19), 5, 90)  // wrong time
	add(at(9, 18), 5, 60)  // wrong duration
	add(at(35, 18), 5, 90) // Wednesday beyond the end date

	spec, err := bookingDomain.NewRecurrenceSpec([]string{"monday", "wednesday"},
		f.now, f.now.AddDate(0, 0, 21), "18:00", 90, time.UTC)
	require.NoError(t, err)

	result, err := f.svc.CreateRecurringBookings(context.Background(), climber(me), me, spec)
	require.NoError(t, err)

	require.Len(t, result.Successful, 2)
	assert.Equal(t, monday.ID, result.Successful[0].SessionID)
	assert.Equal(t, wednesday.ID, result.Successful[1].SessionID)

	require.Len(t, result.Failed, 1)
	assert.Equal(t, fullMonday.ID, result.Failed[0].SessionID)
	assert.Equal(t, bookingDomain.KindSessionFull, result.Failed[0].Kind)
}

func TestCreateRecurringBookings_ReportsHorizonPerSession(t *testing.T) {
	f := newFixture(t)
	me := uuid.New()
	inside := &session.Session{ID: uuid.New(), Date: f.now.Add(7 * 24 * time.Hour), DurationMinutes: 60, Capacity: 3, Status: session.StatusActive}
	outside := &session.Session{ID: uuid.New(), Date: f.now.Add(42 * 24 * time.Hour), DurationMinutes: 60, Capacity: 3, Status: session.StatusActive}
	require.NoError(t, f.sessions.Save(context.Background(), inside))
	require.NoError(t, f.sessions.Save(context.Background(), outside))

	spec, err := bookingDomain.NewRecurrenceSpec([]string{"monday"}, f.now, f.now.AddDate(0, 0, 60), "", 60, time.UTC)
	require.NoError(t, err)

	result, err := f.svc.CreateRecurringBookings(context.Background(), climber(me), me, spec)
	require.NoError(t, err)
	require.Len(t, result.Successful, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, outside.ID, result.Failed[0].SessionID)
	assert.Equal(t, bookingDomain.KindOutsideBookingHorizon, result.Failed[0].Kind)
}

func TestCreateRecurringBookings_NotAuthorized(t *testing.T) {
	f := newFixture(t)
	spec, err := bookingDomain.NewRecurrenceSpec([]string{"monday"}, f.now, f.now.AddDate(0, 0, 7), "", 60, time.UTC)
	require.NoError(t, err)

	_, err = f.svc.CreateRecurringBookings(context.Background(), climber(uuid.New()), uuid.New(), spec)
	assert.ErrorIs(t, err, bookingDomain.ErrNotAuthorized)
}

func TestCreateRecurringBookings_DefaultClimber(t *testing.T) {
	f := newFixture(t)
	spec, err := bookingDomain.NewRecurrenceSpec([]string{"monday"}, f.now, f.now.AddDate(0, 0, 7), "", 60, time.UTC)
	require.NoError(t, err)

	_, err = f.svc.CreateRecurringBookings(context.Background(), staff(access.RoleCoach), uuid.Nil, spec)
	assert.ErrorIs(t, err, bookingDomain.ErrInvalidRequest)

	me := uuid.New()
	result, err := f.svc.CreateRecurringBookings(context.Background(), climber(me), uuid.Nil, spec)
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestCreateRecurringBookingsForClimbers(t *testing.T) {
	f := newFixture(t)
	parent, child, stranger := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, f.links.Link(context.Background(), parent, child))

	s := &session.Session{ID: uuid.New(), Date: f.now.Add(7 * 24 * time.Hour), DurationMinutes: 60, Capacity: 3, Status: session.StatusActive}
	require.NoError(t, f.sessions.Save(context.Background(), s))

	spec, err := bookingDomain.NewRecurrenceSpec([]string{"mon"}, f.now, f.now.AddDate(0, 0, 14), "", 60, time.UTC)
	require.NoError(t, err)

	results, err := f.svc.CreateRecurringBookingsForClimbers(context.Background(), climber(parent), []uuid.UUID{parent, child, stranger}, spec)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Len(t, results[0].Result.Successful, 1)
	assert.Len(t, results[1].Result.Successful, 1)
	assert.Nil(t, results[2].Result)
	require.NotNil(t, results[2].Error)
	assert.Equal(t, bookingDomain.KindNotAuthorized, results[2].Error.Kind)
}

type failingRegistry struct {
	session.Registry
}

func (failingRegistry) FindSessions(context.Context, session.Query) ([]*session.Session, error) {
	return nil, errors.New("registry unavailable")
}

func TestCreateRecurringBookings_RegistryFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.sessions = failingRegistry{Registry: f.sessions}
	me := uuid.New()

	spec, err := bookingDomain.NewRecurrenceSpec([]string{"monday"}, f.now, f.now.AddDate(0, 0, 7), "", 60, time.UTC)
	require.NoError(t, err)

	_, err = f.svc.CreateRecurringBookings(context.Background(), climber(me), me, spec)
	assert.EqualError(t, err, "registry unavailable")
}
