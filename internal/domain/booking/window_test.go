package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testPolicy(now time.Time) WindowPolicy {
	return WindowPolicy{
		Horizon:            30 * 24 * time.Hour,
		CancellationCutoff: 4 * time.Hour,
		Clock:              FixedClock(now),
	}
}

func TestWindowPolicy_BookingHorizon(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p := testPolicy(now)

	assert.True(t, p.WithinBookingHorizon(now.AddDate(0, 0, 10)))
	assert.False(t, p.WithinBookingHorizon(now.AddDate(0, 0, 40)))
	assert.True(t, p.WithinBookingHorizon(now.Add(30*24*time.Hour)), "boundary is inclusive")
	assert.False(t, p.WithinBookingHorizon(now.Add(30*24*time.Hour+time.Second)))
}

func TestWindowPolicy_IsFuture(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p := testPolicy(now)

	assert.True(t, p.IsFuture(now.Add(time.Minute)))
	assert.False(t, p.IsFuture(now))
	assert.False(t, p.IsFuture(now.Add(-time.Hour)))
}

func TestWindowPolicy_CancellationAllowed(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p := testPolicy(now)

	assert.False(t, p.CancellationAllowed(now.Add(2*time.Hour)))
	assert.True(t, p.CancellationAllowed(now.Add(5*time.Hour)))
	assert.True(t, p.CancellationAllowed(now.Add(4*time.Hour)), "exactly at the cutoff is allowed")
}

func TestWindowPolicy_NilClockUsesWallClock(t *testing.T) {
	p := WindowPolicy{Horizon: time.Hour}
	assert.WithinDuration(t, time.Now(), p.Now(), time.Second)
}
