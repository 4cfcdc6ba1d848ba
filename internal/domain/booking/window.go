package booking

import "time"

// Clock supplies the current time. Tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// WindowPolicy enforces the booking horizon and the cancellation cutoff.
type WindowPolicy struct {
	Horizon            time.Duration
	CancellationCutoff time.Duration
	Clock              Clock
}

// NewWindowPolicy creates a WindowPolicy on the system clock.
func NewWindowPolicy(horizon, cancellationCutoff time.Duration) WindowPolicy {
	return WindowPolicy{
		Horizon:            horizon,
		CancellationCutoff: cancellationCutoff,
		Clock:              SystemClock{},
	}
}

// Now returns the policy's current time.
func (p WindowPolicy) Now() time.Time {
	if p.Clock == nil {
		return time.Now().UTC()
	}
	return p.Clock.Now()
}

// WithinBookingHorizon reports whether sessionDate is no more than Horizon ahead of now.
func (p WindowPolicy) WithinBookingHorizon(sessionDate time.Time) bool {
	return !sessionDate.After(p.Now().Add(p.Horizon))
}

// IsFuture reports whether sessionDate has not started yet.
func (p WindowPolicy) IsFuture(sessionDate time.Time) bool {
	return sessionDate.After(p.Now())
}

// CancellationAllowed reports whether at least CancellationCutoff remains before sessionDate.
func (p WindowPolicy) CancellationAllowed(sessionDate time.Time) bool {
	return sessionDate.Sub(p.Now()) >= p.CancellationCutoff
}
