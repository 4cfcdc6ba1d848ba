package booking

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cragline/service-booking/internal/domain/session"
)

func TestParseWeekday(t *testing.T) {
	tests := map[string]time.Weekday{
		"monday":   time.Monday,
		"Tuesday":  time.Tuesday,
		" sat ":    time.Saturday,
		"0":        time.Sunday,
		"6":        time.Saturday,
		"WED":      time.Wednesday,
		"thursday": time.Thursday,
	}
	for in, want := range tests {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "7", "-1", "funday"} {
		_, err := ParseWeekday(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewRecurrenceSpec(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	spec, err := NewRecurrenceSpec([]string{"monday", "1", "wed"}, start, end, "9:30", 90, nil)
	require.NoError(t, err)

	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, spec.DaysOfWeek)
	assert.Equal(t, "09:30", spec.Time)
	assert.Equal(t, time.UTC, spec.Location)

	q := spec.Query()
	assert.Equal(t, start, q.From)
	assert.Equal(t, end.AddDate(0, 0, 1), q.To, "end date is inclusive")
	assert.Equal(t, 90, q.DurationMinutes)
	assert.Equal(t, session.StatusActive, q.Status)
}

func TestNewRecurrenceSpec_Invalid(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)

	tests := []struct {
		name     string
		days     []string
		start    time.Time
		end      time.Time
		clock    string
		duration int
	}{
		{"no days", nil, start, end, "", 60},
		{"bad day", []string{"someday"}, start, end, "", 60},
		{"bad clock", []string{"mon"}, start, end, "25:00", 60},
		{"zero duration", []string{"mon"}, start, end, "", 0},
		{"end before start", []string{"mon"}, end, start, "", 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecurrenceSpec(tt.days, tt.start, tt.end, tt.clock, tt.duration, time.UTC)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestRecurrenceSpec_Filter(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) // Monday
	end := time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC)
	spec, err := NewRecurrenceSpec([]string{"monday", "wednesday"}, start, end, "18:00", 90, time.UTC)
	require.NoError(t, err)

	mk := func(d time.Time, minutes int) *session.Session {
		return &session.Session{ID: uuid.New(), Date: d, DurationMinutes: minutes, Status: session.StatusActive}
	}
	mon := mk(time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC), 90)
	tue := mk(time.Date(2026, 6, 2, 18, 0, 0, 0, time.UTC), 90)
	wedWrongTime := mk(time.Date(2026, 6, 3, 19, 0, 0, 0, time.UTC), 90)
	wedWrongDuration := mk(time.Date(2026, 6, 3, 18, 0, 0, 0, time.UTC), 60)
	nextMon := mk(time.Date(2026, 6, 8, 18, 0, 0, 0, time.UTC), 90)

	got := spec.Filter([]*session.Session{mon, tue, wedWrongTime, wedWrongDuration, nextMon})
	assert.Equal(t, []*session.Session{mon, nextMon}, got)
}

func TestRecurrenceSpec_MatchesInLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)

	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	spec, err := NewRecurrenceSpec([]string{"monday"}, start, start.AddDate(0, 0, 7), "19:00", 60, loc)
	require.NoError(t, err)

	// Monday 19:00 in Denver (MDT, UTC-6) is Tuesday 01:00 UTC.
	s := &session.Session{Date: time.Date(2026, 6, 2, 1, 0, 0, 0, time.UTC), DurationMinutes: 60}
	assert.True(t, spec.Matches(s))

	s.Date = time.Date(2026, 6, 1, 19, 0, 0, 0, time.UTC)
	assert.False(t, spec.Matches(s))
}
