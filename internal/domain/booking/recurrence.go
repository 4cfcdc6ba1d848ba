package booking

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cragline/service-booking/internal/domain/session"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sun":       time.Sunday,
	"mon":       time.Monday,
	"tue":       time.Tuesday,
	"wed":       time.Wednesday,
	"thu":       time.Thursday,
	"fri":       time.Friday,
	"sat":       time.Saturday,
}

// ParseWeekday accepts a day name ("monday", "mon") or a number 0-6 with 0 as sunday.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if d, ok := weekdayNames[s]; ok {
		return d, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	return 0, fmt.Errorf("invalid day of week: %q", s)
}

// ParseClock validates an "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// RecurrenceSpec selects the sessions a recurring booking targets.
// StartDate and EndDate are calendar days, both inclusive. Weekday and Time
// are evaluated in Location.
type RecurrenceSpec struct {
	DaysOfWeek      []time.Weekday
	StartDate       time.Time
	EndDate         time.Time
	Time            string
	DurationMinutes int
	Location        *time.Location
}

// NewRecurrenceSpec parses and validates raw recurrence input.
func NewRecurrenceSpec(days []string, startDate, endDate time.Time, clock string, durationMinutes int, loc *time.Location) (RecurrenceSpec, error) {
	if len(days) == 0 {
		return RecurrenceSpec{}, NewErrorf(KindInvalidRequest, "at least one day of week is required")
	}
	weekdays := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		wd, err := ParseWeekday(d)
		if err != nil {
			return RecurrenceSpec{}, NewErrorf(KindInvalidRequest, "%v", err)
		}
		if !slices.Contains(weekdays, wd) {
			weekdays = append(weekdays, wd)
		}
	}
	clock = strings.TrimSpace(clock)
	if clock != "" {
		h, m, err := ParseClock(clock)
		if err != nil {
			return RecurrenceSpec{}, NewErrorf(KindInvalidRequest, "%v", err)
		}
		clock = fmt.Sprintf("%02d:%02d", h, m)
	}
	if durationMinutes <= 0 {
		return RecurrenceSpec{}, NewErrorf(KindInvalidRequest, "duration must be positive")
	}
	if loc == nil {
		loc = time.UTC
	}

	spec := RecurrenceSpec{
		DaysOfWeek:      weekdays,
		StartDate:       startOfDay(startDate, loc),
		EndDate:         startOfDay(endDate, loc),
		Time:            clock,
		DurationMinutes: durationMinutes,
		Location:        loc,
	}
	if spec.EndDate.Before(spec.StartDate) {
		return RecurrenceSpec{}, NewErrorf(KindInvalidRequest, "end date must not be before start date")
	}
	return spec, nil
}

// Query returns the registry lookup covering the whole date range.
func (r RecurrenceSpec) Query() session.Query {
	return session.Query{
		From:            r.StartDate,
		To:              r.EndDate.AddDate(0, 0, 1),
		DurationMinutes: r.DurationMinutes,
		Status:          session.StatusActive,
	}
}

// Matches reports whether s falls on a requested weekday at the requested time.
func (r RecurrenceSpec) Matches(s *session.Session) bool {
	if s.DurationMinutes != r.DurationMinutes {
		return false
	}
	local := s.Date.In(r.location())
	if !slices.Contains(r.DaysOfWeek, local.Weekday()) {
		return false
	}
	if r.Time == "" {
		return true
	}
	return local.Format("15:04") == r.Time
}

// Filter keeps matching sessions in their original order.
func (r RecurrenceSpec) Filter(sessions []*session.Session) []*session.Session {
	var out []*session.Session
	for _, s := range sessions {
		if r.Matches(s) {
			out = append(out, s)
		}
	}
	return out
}

func (r RecurrenceSpec) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// startOfDay keeps the calendar day as written and anchors it in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
