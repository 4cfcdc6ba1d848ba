package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a training session as published by the
// scheduling service.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// IsValid returns true if the status is a recognized session status.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus converts a string to a Status, returning an error if invalid.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid session status: %s", s)
	}
	return status, nil
}

// ErrNotFound is returned by a Registry when no session has the requested ID.
var ErrNotFound = errors.New("session not found")

// Session is the read-only view of a scheduled training session.
type Session struct {
	ID              uuid.UUID
	Date            time.Time
	DurationMinutes int
	Capacity        int
	Status          Status
	CoachIDs        []uuid.UUID
}

// IsBookable returns true if new bookings may be admitted into the session.
func (s *Session) IsBookable() bool {
	return s.Status == StatusActive
}

// EndsAt returns the scheduled end of the session.
func (s *Session) EndsAt() time.Time {
	return s.Date.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Query selects sessions for the recurring booking matcher.
// From is inclusive and To is exclusive.
type Query struct {
	From            time.Time
	To              time.Time
	DurationMinutes int
	Status          Status
}

// Registry exposes session lookups owned by the scheduling service.
type Registry interface {
	// GetSession returns the session or ErrNotFound.
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)

	// FindSessions returns sessions matching q ordered by start date.
	FindSessions(ctx context.Context, q Query) ([]*Session, error)
}
