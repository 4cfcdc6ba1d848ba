// Package memory holds in-process implementations of the booking storage
// contracts, used by tests and the memory storage driver.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	bookingDomain "github.com/cragline/service-booking/internal/domain/booking"
	"github.com/cragline/service-booking/internal/domain/session"
)

// SessionStore is an in-memory session.Registry.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]session.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uuid.UUID]session.Session)}
}

// Save inserts or replaces s.
func (s *SessionStore) Save(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	cp.CoachIDs = slices.Clone(sess.CoachIDs)
	s.sessions[sess.ID] = cp
	return nil
}

// GetSession returns a copy of the session or session.ErrNotFound.
func (s *SessionStore) GetSession(_ context.Context, id uuid.UUID) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &sess, nil
}

// FindSessions returns sessions matching q ordered by date.
func (s *SessionStore) FindSessions(_ context.Context, q session.Query) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*session.Session
	for _, sess := range s.sessions {
		if sess.Date.Before(q.From) || !sess.Date.Before(q.To) {
			continue
		}
		if q.DurationMinutes > 0 && sess.DurationMinutes != q.DurationMinutes {
			continue
		}
		if q.Status != "" && sess.Status != q.Status {
			continue
		}
		cp := sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type linkKey struct {
	parent  uuid.UUID
	climber uuid.UUID
}

// LinkStore is an in-memory access.LinkFinder.
type LinkStore struct {
	mu    sync.RWMutex
	links map[linkKey]struct{}
}

func NewLinkStore() *LinkStore {
	return &LinkStore{links: make(map[linkKey]struct{})}
}

func (s *LinkStore) Link(_ context.Context, parentID, climberID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[linkKey{parentID, climberID}] = struct{}{}
	return nil
}

func (s *LinkStore) Unlink(_ context.Context, parentID, climberID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, linkKey{parentID, climberID})
	return nil
}

func (s *LinkStore) FindLink(_ context.Context, parentID, climberID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.links[linkKey{parentID, climberID}]
	return ok, nil
}

// BookingStore holds booking rows. Rows are written only by a Ledger; it
// serves the read side of BookingRepository directly.
type BookingStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*bookingDomain.Booking
}

func NewBookingStore() *BookingStore {
	return &BookingStore{rows: make(map[uuid.UUID]*bookingDomain.Booking)}
}

func (s *BookingStore) FindByID(_ context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.rows[id]
	if !ok {
		return nil, bookingDomain.NewError(bookingDomain.KindBookingNotFound).WithBooking(id)
	}
	return clone(b), nil
}

func (s *BookingStore) FindByBooker(_ context.Context, bookedByID uuid.UUID, filter bookingDomain.ListFilter, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	items, total := s.list(func(b *bookingDomain.Booking) bool {
		return b.BookedByID() == bookedByID && matches(b, filter)
	}, page, limit)
	return items, total, nil
}

func (s *BookingStore) ListAll(_ context.Context, filter bookingDomain.ListFilter, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	items, total := s.list(func(b *bookingDomain.Booking) bool { return matches(b, filter) }, page, limit)
	return items, total, nil
}

func (s *BookingStore) FindActiveBySession(_ context.Context, sessionID uuid.UUID) ([]*bookingDomain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.activeLocked(sessionID)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out, nil
}

func (s *BookingStore) CountByStatus(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, b := range s.rows {
		counts[string(b.Status())]++
	}
	return counts, nil
}

func (s *BookingStore) list(keep func(*bookingDomain.Booking) bool, page, limit int) ([]*bookingDomain.Booking, int64) {
	s.mu.RLock()
	var all []*bookingDomain.Booking
	for _, b := range s.rows {
		if keep(b) {
			all = append(all, clone(b))
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt().After(all[j].CreatedAt()) })
	total := int64(len(all))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		return all, total
	}
	start := (page - 1) * limit
	if start >= len(all) {
		return []*bookingDomain.Booking{}, total
	}
	end := min(start+limit, len(all))
	return all[start:end], total
}

func (s *BookingStore) activeLocked(sessionID uuid.UUID) []*bookingDomain.Booking {
	var out []*bookingDomain.Booking
	for _, b := range s.rows {
		if b.SessionID() == sessionID && b.IsActive() {
			out = append(out, clone(b))
		}
	}
	return out
}

func (s *BookingStore) insert(b *bookingDomain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[b.ID()] = clone(b)
}

// cancel stores b's cancelled state if the stored row is still active.
func (s *BookingStore) cancel(b *bookingDomain.Booking) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[b.ID()]
	if !ok || !cur.IsActive() {
		return false
	}
	s.rows[b.ID()] = clone(b)
	return true
}

func (s *BookingStore) active(sessionID uuid.UUID) []*bookingDomain.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(sessionID)
}

func matches(b *bookingDomain.Booking, f bookingDomain.ListFilter) bool {
	if f.Status != "" && b.Status() != f.Status {
		return false
	}
	if f.ClimberID != uuid.Nil && b.ClimberID() != f.ClimberID {
		return false
	}
	if f.SessionID != uuid.Nil && b.SessionID() != f.SessionID {
		return false
	}
	return true
}

func clone(b *bookingDomain.Booking) *bookingDomain.Booking {
	var cancelledAt = b.CancelledAt()
	if cancelledAt != nil {
		t := *cancelledAt
		cancelledAt = &t
	}
	return bookingDomain.ReconstructBooking(
		b.ID(), b.SessionID(), b.ClimberID(), b.BookedByID(), b.Status(),
		cancelledAt, b.Version(), b.CreatedAt(), b.UpdatedAt(),
	)
}
