package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	bookingDomain "github.com/cragline/service-booking/internal/domain/booking"
	"github.com/cragline/service-booking/internal/domain/session"
)

// ErrLedgerClosed is returned after Close.
var ErrLedgerClosed = errors.New("ledger closed")

type opKind int

const (
	opAdmit opKind = iota
	opRelease
	opCount
	opReconcile
)

var opNames = [...]string{"admit", "release", "count", "reconcile"}

func (o opKind) String() string { return opNames[o] }

// DefaultIdleTimeout is how long a session goroutine lingers without requests
// before it is dropped. Its state is rebuilt from the store on next use.
const DefaultIdleTimeout = 10 * time.Minute

type request struct {
	ctx     context.Context
	op      opKind
	booking *bookingDomain.Booking
	reply   chan reply
}

type reply struct {
	outcome   bookingDomain.AdmissionOutcome
	count     int
	reconcile bookingDomain.ReconcileResult
	err       error
}

// Ledger is a CapacityLedger that funnels every request for a session through
// one goroutine owning that session's count. Different sessions proceed in
// parallel; requests for one session are decided in arrival order.
type Ledger struct {
	sessions    session.Registry
	store       *BookingStore
	idleTimeout time.Duration

	mu     sync.Mutex
	actors map[uuid.UUID]*sessionActor
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithIdleTimeout sets how long an idle session goroutine is kept. Zero keeps
// them until Close.
func WithIdleTimeout(d time.Duration) LedgerOption {
	return func(l *Ledger) { l.idleTimeout = d }
}

// NewLedger creates a Ledger writing admitted bookings into store.
func NewLedger(sessions session.Registry, store *BookingStore, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		sessions:    sessions,
		store:       store,
		idleTimeout: DefaultIdleTimeout,
		actors:      make(map[uuid.UUID]*sessionActor),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Admit(ctx context.Context, b *bookingDomain.Booking) (bookingDomain.AdmissionOutcome, error) {
	r, err := l.submit(ctx, b.SessionID(), opAdmit, b)
	return r.outcome, err
}

func (l *Ledger) Release(ctx context.Context, b *bookingDomain.Booking) error {
	_, err := l.submit(ctx, b.SessionID(), opRelease, b)
	return err
}

func (l *Ledger) ActiveCount(ctx context.Context, sessionID uuid.UUID) (int, error) {
	r, err := l.submit(ctx, sessionID, opCount, nil)
	return r.count, err
}

func (l *Ledger) Reconcile(ctx context.Context, sessionID uuid.UUID) (bookingDomain.ReconcileResult, error) {
	r, err := l.submit(ctx, sessionID, opReconcile, nil)
	r.reconcile.SessionID = sessionID
	return r.reconcile, err
}

// Close stops every session goroutine and waits for them to exit.
func (l *Ledger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Ledger) submit(ctx context.Context, sessionID uuid.UUID, op opKind, b *bookingDomain.Booking) (reply, error) {
	if err := ctx.Err(); err != nil {
		return reply{}, interrupted(op, err)
	}
	a, err := l.acquire(sessionID)
	if err != nil {
		return reply{}, err
	}
	defer l.releaseActor(a)

	req := request{ctx: ctx, op: op, booking: b, reply: make(chan reply, 1)}
	select {
	case a.requests <- req:
	case <-ctx.Done():
		return reply{}, interrupted(op, ctx.Err())
	case <-l.done:
		return reply{}, ErrLedgerClosed
	}

	// Once received, the actor always answers. Waiting here keeps the caller's
	// view in step with what the actor applied.
	r := <-req.reply
	return r, r.err
}

// acquire returns the actor for sessionID and pins it against idle eviction
// until releaseActor.
func (l *Ledger) acquire(sessionID uuid.UUID) (*sessionActor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLedgerClosed
	}
	a, ok := l.actors[sessionID]
	if !ok {
		a = &sessionActor{
			sessionID: sessionID,
			sessions:  l.sessions,
			store:     l.store,
			requests:  make(chan request),
			active:    make(map[uuid.UUID]uuid.UUID),
		}
		l.actors[sessionID] = a
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.run(a)
		}()
	}
	a.pending++
	return a, nil
}

func (l *Ledger) releaseActor(a *sessionActor) {
	l.mu.Lock()
	a.pending--
	l.mu.Unlock()
}

// evict drops a from the actor map unless a caller still holds it.
func (l *Ledger) evict(a *sessionActor) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a.pending > 0 {
		return false
	}
	delete(l.actors, a.sessionID)
	return true
}

func (l *Ledger) actorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.actors)
}

func (l *Ledger) run(a *sessionActor) {
	var idle <-chan time.Time
	var timer *time.Timer
	if l.idleTimeout > 0 {
		timer = time.NewTimer(l.idleTimeout)
		defer timer.Stop()
		idle = timer.C
	}
	for {
		select {
		case req := <-a.requests:
			req.reply <- a.handle(req)
			if timer != nil {
				timer.Reset(l.idleTimeout)
			}
		case <-idle:
			if l.evict(a) {
				return
			}
			timer.Reset(l.idleTimeout)
		case <-l.done:
			return
		}
	}
}

func interrupted(op opKind, err error) error {
	return bookingDomain.NewTransientError("ledger "+op.String(), err)
}

// sessionActor owns the count and the active climber set of one session.
type sessionActor struct {
	sessionID uuid.UUID
	sessions  session.Registry
	store     *BookingStore
	requests  chan request
	pending   int // guarded by Ledger.mu

	seeded bool
	count  int
	active map[uuid.UUID]uuid.UUID // climber -> booking
}

func (a *sessionActor) handle(req request) reply {
	// The caller may have given up while the request was queued.
	if err := req.ctx.Err(); err != nil {
		return reply{err: interrupted(req.op, err)}
	}
	a.seed()
	switch req.op {
	case opAdmit:
		return a.admit(req.ctx, req.booking)
	case opRelease:
		return reply{err: a.release(req.booking)}
	case opCount:
		return reply{count: a.count}
	case opReconcile:
		return a.reconcile(req.ctx)
	}
	return reply{err: errors.New("unknown ledger operation")}
}

func (a *sessionActor) admit(ctx context.Context, b *bookingDomain.Booking) reply {
	sess, err := a.sessions.GetSession(ctx, a.sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return reply{outcome: bookingDomain.AdmissionSessionNotFound}
	}
	if err != nil {
		return reply{err: bookingDomain.NewTransientError("admit booking", err)}
	}
	if err := ctx.Err(); err != nil {
		return reply{err: interrupted(opAdmit, err)}
	}
	if _, ok := a.active[b.ClimberID()]; ok {
		return reply{outcome: bookingDomain.AdmissionAlreadyBooked}
	}
	if a.count >= sess.Capacity {
		return reply{outcome: bookingDomain.AdmissionSessionFull}
	}

	a.store.insert(b)
	a.active[b.ClimberID()] = b.ID()
	a.count++
	return reply{outcome: bookingDomain.Admitted}
}

func (a *sessionActor) release(b *bookingDomain.Booking) error {
	if !a.store.cancel(b) {
		return bookingDomain.NewError(bookingDomain.KindAlreadyCancelled).WithBooking(b.ID())
	}
	if id, ok := a.active[b.ClimberID()]; ok && id == b.ID() {
		delete(a.active, b.ClimberID())
	}
	if a.count > 0 {
		a.count--
	}
	return nil
}

func (a *sessionActor) reconcile(ctx context.Context) reply {
	result := bookingDomain.ReconcileResult{SessionID: a.sessionID, Before: a.count}
	if _, err := a.sessions.GetSession(ctx, a.sessionID); errors.Is(err, session.ErrNotFound) {
		return reply{reconcile: result, err: bookingDomain.NewError(bookingDomain.KindSessionNotFound).WithSession(a.sessionID)}
	}
	a.seeded = false
	a.seed()
	result.After = a.count
	return reply{reconcile: result}
}

// seed loads the active set from stored rows the first time the actor runs.
func (a *sessionActor) seed() {
	if a.seeded {
		return
	}
	rows := a.store.active(a.sessionID)
	a.active = make(map[uuid.UUID]uuid.UUID, len(rows))
	for _, b := range rows {
		a.active[b.ClimberID()] = b.ID()
	}
	a.count = len(rows)
	a.seeded = true
}
