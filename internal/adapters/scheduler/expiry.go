// Package scheduler runs the session expiry loop.
//
// A single goroutine keeps every armed session in a min-heap ordered by expiry
// and sleeps until the nearest deadline. Scheduling a session only pushes onto
// the heap and nudges the loop, so arming is cheap regardless of how many
// sessions are active. Entries are never cancelled: a session that was logged
// out or replaced before its deadline makes the firing a no-op in the handler.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/observability/metrics"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/observability/statsd"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/ports"
)

// ExpireFunc invalidates a session whose deadline has passed.
type ExpireFunc func(ctx context.Context, sess domainauth.Session) error

var _ ports.ExpiryScheduler = (*Expiry)(nil)

// Options holds the dependencies for creating an Expiry scheduler.
type Options struct {
	// OnExpire is required. It runs on the scheduler goroutine, one session at a time.
	OnExpire ExpireFunc
	Now      func() time.Time
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// Expiry fires OnExpire for each scheduled session at its expiry instant.
type Expiry struct {
	onExpire ExpireFunc
	now      func() time.Time
	logger   *slog.Logger
	metrics  statsd.Sink

	mu      sync.Mutex
	pending deadlineHeap
	wake    chan struct{}
}

// NewExpiry creates an expiry scheduler. Call Run to start firing.
func NewExpiry(opts Options) (*Expiry, error) {
	if opts.OnExpire == nil {
		return nil, errors.New("expiry handler is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Expiry{
		onExpire: opts.OnExpire,
		now:      opts.Now,
		logger:   opts.Logger.With("component", "expiry_scheduler"),
		metrics:  opts.Metrics,
		wake:     make(chan struct{}, 1),
	}, nil
}

// Schedule arms a one-shot expiry for sess. It never blocks.
func (e *Expiry) Schedule(sess domainauth.Session) {
	e.mu.Lock()
	heap.Push(&e.pending, sess)
	n := e.pending.Len()
	e.mu.Unlock()

	metrics.EmitScheduled(e.metrics, n)

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of armed deadlines, including ones that will turn out stale.
func (e *Expiry) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.Len()
}

// Run fires due sessions until ctx is cancelled. Deadlines still pending at
// shutdown are dropped; startup recovery re-arms them from the sessions table.
func (e *Expiry) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "starting session expiry scheduler", "pending", e.Pending())

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		e.fireDue(ctx)

		wait, ok := e.nextWait()
		if !ok {
			wait = time.Hour
		}
		resetTimer(timer, wait)

		select {
		case <-ctx.Done():
			e.logger.InfoContext(ctx, "session expiry scheduler stopping", "pending", e.Pending())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-e.wake:
		case <-timer.C:
		}
	}
}

// fireDue pops and expires every session whose deadline has passed.
func (e *Expiry) fireDue(ctx context.Context) {
	for {
		sess, ok := e.popDue()
		if !ok {
			return
		}
		if err := e.onExpire(ctx, sess); err != nil {
			e.logger.ErrorContext(ctx, "session expiry failed",
				"session", sess.ShortID(), "username", sess.Username, "error", err)
			continue
		}
		e.logger.DebugContext(ctx, "session expiry fired", "session", sess.ShortID(), "username", sess.Username)
	}
}

func (e *Expiry) popDue() (domainauth.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending.Len() == 0 || e.pending[0].ExpiresAt.After(e.now()) {
		return domainauth.Session{}, false
	}
	sess, _ := heap.Pop(&e.pending).(domainauth.Session)
	return sess, true
}

func (e *Expiry) nextWait() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending.Len() == 0 {
		return 0, false
	}
	d := e.pending[0].ExpiresAt.Sub(e.now())
	if d < 0 {
		d = 0
	}
	return d, true
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// deadlineHeap is a min-heap of sessions keyed by ExpiresAt.
type deadlineHeap []domainauth.Session

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].ExpiresAt.Before(h[j].ExpiresAt) }
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *deadlineHeap) Push(x any) {
	if s, ok := x.(domainauth.Session); ok {
		*h = append(*h, s)
	}
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	*h = old[:n-1]
	return s
}
