package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/observability/metrics"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/observability/statsd"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/ports"
)

// SessionRegistryOptions groups dependencies for SessionRegistry.
type SessionRegistryOptions struct {
	Users    ports.UserStore
	Sessions ports.SessionTable
	// Index is optional. Lookups consult it first and fall back to the table.
	Index     ports.SessionIndex
	Scheduler ports.ExpiryScheduler
	// SessionLength is how long a freshly minted session stays valid.
	SessionLength time.Duration

	Now     func() time.Time
	NewID   func() string
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// SessionRegistry owns the session lifecycle: minting, lookup, invalidation and expiry.
// The sessions table is the source of truth; at most one row exists per username.
type SessionRegistry struct {
	users     ports.UserStore
	sessions  ports.SessionTable
	index     ports.SessionIndex
	scheduler ports.ExpiryScheduler
	length    time.Duration
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
	metrics   statsd.Sink

	// mu serializes a table mutation together with the matching index update.
	mu sync.Mutex
	// indexOK turns false after a failed index write; from then on lookups go to the table.
	indexOK atomic.Bool
}

// NewSessionRegistry constructs a SessionRegistry.
func NewSessionRegistry(opts SessionRegistryOptions) (*SessionRegistry, error) {
	if opts.Users == nil || opts.Sessions == nil {
		return nil, errors.New("user store and session table are required")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("expiry scheduler is required")
	}
	if opts.SessionLength <= 0 {
		return nil, errors.New("session length must be positive")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &SessionRegistry{
		users:     opts.Users,
		sessions:  opts.Sessions,
		index:     opts.Index,
		scheduler: opts.Scheduler,
		length:    opts.SessionLength,
		now:       opts.Now,
		newID:     opts.NewID,
		logger:    opts.Logger.With("component", "session_registry"),
		metrics:   opts.Metrics,
	}
	r.indexOK.Store(opts.Index != nil)
	return r, nil
}

// Recover prunes sessions that expired while the process was down, rebuilds the
// index from the surviving rows and re-arms their expiry. It returns the number of
// sessions re-armed.
func (r *SessionRegistry) Recover(ctx context.Context) (int, error) {
	r.mu.Lock()
	survivors, err := r.sessions.PruneExpired(ctx, r.now())
	if err == nil {
		r.indexClear(ctx)
		for _, s := range survivors {
			r.indexPut(ctx, s)
		}
	}
	r.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("prune expired sessions: %w", err)
	}

	for _, s := range survivors {
		r.scheduler.Schedule(s)
	}
	r.logger.InfoContext(ctx, "session registry recovered", "sessions", len(survivors))
	return len(survivors), nil
}

// Login mints a new session for username, replacing any session the user already
// had, and arms its expiry.
func (r *SessionRegistry) Login(ctx context.Context, username string) (domainauth.Session, error) {
	user, err := r.users.Get(ctx, username)
	if err != nil {
		return domainauth.Session{}, err
	}
	now := r.now()
	if user.IsLocked(now) {
		return domainauth.Session{}, domainauth.ErrLockedUser
	}

	sess := domainauth.Session{
		ID:        r.newID(),
		Username:  user.Username,
		ExpiresAt: now.Add(r.length),
	}

	r.mu.Lock()
	prev, replaced, err := r.sessions.Put(ctx, sess)
	if err == nil {
		if replaced {
			r.indexRemove(ctx, prev)
		}
		r.indexPut(ctx, sess)
	}
	r.mu.Unlock()
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("store session: %w", err)
	}

	r.scheduler.Schedule(sess)
	r.logger.InfoContext(ctx, "session created",
		"username", sess.Username, "session", sess.ShortID(), "replaced", replaced)
	return sess, nil
}

// GetUserBySession resolves a session id to its owner.
func (r *SessionRegistry) GetUserBySession(ctx context.Context, id string) (domainauth.User, error) {
	sess, err := r.lookup(ctx, id, r.lookupIndexID, r.sessions.FindByID)
	if err != nil {
		return domainauth.User{}, err
	}
	user, err := r.users.Get(ctx, sess.Username)
	if errors.Is(err, domainauth.ErrUserNotFound) {
		return domainauth.User{}, domainauth.ErrSessionNotFound
	}
	return user, err
}

// GetSessionByUsername returns the live session owned by username.
func (r *SessionRegistry) GetSessionByUsername(ctx context.Context, username string) (domainauth.Session, error) {
	return r.lookup(ctx, username, r.lookupIndexUsername, r.sessions.FindByUsername)
}

// Invalidate removes sess. Invalidating a session that is already gone is a no-op.
func (r *SessionRegistry) Invalidate(ctx context.Context, sess domainauth.Session) error {
	_, err := r.remove(ctx, sess)
	return err
}

// Expire is the expiry scheduler's callback. A session that was replaced or
// logged out before its deadline is already gone and nothing happens.
func (r *SessionRegistry) Expire(ctx context.Context, sess domainauth.Session) error {
	removed, err := r.remove(ctx, sess)
	if err != nil {
		return err
	}
	if removed {
		metrics.EmitSessionExpired(r.metrics)
		r.logger.InfoContext(ctx, "session expired", "username", sess.Username, "session", sess.ShortID())
	}
	return nil
}

func (r *SessionRegistry) remove(ctx context.Context, sess domainauth.Session) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed, err := r.sessions.Delete(ctx, sess.ID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	if removed {
		r.indexRemove(ctx, sess)
	}
	return removed, nil
}

type (
	indexLookup func(ctx context.Context, key string) (domainauth.Session, error)
	tableLookup func(ctx context.Context, key string) (domainauth.Session, error)
)

func (r *SessionRegistry) lookup(ctx context.Context, key string, idx indexLookup, tbl tableLookup) (domainauth.Session, error) {
	now := r.now()
	if r.indexOK.Load() {
		sess, err := idx(ctx, key)
		switch {
		case err == nil && !sess.Expired(now):
			return sess, nil
		case err != nil && !errors.Is(err, domainauth.ErrSessionNotFound):
			r.logger.WarnContext(ctx, "session index lookup failed, scanning table", "error", err)
		}
	}

	sess, err := tbl(ctx, key)
	if err != nil {
		return domainauth.Session{}, err
	}
	if sess.Expired(now) {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	return sess, nil
}

func (r *SessionRegistry) lookupIndexID(ctx context.Context, id string) (domainauth.Session, error) {
	return r.index.LookupID(ctx, id)
}

func (r *SessionRegistry) lookupIndexUsername(ctx context.Context, username string) (domainauth.Session, error) {
	return r.index.LookupUsername(ctx, username)
}

func (r *SessionRegistry) indexPut(ctx context.Context, sess domainauth.Session) {
	if !r.indexOK.Load() {
		return
	}
	if err := r.index.Put(ctx, sess); err != nil {
		r.disableIndex(ctx, err)
	}
}

func (r *SessionRegistry) indexRemove(ctx context.Context, sess domainauth.Session) {
	if !r.indexOK.Load() {
		return
	}
	if err := r.index.Remove(ctx, sess); err != nil {
		r.disableIndex(ctx, err)
	}
}

func (r *SessionRegistry) indexClear(ctx context.Context) {
	if !r.indexOK.Load() {
		return
	}
	if err := r.index.Clear(ctx); err != nil {
		r.disableIndex(ctx, err)
	}
}

// disableIndex stops trusting the index once it may hold a stale entry.
func (r *SessionRegistry) disableIndex(ctx context.Context, err error) {
	if r.indexOK.CompareAndSwap(true, false) {
		r.logger.ErrorContext(ctx, "session index write failed, falling back to table scans", "error", err)
	}
}

// InvalidateUser removes whatever session row username owns, expired or not.
func (r *SessionRegistry) InvalidateUser(ctx context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.sessions.FindByUsername(ctx, username)
	if errors.Is(err, domainauth.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	removed, err := r.sessions.Delete(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if removed {
		r.indexRemove(ctx, sess)
	}
	return nil
}

// Rename moves the session owned by oldUsername to newUsername, keeping its id and expiry.
func (r *SessionRegistry) Rename(ctx context.Context, oldUsername, newUsername string) error {
	if oldUsername == newUsername {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.sessions.FindByUsername(ctx, oldUsername)
	if errors.Is(err, domainauth.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := r.sessions.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	r.indexRemove(ctx, sess)

	moved := sess
	moved.Username = newUsername
	if _, _, err := r.sessions.Put(ctx, moved); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	r.indexPut(ctx, moved)
	return nil
}
