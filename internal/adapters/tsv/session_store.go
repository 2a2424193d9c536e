package tsv

import (
	"context"
	"errors"
	"log/slog"
	"time"

	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/ports"
)

// Column order: id, username, expires-at.
const sessionColumns = 3

var _ ports.SessionTable = (*SessionStore)(nil)

// SessionStore is the durable sessions table. It holds at most one row per username.
type SessionStore struct {
	table *table[domainauth.Session]
}

// NewSessionStore opens (creating if needed) the sessions table at path.
func NewSessionStore(path string, logger *slog.Logger) (*SessionStore, error) {
	t, err := newTable(path, codec[domainauth.Session]{
		columns: sessionColumns,
		encode:  encodeSession,
		decode:  decodeSession,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &SessionStore{table: t}, nil
}

// Path returns the file backing the store.
func (s *SessionStore) Path() string { return s.table.path }

// Put rewrites the row owned by sess.Username in place, or appends one.
func (s *SessionStore) Put(ctx context.Context, sess domainauth.Session) (domainauth.Session, bool, error) {
	var (
		prev     domainauth.Session
		replaced bool
	)
	err := s.table.mutate(ctx, func(rows []entry[domainauth.Session]) ([]entry[domainauth.Session], bool, error) {
		for i, r := range rows {
			if r.ok && r.value.Username == sess.Username {
				prev, replaced = r.value, true
				rows[i] = valid(sess)
				return rows, true, nil
			}
		}
		return append(rows, valid(sess)), true, nil
	})
	if err != nil {
		return domainauth.Session{}, false, err
	}
	return prev, replaced, nil
}

// FindByID returns the session with the given id.
func (s *SessionStore) FindByID(ctx context.Context, id string) (domainauth.Session, error) {
	return s.findBy(ctx, func(sess domainauth.Session) bool { return sess.ID == id })
}

// FindByUsername returns the session owned by username.
func (s *SessionStore) FindByUsername(ctx context.Context, username string) (domainauth.Session, error) {
	return s.findBy(ctx, func(sess domainauth.Session) bool { return sess.Username == username })
}

func (s *SessionStore) findBy(ctx context.Context, pred func(domainauth.Session) bool) (domainauth.Session, error) {
	sess, ok, err := s.table.find(ctx, pred)
	if err != nil {
		return domainauth.Session{}, err
	}
	if !ok {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	return sess, nil
}

// Delete removes the row with the given id. Deleting an absent id is a no-op.
func (s *SessionStore) Delete(ctx context.Context, id string) (bool, error) {
	removed := false
	err := s.table.mutate(ctx, func(rows []entry[domainauth.Session]) ([]entry[domainauth.Session], bool, error) {
		out := rows[:0]
		for _, r := range rows {
			if r.ok && r.value.ID == id {
				removed = true
				continue
			}
			out = append(out, r)
		}
		return out, removed, nil
	})
	return removed, err
}

// PruneExpired drops rows that are expired at now and returns the survivors.
func (s *SessionStore) PruneExpired(ctx context.Context, now time.Time) ([]domainauth.Session, error) {
	var survivors []domainauth.Session
	err := s.table.mutate(ctx, func(rows []entry[domainauth.Session]) ([]entry[domainauth.Session], bool, error) {
		out := rows[:0]
		pruned := 0
		for _, r := range rows {
			if r.ok && r.value.Expired(now) {
				pruned++
				continue
			}
			if r.ok {
				survivors = append(survivors, r.value)
			}
			out = append(out, r)
		}
		if pruned > 0 {
			s.table.logger.InfoContext(ctx, "pruned expired sessions", "count", pruned)
		}
		return out, pruned > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return survivors, nil
}

func encodeSession(s domainauth.Session) []string {
	return []string{s.ID, s.Username, encodeTime(s.ExpiresAt)}
}

func decodeSession(f []string) (domainauth.Session, error) {
	if f[0] == "" || f[1] == "" {
		return domainauth.Session{}, errors.New("empty session id or username")
	}
	expiresAt, err := decodeTime(f[2])
	if err != nil {
		return domainauth.Session{}, err
	}
	if expiresAt.IsZero() {
		return domainauth.Session{}, errors.New("session without expiry")
	}
	return domainauth.Session{ID: f[0], Username: f[1], ExpiresAt: expiresAt}, nil
}
