package ports

import (
	"context"
	"time"

	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
)

// UserStore is the durable keyed record store for user accounts.
type UserStore interface {
	// Add fails with domainauth.ErrUserExists when the username is taken.
	Add(ctx context.Context, user domainauth.User) error
	// Get fails with domainauth.ErrUserNotFound when no row matches.
	Get(ctx context.Context, username string) (domainauth.User, error)
	// Replace rewrites the row keyed by oldUsername, which permits renames.
	Replace(ctx context.Context, oldUsername string, user domainauth.User) error
	// Remove deletes the row if present.
	Remove(ctx context.Context, username string) error
	AdminCount(ctx context.Context) (int, error)
}

// SessionTable is the durable sessions table. It holds at most one row per username.
type SessionTable interface {
	// Put replaces the row owned by sess.Username in place, or appends one.
	// It returns the replaced session, if any.
	Put(ctx context.Context, sess domainauth.Session) (prev domainauth.Session, replaced bool, err error)
	// FindByID fails with domainauth.ErrSessionNotFound when no row matches.
	FindByID(ctx context.Context, id string) (domainauth.Session, error)
	// FindByUsername fails with domainauth.ErrSessionNotFound when no row matches.
	FindByUsername(ctx context.Context, username string) (domainauth.Session, error)
	// Delete removes the row with the given id and reports whether one existed.
	Delete(ctx context.Context, id string) (bool, error)
	// PruneExpired drops rows expired at now and returns the survivors.
	PruneExpired(ctx context.Context, now time.Time) ([]domainauth.Session, error)
}

// SessionIndex is an optional lookup accelerator in front of the SessionTable.
// Misses must fall back to the table, which stays authoritative.
type SessionIndex interface {
	Put(ctx context.Context, sess domainauth.Session) error
	LookupID(ctx context.Context, id string) (domainauth.Session, error)
	LookupUsername(ctx context.Context, username string) (domainauth.Session, error)
	Remove(ctx context.Context, sess domainauth.Session) error
	// Clear drops every entry so startup recovery can rebuild the index from the table.
	Clear(ctx context.Context) error
}
