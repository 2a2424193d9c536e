package ports

// Package ports defines interfaces (hexagonal ports) for the auth server.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/domain/audit"
	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
)

// PasswordHasher hashes and verifies passwords. The hash format is opaque to callers.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify returns nil on match and domainauth.ErrWrongCredential on mismatch.
	Verify(hash, password string) error
}

// Validator checks a single value and returns every violated rule.
// An empty result means the value is acceptable.
type Validator interface {
	Validate(value string) []string
}

// AuditLogger appends audit events. Recording is fire-and-forget from the caller's view.
type AuditLogger interface {
	Record(ctx context.Context, ev audit.Event)
}

// ExpiryScheduler arms a one-shot invalidation at a session's expiry instant.
type ExpiryScheduler interface {
	Schedule(sess domainauth.Session)
}
