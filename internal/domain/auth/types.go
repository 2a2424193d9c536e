package auth

// Package auth contains domain-level types for accounts and sessions.
// It is pure and free of storage/transport concerns.

import (
	"fmt"
	"strings"
	"time"
)

// Authority is a user's privilege tier.
// The string form is what gets persisted in the users table.
type Authority string

const (
	AuthorityUser  Authority = "USER"
	AuthorityAdmin Authority = "ADMIN"
)

// ParseAuthority converts a persisted authority value into an Authority.
func ParseAuthority(s string) (Authority, error) {
	switch a := Authority(strings.TrimSpace(s)); a {
	case AuthorityUser, AuthorityAdmin:
		return a, nil
	default:
		return "", fmt.Errorf("unknown authority %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Authority) UnmarshalText(text []byte) error {
	parsed, err := ParseAuthority(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Authority) String() string { return string(a) }

// Credential is the stored password material plus the consecutive failed-attempt counter.
type Credential struct {
	Hash           string
	FailedAttempts int
}

// Profile holds the user's descriptive data.
type Profile struct {
	FirstName string
	LastName  string
	Email     string
}

// User is a single row of the users table.
// A zero LockedUntil means the account has never been locked.
type User struct {
	Username    string
	Credential  Credential
	Profile     Profile
	Authority   Authority
	LockedUntil time.Time
}

// IsAdmin reports whether the user holds ADMIN authority.
func (u User) IsAdmin() bool { return u.Authority == AuthorityAdmin }

// IsLocked reports whether the account is frozen at the given instant.
func (u User) IsLocked(now time.Time) bool {
	return !u.LockedUntil.IsZero() && u.LockedUntil.After(now)
}

// Session is a time-bounded credential token owned by exactly one username.
type Session struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given instant.
func (s Session) Expired(now time.Time) bool { return !s.ExpiresAt.After(now) }

// ShortID returns a log-safe prefix of the session id.
func (s Session) ShortID() string { return ShortSessionID(s.ID) }

// ShortSessionID truncates a session id for logging.
func ShortSessionID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
