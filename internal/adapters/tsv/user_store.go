package tsv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/ports"
)

// Column order: username, password hash, first name, last name, email, authority,
// failed attempts, lock-until (or NULL).
const userColumns = 8

var _ ports.UserStore = (*UserStore)(nil)

// UserStore is the record store for user accounts.
type UserStore struct {
	table *table[domainauth.User]
}

// NewUserStore opens (creating if needed) the users table at path.
func NewUserStore(path string, logger *slog.Logger) (*UserStore, error) {
	t, err := newTable(path, codec[domainauth.User]{
		columns: userColumns,
		encode:  encodeUser,
		decode:  decodeUser,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &UserStore{table: t}, nil
}

// Path returns the file backing the store.
func (s *UserStore) Path() string { return s.table.path }

// Add appends a user, failing with domainauth.ErrUserExists if the username is taken.
func (s *UserStore) Add(ctx context.Context, user domainauth.User) error {
	return s.table.mutate(ctx, func(rows []entry[domainauth.User]) ([]entry[domainauth.User], bool, error) {
		for _, r := range rows {
			if r.ok && r.value.Username == user.Username {
				return nil, false, domainauth.ErrUserExists
			}
		}
		return append(rows, valid(user)), true, nil
	})
}

// Get returns the user with the given username.
func (s *UserStore) Get(ctx context.Context, username string) (domainauth.User, error) {
	u, ok, err := s.table.find(ctx, func(u domainauth.User) bool { return u.Username == username })
	if err != nil {
		return domainauth.User{}, err
	}
	if !ok {
		return domainauth.User{}, domainauth.ErrUserNotFound
	}
	return u, nil
}

// Replace rewrites the row keyed by oldUsername. When the record carries a new
// username, the rename must not collide with another row.
func (s *UserStore) Replace(ctx context.Context, oldUsername string, user domainauth.User) error {
	return s.table.mutate(ctx, func(rows []entry[domainauth.User]) ([]entry[domainauth.User], bool, error) {
		idx := -1
		for i, r := range rows {
			if !r.ok {
				continue
			}
			switch r.value.Username {
			case oldUsername:
				idx = i
			case user.Username:
				return nil, false, domainauth.ErrUserExists
			}
		}
		if idx < 0 {
			return nil, false, domainauth.ErrUserNotFound
		}
		rows[idx] = valid(user)
		return rows, true, nil
	})
}

// Remove deletes the row if present.
func (s *UserStore) Remove(ctx context.Context, username string) error {
	return s.table.mutate(ctx, func(rows []entry[domainauth.User]) ([]entry[domainauth.User], bool, error) {
		out := rows[:0]
		removed := false
		for _, r := range rows {
			if r.ok && r.value.Username == username {
				removed = true
				continue
			}
			out = append(out, r)
		}
		return out, removed, nil
	})
}

// AdminCount returns the number of ADMIN-authority rows.
func (s *UserStore) AdminCount(ctx context.Context) (int, error) {
	users, err := s.table.values(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, u := range users {
		if u.IsAdmin() {
			n++
		}
	}
	return n, nil
}

func encodeUser(u domainauth.User) []string {
	return []string{
		u.Username,
		u.Credential.Hash,
		u.Profile.FirstName,
		u.Profile.LastName,
		u.Profile.Email,
		u.Authority.String(),
		strconv.Itoa(u.Credential.FailedAttempts),
		encodeTime(u.LockedUntil),
	}
}

func decodeUser(f []string) (domainauth.User, error) {
	if f[0] == "" {
		return domainauth.User{}, errors.New("empty username")
	}
	authority, err := domainauth.ParseAuthority(f[5])
	if err != nil {
		return domainauth.User{}, err
	}
	failed, err := strconv.Atoi(f[6])
	if err != nil || failed < 0 {
		return domainauth.User{}, fmt.Errorf("bad failed-attempt count %q", f[6])
	}
	lockedUntil, err := decodeTime(f[7])
	if err != nil {
		return domainauth.User{}, err
	}
	return domainauth.User{
		Username:   f[0],
		Credential: domainauth.Credential{Hash: f[1], FailedAttempts: failed},
		Profile: domainauth.Profile{
			FirstName: f[2],
			LastName:  f[3],
			Email:     f[4],
		},
		Authority:   authority,
		LockedUntil: lockedUntil,
	}, nil
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return nullValue
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) (time.Time, error) {
	if s == nullValue {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}
