// Package passwords implements password hashing with bcrypt.
package passwords

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/ports"
)

var _ ports.PasswordHasher = (*Bcrypt)(nil)

// Bcrypt hashes passwords with a fixed cost.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a hasher using cost, clamped to bcrypt's accepted range.
func NewBcrypt(cost int) *Bcrypt {
	switch {
	case cost < bcrypt.MinCost:
		cost = bcrypt.DefaultCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Bcrypt{cost: cost}
}

// Hash returns the bcrypt hash of password.
func (b *Bcrypt) Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Verify compares password against hash.
func (b *Bcrypt) Verify(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return domainauth.ErrWrongCredential
	default:
		return fmt.Errorf("verify password: %w", err)
	}
}
