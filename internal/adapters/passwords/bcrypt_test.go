package passwords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
)

func TestBcrypt_HashAndVerify(t *testing.T) {
	h := NewBcrypt(bcrypt.MinCost)

	hash, err := h.Hash("Passw0rd1")
	require.NoError(t, err)
	assert.NotEqual(t, "Passw0rd1", hash)

	require.NoError(t, h.Verify(hash, "Passw0rd1"))
	assert.ErrorIs(t, h.Verify(hash, "passw0rd1"), domainauth.ErrWrongCredential)
}

func TestBcrypt_VerifyCorruptHash(t *testing.T) {
	err := NewBcrypt(bcrypt.MinCost).Verify("not-a-hash", "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domainauth.ErrWrongCredential)
}

func TestNewBcrypt_ClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcrypt(0).cost)
	assert.Equal(t, bcrypt.MaxCost, NewBcrypt(99).cost)
	assert.Equal(t, 12, NewBcrypt(12).cost)
}
