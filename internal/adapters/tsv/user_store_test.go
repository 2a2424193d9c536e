package tsv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
	apperrors "github.com/bilyanhadzhi/auth-server-mjt/internal/errors"
)

func newTestUserStore(t *testing.T) *UserStore {
	t.Helper()
	store, err := NewUserStore(filepath.Join(t.TempDir(), "users.tsv"), nil)
	require.NoError(t, err)
	return store
}

func testUser(name string, authority domainauth.Authority) domainauth.User {
	return domainauth.User{
		Username:   name,
		Credential: domainauth.Credential{Hash: "$2a$10$hash-of-" + name},
		Profile: domainauth.Profile{
			FirstName: "First",
			LastName:  "Last",
			Email:     name + "@example.com",
		},
		Authority: authority,
	}
}

func TestUserStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	locked := time.Date(2030, 5, 1, 8, 0, 0, 123, time.UTC)

	tests := []struct {
		name string
		user domainauth.User
	}{
		{name: "unlocked user uses NULL sentinel", user: testUser("alice", domainauth.AuthorityUser)},
		{
			name: "locked admin with failures",
			user: func() domainauth.User {
				u := testUser("root", domainauth.AuthorityAdmin)
				u.Credential.FailedAttempts = 2
				u.LockedUntil = locked
				return u
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestUserStore(t)
			require.NoError(t, store.Add(ctx, tt.user))

			got, err := store.Get(ctx, tt.user.Username)
			require.NoError(t, err)
			assert.Equal(t, tt.user.Username, got.Username)
			assert.Equal(t, tt.user.Credential, got.Credential)
			assert.Equal(t, tt.user.Profile, got.Profile)
			assert.Equal(t, tt.user.Authority, got.Authority)
			assert.True(t, tt.user.LockedUntil.Equal(got.LockedUntil))
		})
	}
}

func TestUserStore_PersistsNullSentinel(t *testing.T) {
	store := newTestUserStore(t)
	require.NoError(t, store.Add(context.Background(), testUser("alice", domainauth.AuthorityUser)))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	fields := strings.Split(strings.TrimSpace(string(raw)), "\t")
	require.Len(t, fields, userColumns)
	assert.Equal(t, "NULL", fields[7])
	assert.Equal(t, "USER", fields[5])
	assert.Equal(t, "0", fields[6])
}

func TestUserStore_AddDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newTestUserStore(t)

	require.NoError(t, store.Add(ctx, testUser("alice", domainauth.AuthorityUser)))

	other := testUser("alice", domainauth.AuthorityAdmin)
	other.Profile.Email = "different@example.com"
	err := store.Add(ctx, other)
	require.ErrorIs(t, err, domainauth.ErrUserExists)

	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Profile.Email)
}

func TestUserStore_GetMissing(t *testing.T) {
	_, err := newTestUserStore(t).Get(context.Background(), "ghost")
	require.ErrorIs(t, err, domainauth.ErrUserNotFound)
}

func TestUserStore_ReplaceRenames(t *testing.T) {
	ctx := context.Background()
	store := newTestUserStore(t)
	require.NoError(t, store.Add(ctx, testUser("alice", domainauth.AuthorityUser)))
	require.NoError(t, store.Add(ctx, testUser("bob", domainauth.AuthorityUser)))

	renamed := testUser("alicia", domainauth.AuthorityUser)
	require.NoError(t, store.Replace(ctx, "alice", renamed))

	_, err := store.Get(ctx, "alice")
	require.ErrorIs(t, err, domainauth.ErrUserNotFound)
	_, err = store.Get(ctx, "alicia")
	require.NoError(t, err)

	err = store.Replace(ctx, "alicia", testUser("bob", domainauth.AuthorityUser))
	require.ErrorIs(t, err, domainauth.ErrUserExists)

	err = store.Replace(ctx, "ghost", testUser("ghost", domainauth.AuthorityUser))
	require.ErrorIs(t, err, domainauth.ErrUserNotFound)
}

func TestUserStore_RemoveAndAdminCount(t *testing.T) {
	ctx := context.Background()
	store := newTestUserStore(t)
	require.NoError(t, store.Add(ctx, testUser("root", domainauth.AuthorityAdmin)))
	require.NoError(t, store.Add(ctx, testUser("ops", domainauth.AuthorityAdmin)))
	require.NoError(t, store.Add(ctx, testUser("alice", domainauth.AuthorityUser)))

	n, err := store.AdminCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Remove(ctx, "ops"))
	require.NoError(t, store.Remove(ctx, "ops"), "removing an absent user is a no-op")

	n, err = store.AdminCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUserStore_SkipsCorruptRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.tsv")
	content := strings.Join([]string{
		"broken\trow",
		"alice\th\tA\tB\ta@b.co\tUSER\t0\tNULL",
		"bob\th\tA\tB\tb@b.co\tSUPERUSER\t0\tNULL",
		"carol\th\tA\tB\tc@b.co\tUSER\tnot-a-number\tNULL",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := NewUserStore(path, nil)
	require.NoError(t, err)

	_, err = store.Get(ctx, "alice")
	require.NoError(t, err)
	_, err = store.Get(ctx, "bob")
	require.ErrorIs(t, err, domainauth.ErrUserNotFound)

	require.NoError(t, store.Add(ctx, testUser("dave", domainauth.AuthorityUser)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "broken\trow\n", "corrupt rows survive a rewrite untouched")
	assert.Contains(t, text, "SUPERUSER")
	_, err = store.Get(ctx, "dave")
	require.NoError(t, err)
}

func TestUserStore_SkipsOversizedCorruptRow(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.tsv")
	garbage := strings.Repeat("x", 70*1024)
	content := garbage + "\n" +
		"alice\th\tA\tB\ta@b.co\tUSER\t0\tNULL" // no trailing newline
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := NewUserStore(path, nil)
	require.NoError(t, err)

	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", got.Profile.Email)

	n, err := store.AdminCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, store.Add(ctx, testUser("bob", domainauth.AuthorityAdmin)))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), garbage+"\n"), "oversized corrupt row is carried over")
	_, err = store.Get(ctx, "bob")
	require.NoError(t, err)
}

func TestUserStore_RejectsFramingCharacters(t *testing.T) {
	store := newTestUserStore(t)
	u := testUser("alice", domainauth.AuthorityUser)
	u.Profile.FirstName = "A\tB"

	err := store.Add(context.Background(), u)
	require.ErrorIs(t, err, ErrInvalidField)
}

func TestUserStore_LeavesNoTemporaryFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewUserStore(filepath.Join(dir, "users.tsv"), nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Add(ctx, testUser(fmt.Sprintf("u%d", i), domainauth.AuthorityUser)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "users.tsv", entries[0].Name())
}

func TestUserStore_ConcurrentAddsAreNotLost(t *testing.T) {
	ctx := context.Background()
	store := newTestUserStore(t)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Add(ctx, testUser(fmt.Sprintf("user%02d", i), domainauth.AuthorityUser)))
		}(i)
	}
	wg.Wait()

	users, err := store.table.values(ctx)
	require.NoError(t, err)
	assert.Len(t, users, writers)
}

func TestUserStore_CanceledContext(t *testing.T) {
	store := newTestUserStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Add(ctx, testUser("alice", domainauth.AuthorityUser))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewUserStore_ReportsStorageErrors(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, err := NewUserStore(filepath.Join(blocker, "users.tsv"), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsStorage(err))
}
