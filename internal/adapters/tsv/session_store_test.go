package tsv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
)

func newTestSessionStore(t *testing.T) *SessionStore {
	t.Helper()
	store, err := NewSessionStore(filepath.Join(t.TempDir(), "sessions.tsv"), nil)
	require.NoError(t, err)
	return store
}

func TestSessionStore_PutReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	store := newTestSessionStore(t)
	exp := time.Now().Add(time.Hour).UTC()

	first := domainauth.Session{ID: "s1", Username: "alice", ExpiresAt: exp}
	_, replaced, err := store.Put(ctx, first)
	require.NoError(t, err)
	assert.False(t, replaced)

	_, _, err = store.Put(ctx, domainauth.Session{ID: "s2", Username: "bob", ExpiresAt: exp})
	require.NoError(t, err)

	second := domainauth.Session{ID: "s3", Username: "alice", ExpiresAt: exp.Add(time.Minute)}
	prev, replaced, err := store.Put(ctx, second)
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, "s1", prev.ID)

	_, err = store.FindByID(ctx, "s1")
	require.ErrorIs(t, err, domainauth.ErrSessionNotFound)

	got, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "s3", got.ID)
	assert.True(t, second.ExpiresAt.Equal(got.ExpiresAt))

	all, err := store.table.values(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "s3", all[0].ID, "row order is preserved")
}

func TestSessionStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestSessionStore(t)
	_, _, err := store.Put(ctx, domainauth.Session{ID: "s1", Username: "alice", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	removed, err := store.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Delete(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSessionStore_PruneExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestSessionStore(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{-time.Hour, time.Hour, 0, 2 * time.Hour} {
		_, _, err := store.Put(ctx, domainauth.Session{
			ID:        fmt.Sprintf("s%d", i),
			Username:  fmt.Sprintf("u%d", i),
			ExpiresAt: now.Add(offset),
		})
		require.NoError(t, err)
	}

	survivors, err := store.PruneExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, survivors, 2)
	assert.Equal(t, "s1", survivors[0].ID)
	assert.Equal(t, "s3", survivors[1].ID)

	_, err = store.FindByID(ctx, "s0")
	require.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}

func TestSessionStore_PruneWithoutExpiredLeavesFileAlone(t *testing.T) {
	ctx := context.Background()
	store := newTestSessionStore(t)
	_, _, err := store.Put(ctx, domainauth.Session{ID: "s1", Username: "alice", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	before, err := os.Stat(store.Path())
	require.NoError(t, err)

	survivors, err := store.PruneExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Len(t, survivors, 1)

	after, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.True(t, os.SameFile(before, after), "file was not replaced")
}

// An expiry firing and a re-login for the same user race on the table; the
// table lock must keep both effects.
func TestSessionStore_ConcurrentDeleteAndPutKeepBothEffects(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	for round := 0; round < 25; round++ {
		store := newTestSessionStore(t)
		_, _, err := store.Put(ctx, domainauth.Session{ID: "old-bob", Username: "bob", ExpiresAt: exp})
		require.NoError(t, err)
		_, _, err = store.Put(ctx, domainauth.Session{ID: "old-alice", Username: "alice", ExpiresAt: exp})
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, derr := store.Delete(ctx, "old-bob")
			assert.NoError(t, derr)
		}()
		go func() {
			defer wg.Done()
			_, _, perr := store.Put(ctx, domainauth.Session{ID: "new-alice", Username: "alice", ExpiresAt: exp})
			assert.NoError(t, perr)
		}()
		wg.Wait()

		_, err = store.FindByID(ctx, "old-bob")
		require.ErrorIs(t, err, domainauth.ErrSessionNotFound)
		got, err := store.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, "new-alice", got.ID)
	}
}

func TestSessionStore_SkipsCorruptRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.tsv")
	exp := time.Now().Add(time.Hour).UTC().Format(time.RFC3339Nano)
	content := "s1\talice\t" + exp + "\n" +
		"s2\tbob\tyesterday\n" +
		"s3\tcarol\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := NewSessionStore(path, nil)
	require.NoError(t, err)

	survivors, err := store.PruneExpired(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, survivors, 1)
	assert.Equal(t, "alice", survivors[0].Username)
}
