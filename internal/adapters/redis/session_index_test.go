package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func newTestIndex(t *testing.T, client redis.UniversalClient) *SessionIndex {
	t.Helper()
	idx, err := NewSessionIndex(SessionIndexOptions{Client: client, Prefix: "test:"})
	require.NoError(t, err)
	return idx
}

func TestNewSessionIndex_RequiresClient(t *testing.T) {
	_, err := NewSessionIndex(SessionIndexOptions{})
	require.Error(t, err)
}

func TestSessionIndex_PutAndLookup(t *testing.T) {
	client := setupTestRedis(t)

	idx := newTestIndex(t, client)
	ctx := context.Background()

	sess := domainauth.Session{ID: "sess-1", Username: "alice", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, idx.Put(ctx, sess))

	byID, err := idx.LookupID(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	assert.WithinDuration(t, sess.ExpiresAt, byID.ExpiresAt, time.Second)

	byUser, err := idx.LookupUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", byUser.ID)

	ttl := client.TTL(ctx, "test:session:sess-1").Val()
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestSessionIndex_Miss(t *testing.T) {
	client := setupTestRedis(t)

	idx := newTestIndex(t, client)
	ctx := context.Background()

	_, err := idx.LookupID(ctx, "missing")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
	_, err = idx.LookupUsername(ctx, "nobody")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
	_, err = idx.LookupID(ctx, "")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}

func TestSessionIndex_RemoveKeepsNewerUsernameKey(t *testing.T) {
	client := setupTestRedis(t)

	idx := newTestIndex(t, client)
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	old := domainauth.Session{ID: "old", Username: "alice", ExpiresAt: exp}
	newer := domainauth.Session{ID: "new", Username: "alice", ExpiresAt: exp}
	require.NoError(t, idx.Put(ctx, old))
	require.NoError(t, idx.Put(ctx, newer))

	require.NoError(t, idx.Remove(ctx, old))

	_, err := idx.LookupID(ctx, "old")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
	got, err := idx.LookupUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "new", got.ID)

	require.NoError(t, idx.Remove(ctx, newer))
	_, err = idx.LookupUsername(ctx, "alice")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}

func TestSessionIndex_PutSkipsExpired(t *testing.T) {
	client := setupTestRedis(t)

	idx := newTestIndex(t, client)
	ctx := context.Background()

	require.NoError(t, idx.Put(ctx, domainauth.Session{ID: "gone", Username: "bob", ExpiresAt: time.Now().Add(-time.Minute)}))
	assert.Equal(t, int64(0), client.Exists(ctx, "test:session:gone").Val())
}

func TestSessionIndex_PutRequiresKeys(t *testing.T) {
	idx, err := NewSessionIndex(SessionIndexOptions{Client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})})
	require.NoError(t, err)

	err = idx.Put(context.Background(), domainauth.Session{Username: "bob", ExpiresAt: time.Now().Add(time.Minute)})
	require.Error(t, err)
}

func TestSessionIndex_ClearOnlyTouchesPrefix(t *testing.T) {
	client := setupTestRedis(t)

	idx := newTestIndex(t, client)
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	for i := 0; i < clearBatch+20; i++ {
		sess := domainauth.Session{ID: fmt.Sprintf("sess-%d", i), Username: fmt.Sprintf("user-%d", i), ExpiresAt: exp}
		require.NoError(t, idx.Put(ctx, sess))
	}
	require.NoError(t, client.Set(ctx, "other:key", "v", time.Minute).Err())

	require.NoError(t, idx.Clear(ctx))

	_, err := idx.LookupID(ctx, "sess-0")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
	_, err = idx.LookupUsername(ctx, "user-119")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
	keys, err := client.Keys(ctx, "test:*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Equal(t, "v", client.Get(ctx, "other:key").Val())
}
