package auditlog

import (
	"context"
	"testing"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/domain/audit"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostgresSink_RequiresDB(t *testing.T) {
	_, err := NewPostgresSink(nil)
	require.Error(t, err)
}

func TestPostgresSink_RoundTripsChangePair(t *testing.T) {
	db := testutil.SetupAutoDB(t)
	sink, err := NewPostgresSink(db)
	require.NoError(t, err)

	ctx := context.Background()
	id := uuid.NewString()
	begin := audit.BeginChange(testAt, id, "root", "127.0.0.1:4000", audit.ActionRemoveAdmin, "bob")
	end := audit.EndChange(testAt.Add(1), id, "root", "127.0.0.1:4000", audit.OutcomeFailure)

	require.NoError(t, sink.Write(ctx, begin))
	require.NoError(t, sink.Write(ctx, end))
	require.NoError(t, sink.Write(ctx, audit.FailedLogin(testAt, "mallory", "10.0.0.9:1")))

	got, err := sink.ByCorrelation(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, begin.String(), got[0].String())
	assert.Equal(t, end.String(), got[1].String())
	assert.True(t, got[1].IsEnd())
}

func TestPostgresSink_RejectsUnknownKind(t *testing.T) {
	db := testutil.SetupAutoDB(t)
	sink, err := NewPostgresSink(db)
	require.NoError(t, err)

	err = sink.Write(context.Background(), audit.Event{Kind: "BOGUS", OccurredAt: testAt, Actor: "a", RemoteAddr: "b"})
	require.Error(t, err)
}
