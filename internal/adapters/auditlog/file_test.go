package auditlog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/domain/audit"
	apperrors "github.com/bilyanhadzhi/auth-server-mjt/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAt = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
}

func TestFileSink_AppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink, err := OpenFile(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Write(ctx, audit.FailedLogin(testAt, "alice", "127.0.0.1:5000")))
	require.NoError(t, sink.Write(ctx, audit.BeginChange(testAt, "c-1", "root", "127.0.0.1:5001", audit.ActionAddAdmin, "bob")))
	require.NoError(t, sink.Close())

	assert.Equal(t, []string{
		"[2024-01-01T12:00:00Z] FAILED-LOGIN alice 127.0.0.1:5000",
		"[2024-01-01T12:00:00Z] RESOURCE-CHANGE c-1 root 127.0.0.1:5001 ADD-ADMIN bob",
	}, readLines(t, path))
}

func TestFileSink_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	for _, user := range []string{"a", "b"} {
		sink, err := OpenFile(path)
		require.NoError(t, err)
		require.NoError(t, sink.Write(context.Background(), audit.FailedLogin(testAt, user, "x")))
		require.NoError(t, sink.Close())
	}
	assert.Len(t, readLines(t, path), 2)
}

func TestFileSink_ConcurrentWritesDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	sink, err := OpenFile(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				assert.NoError(t, sink.Write(context.Background(), audit.FailedLogin(testAt, "user", "10.0.0.1:1")))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, sink.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 400)
	for _, l := range lines {
		assert.Equal(t, "[2024-01-01T12:00:00Z] FAILED-LOGIN user 10.0.0.1:1", l)
	}
}

func TestFileSink_WriteAfterClose(t *testing.T) {
	sink, err := OpenFile(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	err = sink.Write(context.Background(), audit.FailedLogin(testAt, "a", "b"))
	require.Error(t, err)
	assert.True(t, apperrors.IsStorage(err))
}

func TestOpenFile_Errors(t *testing.T) {
	_, err := OpenFile("")
	require.Error(t, err)

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing", "audit.log"))
	require.Error(t, err)
	assert.True(t, apperrors.IsStorage(err))
}
