package auditlog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/domain/audit"
	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	events []audit.Event
	err    error
}

func (s *recordingSink) Write(_ context.Context, ev audit.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func TestFanout_WritesEverySinkAndLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	broken := &recordingSink{err: errors.New("disk full")}
	healthy := &recordingSink{}
	f := NewFanout(logger,
		NamedSink{Name: "file", Sink: broken},
		NamedSink{Name: "postgres", Sink: healthy},
	)

	ev := audit.EndChange(testAt, "c-1", "root", "127.0.0.1:1", audit.OutcomeSuccess)
	f.Record(context.Background(), ev)

	assert.Equal(t, []audit.Event{ev}, healthy.events)
	assert.Contains(t, buf.String(), "audit sink write failed")
	assert.Contains(t, buf.String(), `"sink":"file"`)
	assert.Contains(t, buf.String(), "disk full")
}

func TestFanout_NoSinks(t *testing.T) {
	f := NewFanout(nil)
	assert.NotPanics(t, func() {
		f.Record(context.Background(), audit.FailedLogin(testAt, "a", "b"))
	})
}
