// Package auditlog implements the audit trail sinks: an append-only text
// file, a PostgreSQL table and a fan-out over any number of them.
package auditlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/domain/audit"
	apperrors "github.com/bilyanhadzhi/auth-server-mjt/internal/errors"
)

// Sink persists a single audit event and reports failures.
type Sink interface {
	Write(ctx context.Context, ev audit.Event) error
}

// FileSink appends one line per event to a text file.
type FileSink struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// OpenFile opens (or creates) the audit file in append mode.
func OpenFile(path string) (*FileSink, error) {
	if path == "" {
		return nil, errors.New("audit log path is required")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return nil, apperrors.Storage(err, path, "open audit log")
	}
	return &FileSink{path: path, f: f}, nil
}

// Write appends ev as a single line. Lines from concurrent callers never interleave.
func (s *FileSink) Write(_ context.Context, ev audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return apperrors.Storage(os.ErrClosed, s.path, "append audit event")
	}
	if _, err := fmt.Fprintln(s.f, ev.String()); err != nil {
		return apperrors.Storage(err, s.path, "append audit event")
	}
	return nil
}

// Path returns the file the sink appends to.
func (s *FileSink) Path() string { return s.path }

// Close flushes and closes the file. Further writes fail.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := errors.Join(s.f.Sync(), s.f.Close())
	s.f = nil
	if err != nil {
		return apperrors.Storage(err, s.path, "close audit log")
	}
	return nil
}
