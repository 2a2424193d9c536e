package auditlog

import (
	"context"
	"log/slog"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/domain/audit"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/ports"
)

// NamedSink pairs a sink with the name used in logs.
type NamedSink struct {
	Name string
	Sink Sink
}

// Fanout records every event in each configured sink. A failing sink is logged
// and does not stop the others, so callers never see audit errors.
type Fanout struct {
	sinks  []NamedSink
	logger *slog.Logger
}

var _ ports.AuditLogger = (*Fanout)(nil)

// NewFanout builds an AuditLogger over sinks. A nil logger uses slog.Default().
func NewFanout(logger *slog.Logger, sinks ...NamedSink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{sinks: sinks, logger: logger.With("component", "audit")}
}

// Record implements ports.AuditLogger.
func (f *Fanout) Record(ctx context.Context, ev audit.Event) {
	for _, s := range f.sinks {
		if err := s.Sink.Write(ctx, ev); err != nil {
			f.logger.ErrorContext(ctx, "audit sink write failed",
				"sink", s.Name,
				"kind", string(ev.Kind),
				"correlation_id", ev.CorrelationID,
				"error", err,
			)
		}
	}
}
