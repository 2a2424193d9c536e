package auditlog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/domain/audit"
	apperrors "github.com/bilyanhadzhi/auth-server-mjt/internal/errors"
)

const insertEvent = `
	INSERT INTO audit_events (
		occurred_at, kind, correlation_id, actor, remote_addr, action, target, outcome
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// PostgresSink stores events in the audit_events table.
type PostgresSink struct{ DB *sql.DB }

// NewPostgresSink wraps an open database handle whose schema is migrated.
func NewPostgresSink(db *sql.DB) (*PostgresSink, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	return &PostgresSink{DB: db}, nil
}

// Write inserts ev. Fields that do not apply to the event's kind are stored as NULL.
func (s *PostgresSink) Write(ctx context.Context, ev audit.Event) error {
	_, err := s.DB.ExecContext(ctx, insertEvent,
		ev.OccurredAt.UTC(),
		string(ev.Kind),
		nullable(ev.CorrelationID),
		ev.Actor,
		ev.RemoteAddr,
		nullable(string(ev.Action)),
		nullable(ev.Target),
		nullable(string(ev.Outcome)),
	)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// ByCorrelation returns the events sharing a correlation id in insertion order.
func (s *PostgresSink) ByCorrelation(ctx context.Context, correlationID string) ([]audit.Event, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT occurred_at, kind, correlation_id, actor, remote_addr, action, target, outcome
		FROM audit_events
		WHERE correlation_id = $1
		ORDER BY id ASC`, correlationID)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			ev                                    audit.Event
			kind                                  string
			corr, remote, action, target, outcome sql.NullString
		)
		if err := rows.Scan(&ev.OccurredAt, &kind, &corr, &ev.Actor, &remote, &action, &target, &outcome); err != nil {
			return nil, apperrors.MapDBError(err)
		}
		ev.Kind = audit.Kind(kind)
		ev.CorrelationID = corr.String
		ev.RemoteAddr = remote.String
		ev.Action = audit.Action(action.String)
		ev.Target = target.String
		ev.Outcome = audit.Outcome(outcome.String)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return events, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
