// Package audit defines the events the server records in its audit trail.
package audit

import (
	"fmt"
	"time"
)

// Kind distinguishes the audit event families.
type Kind string

const (
	KindFailedLogin    Kind = "FAILED-LOGIN"
	KindResourceChange Kind = "RESOURCE-CHANGE"
)

// Action names the privileged mutation a resource-change event describes.
type Action string

const (
	ActionAddAdmin    Action = "ADD-ADMIN"
	ActionRemoveAdmin Action = "REMOVE-ADMIN"
)

// Outcome terminates a resource change.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// Event is a single audit record. Which fields are set depends on Kind:
// failed logins carry Actor and RemoteAddr only, a resource-change begin carries
// Action and Target, and a resource-change end carries Outcome.
type Event struct {
	Kind          Kind
	OccurredAt    time.Time
	CorrelationID string
	Actor         string
	RemoteAddr    string
	Action        Action
	Target        string
	Outcome       Outcome
}

// FailedLogin builds a failed password login event.
func FailedLogin(at time.Time, username, remoteAddr string) Event {
	return Event{Kind: KindFailedLogin, OccurredAt: at, Actor: username, RemoteAddr: remoteAddr}
}

// BeginChange builds the event written before a privileged mutation.
func BeginChange(at time.Time, id, performer, remoteAddr string, action Action, target string) Event {
	return Event{
		Kind:          KindResourceChange,
		OccurredAt:    at,
		CorrelationID: id,
		Actor:         performer,
		RemoteAddr:    remoteAddr,
		Action:        action,
		Target:        target,
	}
}

// EndChange builds the event closing a privileged mutation started with BeginChange.
func EndChange(at time.Time, id, performer, remoteAddr string, outcome Outcome) Event {
	return Event{
		Kind:          KindResourceChange,
		OccurredAt:    at,
		CorrelationID: id,
		Actor:         performer,
		RemoteAddr:    remoteAddr,
		Outcome:       outcome,
	}
}

// IsEnd reports whether the event closes a resource change.
func (e Event) IsEnd() bool { return e.Kind == KindResourceChange && e.Outcome != "" }

// String renders the space-delimited audit line, without a trailing newline.
func (e Event) String() string {
	ts := e.OccurredAt.UTC().Format(time.RFC3339)
	switch {
	case e.Kind == KindFailedLogin:
		return fmt.Sprintf("[%s] %s %s %s", ts, e.Kind, e.Actor, e.RemoteAddr)
	case e.IsEnd():
		return fmt.Sprintf("[%s] %s %s %s %s %s", ts, e.Kind, e.CorrelationID, e.Actor, e.RemoteAddr, e.Outcome)
	default:
		return fmt.Sprintf("[%s] %s %s %s %s %s %s",
			ts, e.Kind, e.CorrelationID, e.Actor, e.RemoteAddr, e.Action, e.Target)
	}
}
