// Package metrics emits the auth server's StatsD metrics.
package metrics

import (
	"time"

	obserrors "github.com/bilyanhadzhi/auth-server-mjt/internal/observability/errors"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess    = "success"
	ResultParseError = "parse_error"
	ResultDenied     = "denied"
	ResultError      = "error"
)

// Login modes.
const (
	LoginPassword = "password"
	LoginSession  = "session"
)

// CommandMetric captures one executed command.
type CommandMetric struct {
	Command  string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitCommand records a command execution and its latency.
func EmitCommand(sink statsd.Sink, in CommandMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"command": in.Command,
		"result":  in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("command.executed", 1, tags)
	if in.Duration > 0 {
		sink.Timing("command.duration", in.Duration, map[string]string{"command": in.Command})
	}
}

// EmitLogin records a login attempt.
func EmitLogin(sink statsd.Sink, mode, result string) {
	if sink == nil {
		return
	}
	sink.Count("login.attempt", 1, map[string]string{"mode": mode, "result": result})
}

// EmitSessionExpired counts sessions removed by the expiry scheduler.
func EmitSessionExpired(sink statsd.Sink) {
	if sink == nil {
		return
	}
	sink.Count("session.expired", 1, nil)
}

// EmitScheduled reports how many expiry deadlines are pending.
func EmitScheduled(sink statsd.Sink, n int) {
	if sink == nil {
		return
	}
	sink.Gauge("sessions.scheduled", float64(n), nil)
}

// EmitConnections reports the number of open client connections.
func EmitConnections(sink statsd.Sink, n int64) {
	if sink == nil {
		return
	}
	sink.Gauge("connections.active", float64(n), nil)
}
