package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/domain/audit"
	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/observability/metrics"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/observability/statsd"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/ports"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/service"
)

// Authenticator is the policy surface the command handlers depend on.
type Authenticator interface {
	Register(ctx context.Context, req service.RegisterRequest) error
	LoginWithPassword(ctx context.Context, username, password string) (domainauth.Session, error)
	LoginWithSession(ctx context.Context, sessionID string) (domainauth.Session, error)
	GetUserBySession(ctx context.Context, sessionID string) (domainauth.User, error)
	Logout(ctx context.Context, sessionID string) error
	UpdateUser(ctx context.Context, user domainauth.User, upd service.UserUpdate) (domainauth.User, error)
	ResetPassword(ctx context.Context, user domainauth.User, oldPassword, newPassword string) error
	GrantAdmin(ctx context.Context, username string) (bool, error)
	RevokeAdmin(ctx context.Context, username string) (bool, error)
	DeleteUser(ctx context.Context, username string) error
	AdminCount(ctx context.Context) (int, error)
	Policy() service.Policy
}

var _ Authenticator = (*service.Authenticator)(nil)

// DispatcherOptions groups dependencies for Dispatcher.
type DispatcherOptions struct {
	Auth    Authenticator     // Required
	Audit   ports.AuditLogger // Required
	Now     func() time.Time
	NewID   func() string
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Dispatcher runs the decode, validate and execute pipeline for one request line.
type Dispatcher struct {
	auth    Authenticator
	audit   ports.AuditLogger
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if opts.Audit == nil {
		return nil, errors.New("audit logger is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		auth:    opts.Auth,
		audit:   opts.Audit,
		now:     opts.Now,
		newID:   opts.NewID,
		logger:  opts.Logger.With("component", "dispatcher"),
		metrics: opts.Metrics,
	}, nil
}

// Execute decodes line, runs the command and returns the text to send back.
// It never panics: a handler fault yields an internal error and closes the connection.
func (d *Dispatcher) Execute(ctx context.Context, line, remoteAddr string) Response {
	start := time.Now()
	name, resp, err := d.execute(ctx, line, remoteAddr)
	if err != nil {
		d.logger.ErrorContext(ctx, "command failed",
			"command", name, "remote_addr", remoteAddr, "error", err)
		resp = Response{Text: msgInternalError, Result: metrics.ResultError, Close: resp.Close}
	}

	metrics.EmitCommand(d.metrics, metrics.CommandMetric{
		Command:  name,
		Result:   resp.Result,
		Duration: time.Since(start),
		Err:      err,
	})
	d.logger.DebugContext(ctx, "command executed",
		"command", name, "remote_addr", remoteAddr, "result", resp.Result)
	return resp
}

func (d *Dispatcher) execute(ctx context.Context, line, remoteAddr string) (string, Response, error) {
	req, err := Parse(line)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			return "invalid", parseFailure(perr.Text()), nil
		}
		return "invalid", Response{}, err
	}

	v, known := variants[req.Name]
	if !known {
		return "unknown", parseFailure(msgUnknownCommand), nil
	}
	if msg := checkArgs(v.params, req); msg != "" {
		return v.name, parseFailure(msg), nil
	}

	resp, err := d.invoke(ctx, v, call{args: req.Args, remoteAddr: remoteAddr})
	return v.name, resp, err
}

// invoke runs the handler and turns a panic into an error that closes the connection.
func (d *Dispatcher) invoke(ctx context.Context, v variant, c call) (resp Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "panic",
				slog.Any("error", r),
				slog.String("command", v.name),
				slog.String("stack", string(debug.Stack())))
			resp = Response{Close: true}
			err = fmt.Errorf("panic in %s handler: %v", v.name, r)
		}
	}()
	return v.handler(ctx, d, c)
}

// RegisterAdmin runs a register line with ADMIN authority. It is used to seed
// the admin quorum at startup and reports whether an account was created.
func (d *Dispatcher) RegisterAdmin(ctx context.Context, line string) (bool, Response) {
	req, err := Parse(line)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			return false, parseFailure(perr.Text())
		}
		return false, Response{Text: msgInternalError, Result: metrics.ResultError}
	}
	v := variants[NameRegister]
	if req.Name != NameRegister {
		return false, parseFailure(msgUnknownCommand)
	}
	if msg := checkArgs(v.params, req); msg != "" {
		return false, parseFailure(msg)
	}

	resp, err := register(ctx, d, call{args: req.Args}, domainauth.AuthorityAdmin)
	if err != nil {
		d.logger.ErrorContext(ctx, "admin registration failed", "error", err)
		return false, Response{Text: msgInternalError, Result: metrics.ResultError}
	}
	return resp.Result == metrics.ResultSuccess, resp
}

func parseFailure(text string) Response {
	return Response{Text: text, Result: metrics.ResultParseError}
}

func (d *Dispatcher) record(ctx context.Context, ev audit.Event) {
	d.audit.Record(ctx, ev)
}
