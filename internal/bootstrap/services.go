package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/bilyanhadzhi/auth-server-mjt/config"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/adapters/auditlog"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/adapters/passwords"
	redisadapter "github.com/bilyanhadzhi/auth-server-mjt/internal/adapters/redis"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/adapters/scheduler"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/adapters/tsv"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/command"
	domainauth "github.com/bilyanhadzhi/auth-server-mjt/internal/domain/auth"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/observability/statsd"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/ports"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/service"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/validation"
)

// ServiceDeps groups dependencies for service initialization. DB and
// RedisClient are nil when the corresponding feature is disabled.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// ServiceContainer holds the wired application components.
type ServiceContainer struct {
	Users      *tsv.UserStore
	Sessions   *tsv.SessionStore
	Registry   *service.SessionRegistry
	Expiry     *scheduler.Expiry
	Auth       *service.Authenticator
	Dispatcher *command.Dispatcher
	Audit      *auditlog.Fanout
	Metrics    statsd.Sink

	closers []namedCloser
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// NewServices builds every component from configuration. On error, anything
// already opened is closed again.
func NewServices(deps *ServiceDeps) (_ *ServiceContainer, err error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &ServiceContainer{}
	defer func() {
		if err != nil {
			err = errors.Join(err, c.Close())
		}
	}()

	c.Metrics = c.buildMetrics(logger, cfg.Observability.Metrics)

	if c.Users, err = tsv.NewUserStore(cfg.Storage.UsersPath, logger); err != nil {
		return nil, fmt.Errorf("open users table: %w", err)
	}
	if c.Sessions, err = tsv.NewSessionStore(cfg.Storage.SessionsPath, logger); err != nil {
		return nil, fmt.Errorf("open sessions table: %w", err)
	}
	if c.Audit, err = c.buildAudit(logger, cfg, deps.DB); err != nil {
		return nil, err
	}

	var index ports.SessionIndex
	if deps.RedisClient != nil {
		if index, err = redisadapter.NewSessionIndex(redisadapter.SessionIndexOptions{
			Client: deps.RedisClient,
			Prefix: cfg.Redis.KeyPrefix,
		}); err != nil {
			return nil, fmt.Errorf("create session index: %w", err)
		}
	}

	// The scheduler fires into the registry, which in turn arms the scheduler.
	var registry *service.SessionRegistry
	if c.Expiry, err = scheduler.NewExpiry(scheduler.Options{
		OnExpire: func(ctx context.Context, sess domainauth.Session) error {
			return registry.Expire(ctx, sess)
		},
		Logger:  logger,
		Metrics: c.Metrics,
	}); err != nil {
		return nil, fmt.Errorf("create expiry scheduler: %w", err)
	}

	if registry, err = service.NewSessionRegistry(service.SessionRegistryOptions{
		Users:         c.Users,
		Sessions:      c.Sessions,
		Index:         index,
		Scheduler:     c.Expiry,
		SessionLength: cfg.Policy.SessionLength,
		Logger:        logger,
		Metrics:       c.Metrics,
	}); err != nil {
		return nil, fmt.Errorf("create session registry: %w", err)
	}
	c.Registry = registry

	if c.Auth, err = service.NewAuthenticator(service.AuthenticatorOptions{
		Users:    c.Users,
		Sessions: registry,
		Hasher:   passwords.NewBcrypt(cfg.Policy.BcryptCost),
		Validators: service.Validators{
			Password: validation.NewPassword(cfg.Policy.PasswordMinLength),
			Email:    validation.Email{},
		},
		Policy: service.Policy{
			MinAdminCount:        cfg.Policy.MinAdminCount,
			MaxLoginFailAttempts: cfg.Policy.MaxLoginFailAttempts,
			LockDuration:         cfg.Policy.LockDuration,
		},
		Logger:  logger,
		Metrics: c.Metrics,
	}); err != nil {
		return nil, fmt.Errorf("create authenticator: %w", err)
	}

	if c.Dispatcher, err = command.NewDispatcher(command.DispatcherOptions{
		Auth:    c.Auth,
		Audit:   c.Audit,
		Logger:  logger,
		Metrics: c.Metrics,
	}); err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	return c, nil
}

// buildMetrics returns a nil sink when metrics are disabled or the client cannot start.
//
//nolint:ireturn // callers only need the Sink behaviour.
func (c *ServiceContainer) buildMetrics(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) statsd.Sink {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	c.closers = append(c.closers, namedCloser{name: "statsd", closer: client})
	return client
}

func (c *ServiceContainer) buildAudit(logger *slog.Logger, cfg *config.AppConfig, db *sql.DB) (*auditlog.Fanout, error) {
	enabled, err := cfg.Audit.EnabledSinks()
	if err != nil {
		return nil, fmt.Errorf("invalid audit configuration: %w", err)
	}

	var sinks []auditlog.NamedSink
	if enabled[config.AuditSinkFile] {
		file, err := auditlog.OpenFile(cfg.Storage.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		c.closers = append(c.closers, namedCloser{name: "audit log", closer: file})
		sinks = append(sinks, auditlog.NamedSink{Name: string(config.AuditSinkFile), Sink: file})
	}
	if enabled[config.AuditSinkPostgres] {
		pg, err := auditlog.NewPostgresSink(db)
		if err != nil {
			return nil, fmt.Errorf("create postgres audit sink: %w", err)
		}
		sinks = append(sinks, auditlog.NamedSink{Name: string(config.AuditSinkPostgres), Sink: pg})
	}
	return auditlog.NewFanout(logger, sinks...), nil
}

// Close releases the files and sockets opened by NewServices.
func (c *ServiceContainer) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.closers[i].name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
