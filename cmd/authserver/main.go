package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/bilyanhadzhi/auth-server-mjt/config"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/bootstrap"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	logger := bootstrap.InitLogger(os.Getenv("LOG_LEVEL"))
	err := run(ctx, logger)
	stop()
	if err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.InitLogger(cfg.Observability.LogLevel)
	logStartupInfo(ctx, logger, &cfg)

	db, redisClient, err := initInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer closeInfrastructure(ctx, logger, db, redisClient)

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          db,
		RedisClient: redisClient,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer func() {
		if cerr := services.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close services failed", "error", cerr)
		}
	}()

	recovered, err := services.Registry.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover sessions: %w", err)
	}
	logger.InfoContext(ctx, "sessions recovered", "count", recovered)

	if err := ensureAdmins(ctx, logger, &cfg, services); err != nil {
		return err
	}

	srv, err := server.New(server.Options{
		Addr:           cfg.Server.Addr,
		MaxConnections: cfg.Server.MaxConnections,
		IdleTimeout:    cfg.Server.IdleTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxLineBytes:   cfg.Server.MaxLineBytes,
		Executor:       services.Dispatcher,
		Logger:         logger,
		Metrics:        services.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	return bootstrap.RunAll(ctx, logger,
		bootstrap.NamedRunner{Name: "session-expiry", Runner: services.Expiry},
		bootstrap.NamedRunner{Name: "server", Runner: bootstrap.RunnerFunc(srv.Serve)},
	)
}

// ensureAdmins seeds the admin quorum from stdin when it does not hold yet.
func ensureAdmins(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig, services *bootstrap.ServiceContainer) error {
	count, err := services.Auth.AdminCount(ctx)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if count >= cfg.Policy.MinAdminCount {
		return nil
	}
	if !cfg.BootstrapAdmin {
		return fmt.Errorf("found %d admins, need at least %d and AUTH_BOOTSTRAP_ADMIN is disabled",
			count, cfg.Policy.MinAdminCount)
	}
	return bootstrap.BootstrapAdmins(ctx, bootstrap.AdminBootstrapOptions{
		In:        os.Stdin,
		Out:       os.Stdout,
		Counter:   services.Auth,
		Registrar: services.Dispatcher,
		Min:       cfg.Policy.MinAdminCount,
		Logger:    logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting auth server",
		"addr", cfg.Server.Addr,
		"users_path", cfg.Storage.UsersPath,
		"sessions_path", cfg.Storage.SessionsPath,
		"audit_sinks", cfg.Audit.Sinks,
		"session_index", cfg.Redis.Enabled,
		"metrics", cfg.Observability.Metrics.IsEnabled(),
	)
}

// initInfrastructure connects the optional backing services that the
// configuration enables. Disabled services are returned as nil.
//
//nolint:ireturn // the session index accepts any redis.UniversalClient.
func initInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
) (*sql.DB, redis.UniversalClient, error) {
	dbCfg := bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	var db *sql.DB
	if cfg.PostgresRequired() {
		var err error
		if db, err = bootstrap.ConnectDB(ctx, dbCfg); err != nil {
			return nil, nil, fmt.Errorf("connect db: %w", err)
		}
		if cfg.Postgres.RunMigrationsOnStart {
			if err := bootstrap.RunMigrations(ctx, db, logger); err != nil {
				return nil, nil, errors.Join(err, db.Close())
			}
		} else {
			logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
		}
	}

	if !cfg.Redis.Enabled {
		return db, nil, nil
	}
	redisClient, err := bootstrap.ConnectRedis(ctx, dbCfg)
	if err != nil {
		err = fmt.Errorf("connect redis: %w", err)
		if db != nil {
			err = errors.Join(err, db.Close())
		}
		return nil, nil, err
	}
	return db, redisClient, nil
}

func closeInfrastructure(ctx context.Context, logger *slog.Logger, db *sql.DB, redisClient redis.UniversalClient) {
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", err)
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.ErrorContext(ctx, "close database failed", "error", err)
		}
	}
}
