package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner is a long-lived component that stops when its context is canceled.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// NamedRunner labels a Runner for logs.
type NamedRunner struct {
	Name   string
	Runner Runner
}

// RunAll starts every runner and blocks until ctx is canceled or one of them
// fails, which cancels the rest. A clean shutdown returns nil.
func RunAll(ctx context.Context, logger *slog.Logger, runners ...NamedRunner) error {
	if logger == nil {
		logger = slog.Default()
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		r := r // per-iteration copy; go 1.21 loop variables are shared
		g.Go(func() error {
			logger.InfoContext(gctx, "component starting", "component", r.Name)
			err := r.Runner.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorContext(gctx, "component failed", "component", r.Name, "error", err)
				return err
			}
			logger.InfoContext(gctx, "component stopped", "component", r.Name)
			return nil
		})
	}
	return g.Wait()
}
