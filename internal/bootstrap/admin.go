package bootstrap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/command"
)

// ErrBootstrapAborted is returned when input ends before the admin quorum holds.
var ErrBootstrapAborted = errors.New("admin bootstrap aborted: input closed before enough admins were registered")

const noAdminPrompt = "In order to proceed you must add an administrator user (%d more required).\n" +
	"Do it via the register command.\n"

// AdminCounter reports the current number of admins.
type AdminCounter interface {
	AdminCount(ctx context.Context) (int, error)
}

// AdminRegistrar registers a single admin from a register command line.
type AdminRegistrar interface {
	RegisterAdmin(ctx context.Context, line string) (bool, command.Response)
}

// AdminBootstrapOptions configures BootstrapAdmins.
type AdminBootstrapOptions struct {
	In        io.Reader
	Out       io.Writer
	Counter   AdminCounter
	Registrar AdminRegistrar
	Min       int
	Logger    *slog.Logger
}

// BootstrapAdmins reads register lines from In until at least Min admins
// exist. Every line gets the same response a client would see. It returns
// ErrBootstrapAborted when In is exhausted first.
func BootstrapAdmins(ctx context.Context, opts AdminBootstrapOptions) error {
	if opts.In == nil || opts.Out == nil || opts.Counter == nil || opts.Registrar == nil {
		return errors.New("admin bootstrap requires input, output, counter and registrar")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	scanner := bufio.NewScanner(opts.In)
	for {
		count, err := opts.Counter.AdminCount(ctx)
		if err != nil {
			return fmt.Errorf("count admins: %w", err)
		}
		if count >= opts.Min {
			if count > 0 {
				logger.InfoContext(ctx, "admin quorum satisfied", "admins", count, "min", opts.Min)
			}
			return nil
		}

		if _, err := fmt.Fprintf(opts.Out, noAdminPrompt, opts.Min-count); err != nil {
			return fmt.Errorf("write prompt: %w", err)
		}
		if err := registerOne(ctx, scanner, opts); err != nil {
			return err
		}
	}
}

// registerOne consumes lines until one of them creates an admin.
func registerOne(ctx context.Context, scanner *bufio.Scanner, opts AdminBootstrapOptions) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read admin registration: %w", err)
			}
			return ErrBootstrapAborted
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		created, resp := opts.Registrar.RegisterAdmin(ctx, line)
		if _, err := fmt.Fprintln(opts.Out, resp.Text); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if created {
			return nil
		}
	}
}
