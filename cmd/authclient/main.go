package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/client"
)

const dialTimeout = 5 * time.Second

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "There is a problem with the network communication:", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context) error {
	addr := os.Getenv("AUTH_SERVER_ADDR")
	if addr == "" {
		addr = "localhost:8000"
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	return client.Run(ctx, client.Options{
		Conn:   conn,
		In:     os.Stdin,
		Out:    os.Stdout,
		Prompt: term.IsTerminal(int(os.Stdin.Fd())),
	})
}
