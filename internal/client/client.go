// Package client implements the interactive line client for the auth server.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/command"
)

// ErrServerClosed is returned when the server hangs up while a reply is expected.
var ErrServerClosed = errors.New("server closed the connection")

const (
	prompt      = "> "
	exitCommand = "exit"
)

// Options configures a Session.
type Options struct {
	// Conn is the connection to the server.
	Conn io.ReadWriter
	In   io.Reader
	Out  io.Writer
	// Prompt prints "> " before reading each line.
	Prompt bool
}

// Run forwards lines from In to the server and prints each reply to Out. It
// returns nil after the exit command has been answered or when In ends.
func Run(ctx context.Context, opts Options) error {
	if opts.Conn == nil || opts.In == nil || opts.Out == nil {
		return errors.New("client requires a connection, input and output")
	}

	input := bufio.NewScanner(opts.In)
	replies := bufio.NewReader(opts.Conn)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.Prompt {
			if _, err := io.WriteString(opts.Out, prompt); err != nil {
				return err
			}
		}
		if !input.Scan() {
			return input.Err()
		}

		line := strings.TrimRight(input.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			// The server does not answer blank lines.
			continue
		}
		if _, err := io.WriteString(opts.Conn, line+"\n"); err != nil {
			return fmt.Errorf("send command: %w", err)
		}
		if err := relay(replies, opts.Out); err != nil {
			return err
		}
		if strings.TrimSpace(line) == exitCommand {
			return nil
		}
	}
}

// relay copies one complete reply from the server to out.
func relay(replies *bufio.Reader, out io.Writer) error {
	first, err := readLine(replies)
	if err != nil {
		return err
	}
	lines := []string{first}
	for n := command.ResponseLines(first); len(lines) < n; {
		next, err := readLine(replies)
		if err != nil {
			return err
		}
		lines = append(lines, next)
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(out, l); err != nil {
			return err
		}
	}
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	s, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", ErrServerClosed
		}
		return "", fmt.Errorf("read reply: %w", err)
	}
	return strings.TrimRight(s, "\r\n"), nil
}
