package client

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers each request line from replies, keyed by the command name,
// and records what it received.
func fakeServer(t *testing.T, conn net.Conn, replies map[string]string) <-chan []string {
	t.Helper()
	got := make(chan []string, 1)
	go func() {
		defer conn.Close()
		var seen []string
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				got <- seen
				return
			}
			line = strings.TrimSuffix(line, "\n")
			seen = append(seen, line)
			name := strings.Fields(line)[0]
			reply, ok := replies[name]
			if !ok {
				got <- seen
				return
			}
			if _, err := conn.Write([]byte(reply + "\n")); err != nil {
				got <- seen
				return
			}
		}
	}()
	return got
}

func TestRun_RelaysUntilExit(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	got := fakeServer(t, serverConn, map[string]string{
		"login":  "Logged in successfully, new session id is: \n7f0c7a0e-8c1e-4d4e-9a53-0a1f0f2b6d11",
		"logout": "User logged out successfully",
		"exit":   "Have a good day! :)",
	})

	in := strings.NewReader("login --username a --password b\n\n   \nlogout --session-id x\nexit\nlogout --session-id y\n")
	var out bytes.Buffer
	err := Run(context.Background(), Options{Conn: clientConn, In: in, Out: &out})
	require.NoError(t, err)
	clientConn.Close()

	assert.Equal(t, "Logged in successfully, new session id is: \n"+
		"7f0c7a0e-8c1e-4d4e-9a53-0a1f0f2b6d11\n"+
		"User logged out successfully\n"+
		"Have a good day! :)\n", out.String())
	assert.Equal(t, []string{
		"login --username a --password b",
		"logout --session-id x",
		"exit",
	}, <-got)
}

func TestRun_PromptAndEOF(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	fakeServer(t, serverConn, map[string]string{"logout": "User logged out successfully"})

	var out bytes.Buffer
	err := Run(context.Background(), Options{
		Conn:   clientConn,
		In:     strings.NewReader("logout --session-id x\n"),
		Out:    &out,
		Prompt: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "> User logged out successfully\n> ", out.String())
}

func TestRun_ServerHangsUp(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	fakeServer(t, serverConn, map[string]string{})

	err := Run(context.Background(), Options{
		Conn: clientConn,
		In:   strings.NewReader("register --username a\n"),
		Out:  &bytes.Buffer{},
	})
	require.ErrorIs(t, err, ErrServerClosed)
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, Options{Conn: &bytes.Buffer{}, In: strings.NewReader("exit\n"), Out: &bytes.Buffer{}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_RequiresOptions(t *testing.T) {
	require.Error(t, Run(context.Background(), Options{}))
}
