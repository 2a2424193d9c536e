// Package server exposes the command dispatcher over a line-oriented TCP protocol.
//
// Each connection gets a reader goroutine that only frames lines. Every framed
// line is handed to a single dispatch goroutine, so commands from all clients
// execute one at a time in arrival order.
package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/bilyanhadzhi/auth-server-mjt/internal/command"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/observability/metrics"
	"github.com/bilyanhadzhi/auth-server-mjt/internal/observability/statsd"
)

// Executor runs one request line. *command.Dispatcher satisfies it.
type Executor interface {
	Execute(ctx context.Context, line, remoteAddr string) command.Response
}

// Options configures a Server.
type Options struct {
	Addr           string
	MaxConnections int
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxLineBytes   int

	Executor Executor // Required
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

const (
	defaultMaxLineBytes = 1024
	maxAcceptBackoff    = time.Second
)

// Server accepts client connections and feeds their lines to the Executor.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closing  bool

	jobs   chan job
	active atomic.Int64
	wg     sync.WaitGroup
}

type job struct {
	ctx    context.Context
	line   string
	remote string
	reply  chan command.Response
}

// New validates opts and returns an unstarted Server.
func New(opts Options) (*Server, error) {
	if opts.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if opts.Addr == "" {
		return nil, errors.New("listen address is required")
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = defaultMaxLineBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		opts:   opts,
		logger: opts.Logger.With("component", "server"),
		conns:  make(map[net.Conn]struct{}),
		jobs:   make(chan job),
	}, nil
}

// Listen binds the listening socket. Serve calls it when it has not been called yet.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	if s.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.opts.MaxConnections)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs until ctx is canceled, then closes every connection and waits for
// their goroutines. It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "listening", "addr", s.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop(gctx) })
	g.Go(func() error { return s.dispatchLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})

	err := g.Wait()
	s.wg.Wait()
	s.logger.InfoContext(ctx, "server stopped")
	return err
}

func (s *Server) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
}

func (s *Server) acceptLoop(ctx context.Context) error {
	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.logger.WarnContext(ctx, "accept failed, retrying", "error", err, "backoff", backoff)
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0

		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(ctx, conn)
		}()
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	return min(2*d, maxAcceptBackoff)
}

// track registers conn unless the server is already shutting down.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	metrics.EmitConnections(s.opts.Metrics, s.active.Add(1))
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		metrics.EmitConnections(s.opts.Metrics, s.active.Add(-1))
	}
}

// dispatchLoop is the only goroutine that executes commands.
func (s *Server) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-s.jobs:
			j.reply <- s.opts.Executor.Execute(j.ctx, j.line, j.remote)
		}
	}
}

// submit hands a line to the dispatch goroutine and waits for its response.
func (s *Server) submit(ctx context.Context, line, remote string) (command.Response, bool) {
	j := job{ctx: ctx, line: line, remote: remote, reply: make(chan command.Response, 1)}
	select {
	case s.jobs <- j:
	case <-ctx.Done():
		return command.Response{}, false
	}
	select {
	case resp := <-j.reply:
		return resp, true
	case <-ctx.Done():
		return command.Response{}, false
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	log := s.logger.With("remote_addr", remote)
	log.DebugContext(ctx, "client connected")
	defer log.DebugContext(ctx, "client disconnected")

	// Room for the line, an optional carriage return and the newline.
	reader := bufio.NewReaderSize(conn, s.opts.MaxLineBytes+2)
	for {
		if s.opts.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		}

		line, err := readLine(reader)
		switch {
		case errors.Is(err, bufio.ErrBufferFull) || len(line) > s.opts.MaxLineBytes:
			tooLong := &command.ParseError{Reason: "line too long"}
			_ = s.write(conn, tooLong.Text())
			log.WarnContext(ctx, "closing connection after oversized line")
			return
		case errors.Is(err, os.ErrDeadlineExceeded):
			log.InfoContext(ctx, "closing idle connection")
			return
		case err != nil && !errors.Is(err, io.EOF):
			if ctx.Err() == nil {
				log.DebugContext(ctx, "read failed", "error", err)
			}
			return
		}

		eof := errors.Is(err, io.EOF)
		if strings.TrimSpace(line) != "" {
			resp, ok := s.submit(ctx, line, remote)
			if !ok {
				return
			}
			if werr := s.write(conn, resp.Text); werr != nil {
				log.DebugContext(ctx, "write failed", "error", werr)
				return
			}
			if resp.Close {
				return
			}
		}
		if eof {
			return
		}
	}
}

// readLine returns the next line without its terminator. A final unterminated
// line is returned together with io.EOF.
func readLine(r *bufio.Reader) (string, error) {
	raw, err := r.ReadSlice('\n')
	line := strings.TrimSuffix(string(raw), "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, err
}

func (s *Server) write(conn net.Conn, text string) error {
	if s.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	_, err := io.WriteString(conn, text+"\n")
	return err
}
