package server

import (
	"context"
	"errors"
	"net"
	"sync"

	"pkt.systems/pslog"

	"github.com/loganszeto/sharedstate/internal/loggingutil"
	"github.com/loganszeto/sharedstate/internal/protocol"
	"github.com/loganszeto/sharedstate/internal/stats"
)

// Handler executes one request line and returns the response. The server
// calls Handle from a single goroutine, so implementations own their state
// without locking.
type Handler interface {
	Handle(line []byte) protocol.Response
}

type Option func(*Server)

func WithLogger(l pslog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithStats(st *stats.Stats) Option {
	return func(s *Server) { s.stats = st }
}

// WithMaxLine limits the size of a request line. Zero disables the limit.
func WithMaxLine(n int) Option {
	return func(s *Server) { s.maxLine = n }
}

type job struct {
	line  []byte
	reply chan protocol.Response
}

type Server struct {
	addr    string
	handler Handler
	logger  pslog.Logger
	stats   *stats.Stats
	maxLine int

	jobs     chan job
	done     chan struct{}
	loopOnce sync.Once
	ready    chan struct{}

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func New(addr string, h Handler, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		handler: h,
		maxLine: protocol.DefaultMaxLine,
		jobs:    make(chan job),
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
		conns:   make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = loggingutil.EnsureLogger(s.logger)
	if s.stats == nil {
		s.stats = stats.New("server", nil)
	}
	return s
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. Cancellation closes
// the listener and every open connection, then waits for their goroutines.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.startLoop(ctx)
	close(s.ready)
	s.logger.Info("listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeConns()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				s.logger.Info("stopped", "addr", ln.Addr().String())
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return err
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// Ready is closed once Serve has a listener and the dispatch loop is running.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Do hands line to the dispatch loop and waits for its response. Every
// transport funnels through Do, which is what serialises all state access.
func (s *Server) Do(ctx context.Context, line []byte) protocol.Response {
	reply := make(chan protocol.Response, 1)
	select {
	case s.jobs <- job{line: line, reply: reply}:
	case <-s.done:
		return protocol.Fail("server shutting down")
	case <-ctx.Done():
		return protocol.Fail("request cancelled")
	}
	return <-reply
}

func (s *Server) startLoop(ctx context.Context) {
	s.loopOnce.Do(func() {
		go s.loop(ctx)
	})
}

func (s *Server) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			j.reply <- s.handler.Handle(j.line)
		}
	}
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}
