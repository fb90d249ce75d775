// Package client implements the persistent-connection TCP clients of the KV
// and Queue services.
//
// Each client owns one connection and runs one request at a time. A transport
// failure closes the connection; the next call dials again. Calls are never
// retried here, retry policy belongs to the caller.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/loganszeto/sharedstate/internal/loggingutil"
	"github.com/loganszeto/sharedstate/internal/protocol"
)

// liveCheckWindow bounds the wait of the liveness read done before each call.
const liveCheckWindow = 250 * time.Microsecond

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("client closed")

// ServerError is a failed-status response returned by the server.
type ServerError struct {
	Command string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

type Option func(*options)

type options struct {
	token       string
	logger      pslog.Logger
	dialTimeout time.Duration
}

// WithToken sets the token sent with every request.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

func WithLogger(l pslog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDialTimeout bounds each connection attempt. Zero leaves dialing bound
// only by the call context.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type conn struct {
	addr        string
	dialTimeout time.Duration
	logger      pslog.Logger

	mu     sync.Mutex
	nc     net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	closed bool
}

func newConn(addr string, o options, service string) *conn {
	return &conn{
		addr:        addr,
		dialTimeout: o.dialTimeout,
		logger:      loggingutil.WithSubsystem(o.logger, "client", service).With("addr", addr),
	}
}

func (c *conn) dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *conn) connectLocked(ctx context.Context) error {
	d := net.Dialer{Timeout: c.dialTimeout}
	nc, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}
	c.nc = nc
	c.r = bufio.NewReader(nc)
	c.w = bufio.NewWriter(nc)
	c.logger.Debug("connected")
	return nil
}

// send writes req and waits for one response line. Transport failures come
// back as a comm-failed response together with the error.
func (c *conn) send(ctx context.Context, req any) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return commFailed(ErrClosed), ErrClosed
	}
	if c.nc != nil && !c.aliveLocked() {
		c.logger.Debug("connection closed by peer, redialing")
		c.dropLocked()
	}
	if c.nc == nil {
		if err := c.connectLocked(ctx); err != nil {
			return commFailed(err), err
		}
	}

	nc := c.nc
	deadline, _ := ctx.Deadline()
	if err := nc.SetDeadline(deadline); err != nil {
		return c.fail(ctx, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = nc.SetDeadline(time.Unix(1, 0))
	})

	var resp protocol.Response
	err := protocol.WriteMessage(c.w, req)
	if err != nil {
		err = fmt.Errorf("write: %w", err)
	} else if resp, err = protocol.ReadResponse(c.r, 0); err != nil {
		err = fmt.Errorf("read: %w", err)
	}
	interrupted := !stop()
	if err != nil {
		return c.fail(ctx, err)
	}
	if interrupted {
		// the socket deadline may already be in the past
		c.dropLocked()
	}
	return resp, nil
}

// aliveLocked reports whether the peer still holds the connection open. A
// read with a short deadline returns EOF or a reset once the peer has hung
// up and times out on a healthy idle connection. Unsolicited bytes also
// count as broken since the stream can no longer be paired with requests.
func (c *conn) aliveLocked() bool {
	if c.r.Buffered() > 0 {
		return false
	}
	if err := c.nc.SetReadDeadline(time.Now().Add(liveCheckWindow)); err != nil {
		return false
	}
	_, err := c.r.Peek(1)
	return err != nil && errors.Is(err, os.ErrDeadlineExceeded)
}

func (c *conn) fail(ctx context.Context, err error) (protocol.Response, error) {
	ctxErr := ctx.Err()
	if _, ok := ctx.Deadline(); ok && ctxErr == nil && errors.Is(err, os.ErrDeadlineExceeded) {
		ctxErr = context.DeadlineExceeded
	}
	if ctxErr != nil {
		err = fmt.Errorf("%w: %v", ctxErr, err)
	}
	c.logger.Debug("connection broken", "error", err)
	c.dropLocked()
	return commFailed(err), err
}

func (c *conn) dropLocked() {
	if c.nc != nil {
		_ = c.nc.Close()
	}
	c.nc, c.r, c.w = nil, nil, nil
}

func (c *conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var err error
	if c.nc != nil {
		err = c.nc.Close()
	}
	c.nc, c.r, c.w = nil, nil, nil
	return err
}

func commFailed(err error) protocol.Response {
	return protocol.Response{Status: protocol.StatusCommFailed, Error: err.Error()}
}

func check(command string, resp protocol.Response) error {
	if resp.Success() {
		return nil
	}
	return &ServerError{Command: command, Message: resp.Error}
}

func replyBool(command string, resp protocol.Response) (bool, error) {
	if err := check(command, resp); err != nil {
		return false, err
	}
	return resp.Data.String() == protocol.ReplyOK, nil
}

func replyTime(command string, resp protocol.Response) (time.Time, error) {
	if err := check(command, resp); err != nil {
		return time.Time{}, err
	}
	var secs int64
	if err := resp.Data.Decode(&secs); err != nil {
		return time.Time{}, fmt.Errorf("%s: decode reply: %w", command, err)
	}
	return time.Unix(secs, 0), nil
}
