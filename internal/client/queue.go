package client

import (
	"context"
	"fmt"
	"time"

	"github.com/loganszeto/sharedstate/internal/protocol"
)

// Queue is a client of the Queue service.
type Queue struct {
	conn  *conn
	token string
}

// NewQueue connects to the Queue server at addr.
func NewQueue(ctx context.Context, addr string, opts ...Option) (*Queue, error) {
	o := buildOptions(opts)
	c := newConn(addr, o, "queue")
	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	return &Queue{conn: c, token: o.token}, nil
}

func (q *Queue) Close() error {
	return q.conn.close()
}

// Send issues a raw request. The token is filled in when the request has none.
func (q *Queue) Send(ctx context.Context, req protocol.QueueRequest) (protocol.Response, error) {
	if req.Token == "" {
		req.Token = q.token
	}
	return q.conn.send(ctx, req)
}

func (q *Queue) do(ctx context.Context, req protocol.QueueRequest) (protocol.Response, error) {
	resp, err := q.Send(ctx, req)
	if err != nil {
		return resp, err
	}
	return resp, check(req.Command.String(), resp)
}

func (q *Queue) Ping(ctx context.Context) (time.Time, error) {
	resp, err := q.Send(ctx, protocol.QueueRequest{Command: protocol.QueuePing})
	if err != nil {
		return time.Time{}, err
	}
	return replyTime("PING", resp)
}

// Enqueue appends item to the named queue, creating it when needed.
func (q *Queue) Enqueue(ctx context.Context, name string, item any) error {
	data, err := protocol.NewBlob(item)
	if err != nil {
		return err
	}
	_, err = q.do(ctx, protocol.QueueRequest{Command: protocol.QueueEnqueue, Queue: name, Data: data})
	return err
}

// Dequeue pops the head of the named queue. An empty or unknown queue
// reports false.
func (q *Queue) Dequeue(ctx context.Context, name string) (protocol.Blob, bool, error) {
	resp, err := q.do(ctx, protocol.QueueRequest{Command: protocol.QueueDequeue, Queue: name})
	if err != nil {
		return nil, false, err
	}
	return resp.Data, !resp.Data.IsNull(), nil
}

func (q *Queue) Size(ctx context.Context, name string) (int, error) {
	resp, err := q.do(ctx, protocol.QueueRequest{Command: protocol.QueueSize, Queue: name})
	if err != nil {
		return 0, err
	}
	var n int
	if err := resp.Data.Decode(&n); err != nil {
		return 0, fmt.Errorf("SIZE: decode reply: %w", err)
	}
	return n, nil
}

// Delete drops the named queue and reports whether it existed.
func (q *Queue) Delete(ctx context.Context, name string) (bool, error) {
	resp, err := q.Send(ctx, protocol.QueueRequest{Command: protocol.QueueDelete, Queue: name})
	if err != nil {
		return false, err
	}
	return replyBool("DELETE", resp)
}

func (q *Queue) Stats(ctx context.Context) (protocol.QueueStatsReport, error) {
	var report protocol.QueueStatsReport
	resp, err := q.do(ctx, protocol.QueueRequest{Command: protocol.QueueStats})
	if err != nil {
		return report, err
	}
	if err := resp.Data.Decode(&report); err != nil {
		return report, fmt.Errorf("STATS: decode reply: %w", err)
	}
	return report, nil
}
