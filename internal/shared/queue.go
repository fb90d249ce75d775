package shared

import (
	"context"

	"github.com/loganszeto/sharedstate/internal/client"
	"github.com/loganszeto/sharedstate/internal/protocol"
)

// QueueClient is the subset of client.Queue used by Queue.
type QueueClient interface {
	Enqueue(ctx context.Context, name string, item any) error
	Dequeue(ctx context.Context, name string) (protocol.Blob, bool, error)
	Size(ctx context.Context, name string) (int, error)
}

var _ QueueClient = (*client.Queue)(nil)

// Queue is one named queue on a Queue server.
type Queue struct {
	client QueueClient
	name   string
	policy policy
}

func NewQueue(c QueueClient, name string, opts ...Option) *Queue {
	return &Queue{client: c, name: name, policy: newPolicy("queue", opts)}
}

func (q *Queue) Name() string {
	return q.name
}

// Add enqueues item and reports whether the server accepted it.
func (q *Queue) Add(ctx context.Context, item any) bool {
	_, err := retry(ctx, q.policy, "add", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, q.client.Enqueue(ctx, q.name, item)
	})
	return err == nil
}

// Poll takes the head item. It reports false when the queue is empty or the
// server could not be reached.
func (q *Queue) Poll(ctx context.Context) (protocol.Blob, bool) {
	type polled struct {
		item protocol.Blob
		ok   bool
	}
	res, err := retry(ctx, q.policy, "poll", func(ctx context.Context) (polled, error) {
		item, ok, err := q.client.Dequeue(ctx, q.name)
		return polled{item: item, ok: ok}, err
	})
	if err != nil || !res.ok {
		return nil, false
	}
	return res.item, true
}

// Size returns the queue length, or zero when the server could not be
// reached.
func (q *Queue) Size(ctx context.Context) int {
	n, err := retry(ctx, q.policy, "size", func(ctx context.Context) (int, error) {
		return q.client.Size(ctx, q.name)
	})
	if err != nil {
		return 0
	}
	return n
}
