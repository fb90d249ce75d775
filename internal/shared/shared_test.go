package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loganszeto/sharedstate/internal/client"
	"github.com/loganszeto/sharedstate/internal/protocol"
)

var errDown = errors.New("connection refused")

// flaky fails the first failures calls of every method, then serves from
// memory.
type flaky struct {
	failures int
	calls    int
	items    []protocol.Blob
	values   map[string]protocol.Blob
	err      error
}

func (f *flaky) fail() error {
	f.calls++
	if f.calls <= f.failures {
		if f.err != nil {
			return f.err
		}
		return errDown
	}
	return nil
}

func (f *flaky) Enqueue(_ context.Context, _ string, item any) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.items = append(f.items, protocol.MustBlob(item))
	return nil
}

func (f *flaky) Dequeue(context.Context, string) (protocol.Blob, bool, error) {
	if err := f.fail(); err != nil {
		return nil, false, err
	}
	if len(f.items) == 0 {
		return nil, false, nil
	}
	item := f.items[0]
	f.items = f.items[1:]
	return item, true, nil
}

func (f *flaky) Size(context.Context, string) (int, error) {
	if err := f.fail(); err != nil {
		return 0, err
	}
	return len(f.items), nil
}

func (f *flaky) Get(_ context.Context, _, key string) (protocol.Blob, bool, error) {
	if err := f.fail(); err != nil {
		return nil, false, err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *flaky) Put(_ context.Context, _, key string, value any, _ time.Duration) error {
	if err := f.fail(); err != nil {
		return err
	}
	if f.values == nil {
		f.values = make(map[string]protocol.Blob)
	}
	f.values[key] = protocol.MustBlob(value)
	return nil
}

func (f *flaky) Has(_ context.Context, _, key string) (bool, error) {
	if err := f.fail(); err != nil {
		return false, err
	}
	_, ok := f.values[key]
	return ok, nil
}

func (f *flaky) Del(_ context.Context, _, key string) (bool, error) {
	if err := f.fail(); err != nil {
		return false, err
	}
	_, ok := f.values[key]
	delete(f.values, key)
	return ok, nil
}

func (f *flaky) DelAll(context.Context, string) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.values = nil
	return nil
}

func fast() Option {
	return WithDelay(time.Millisecond)
}

func TestQueueRecoversWithinBudget(t *testing.T) {
	f := &flaky{failures: 4}
	q := NewQueue(f, "jobs", fast())
	ctx := context.Background()

	require.True(t, q.Add(ctx, "a"))
	assert.Equal(t, 5, f.calls)
	assert.Equal(t, 1, q.Size(ctx))

	item, ok := q.Poll(ctx)
	require.True(t, ok)
	assert.Equal(t, "a", item.String())

	_, ok = q.Poll(ctx)
	assert.False(t, ok, "empty queue")
}

func TestQueueGivesUpAfterBudget(t *testing.T) {
	f := &flaky{failures: 100}
	q := NewQueue(f, "jobs", fast())
	ctx := context.Background()

	assert.False(t, q.Add(ctx, "a"))
	assert.Equal(t, DefaultAttempts, f.calls)

	f.calls = 0
	item, ok := q.Poll(ctx)
	assert.False(t, ok)
	assert.Nil(t, item)
	assert.Equal(t, DefaultAttempts, f.calls)

	f.calls = 0
	assert.Equal(t, 0, q.Size(ctx))
	assert.Equal(t, DefaultAttempts, f.calls)
}

func TestQueueCustomAttempts(t *testing.T) {
	f := &flaky{failures: 100}
	q := NewQueue(f, "jobs", fast(), WithAttempts(2))
	assert.False(t, q.Add(context.Background(), "a"))
	assert.Equal(t, 2, f.calls)
}

func TestServerErrorsAreNotRetried(t *testing.T) {
	f := &flaky{failures: 100, err: &client.ServerError{Command: "ENQUEUE", Message: "Invalid token"}}
	q := NewQueue(f, "jobs", fast())
	assert.False(t, q.Add(context.Background(), "a"))
	assert.Equal(t, 1, f.calls)
}

func TestRetryStopsOnCancel(t *testing.T) {
	f := &flaky{failures: 100}
	q := NewQueue(f, "jobs", WithDelay(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.False(t, q.Add(ctx, "a"))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, f.calls)
}

func TestCache(t *testing.T) {
	f := &flaky{}
	c := NewCache(f, "sessions", fast())
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	require.True(t, c.Set(ctx, "k", map[string]int{"n": 1}, time.Minute))
	assert.True(t, c.Has(ctx, "k"))

	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `{"n":1}`, string(v))

	assert.True(t, c.Delete(ctx, "k"))
	assert.False(t, c.Delete(ctx, "k"))

	require.True(t, c.Set(ctx, "a", 1, 0))
	require.True(t, c.Clear(ctx))
	assert.False(t, c.Has(ctx, "a"))
}

func TestCacheDegradesToMiss(t *testing.T) {
	f := &flaky{failures: 1000, values: map[string]protocol.Blob{"k": protocol.MustBlob("v")}}
	c := NewCache(f, "sessions", fast())
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, c.Has(ctx, "k"))
	assert.False(t, c.Set(ctx, "k", "v", 0))
	assert.False(t, c.Clear(ctx))
	assert.Equal(t, 4*DefaultAttempts, f.calls)
}
