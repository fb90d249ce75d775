package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuesFIFO(t *testing.T) {
	q := NewQueues()
	const n = 500
	for i := 0; i < n; i++ {
		q.Enqueue("jobs", blob(fmt.Sprintf("task-%d", i)))
	}
	assert.Equal(t, n, q.Size("jobs"))
	for i := 0; i < n; i++ {
		item, ok := q.Dequeue("jobs")
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("task-%d", i), item.String())
	}
	assert.Equal(t, 0, q.Size("jobs"))
}

func TestQueuesInterleaved(t *testing.T) {
	q := NewQueues()
	next := 0
	want := 0
	for round := 0; round < 50; round++ {
		for i := 0; i < 7; i++ {
			q.Enqueue("q", blob(fmt.Sprint(next)))
			next++
		}
		for i := 0; i < 5; i++ {
			item, ok := q.Dequeue("q")
			require.True(t, ok)
			require.Equal(t, fmt.Sprint(want), item.String())
			want++
		}
	}
	assert.Equal(t, next-want, q.Size("q"))
}

func TestQueuesEmptySemantics(t *testing.T) {
	q := NewQueues()
	never, okNever := q.Dequeue("never")
	assert.False(t, okNever)
	assert.Nil(t, never)
	assert.Equal(t, 0, q.Size("never"))

	q.Enqueue("emptied", blob("x"))
	_, ok := q.Dequeue("emptied")
	require.True(t, ok)
	emptied, okEmptied := q.Dequeue("emptied")
	assert.Equal(t, okNever, okEmptied)
	assert.Equal(t, never, emptied)
	assert.Equal(t, 0, q.Size("emptied"))
}

func TestQueuesDelete(t *testing.T) {
	q := NewQueues()
	assert.False(t, q.Delete("jobs"))

	q.Enqueue("jobs", blob("a"))
	assert.True(t, q.Delete("jobs"))
	assert.False(t, q.Delete("jobs"))
	assert.Equal(t, 0, q.Size("jobs"))

	q.Enqueue("empty", blob("a"))
	_, _ = q.Dequeue("empty")
	assert.True(t, q.Delete("empty"), "an emptied queue still exists until deleted")
}

func TestQueuesStats(t *testing.T) {
	q := NewQueues()
	q.Enqueue("a", blob("1"))
	q.Enqueue("a", blob("2"))
	q.Enqueue("b", blob("3"))
	_, _ = q.Dequeue("b")

	st := q.Stats()
	assert.Equal(t, 2, st.Queues)
	assert.Equal(t, 2, st.Items)
	assert.Equal(t, map[string]int{"a": 2, "b": 0}, st.Sizes)
}
