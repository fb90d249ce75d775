// Package heap provides the min-heap of expiration timestamps used by the KV
// garbage collector.
package heap

import stdheap "container/heap"

// Expiry is a binary min-heap of unix timestamps. Duplicates are kept; callers
// discard stale entries when they pop them.
type Expiry struct {
	items timestamps
}

type timestamps []int64

func (h timestamps) Len() int           { return len(h) }
func (h timestamps) Less(i, j int) bool { return h[i] < h[j] }
func (h timestamps) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *timestamps) Push(x any) {
	*h = append(*h, x.(int64))
}

func (h *timestamps) Pop() any {
	old := *h
	n := len(old)
	ts := old[n-1]
	*h = old[:n-1]
	return ts
}

func NewExpiry() *Expiry {
	return &Expiry{}
}

func (e *Expiry) Len() int {
	return e.items.Len()
}

func (e *Expiry) Push(ts int64) {
	stdheap.Push(&e.items, ts)
}

// Peek returns the smallest timestamp without removing it.
func (e *Expiry) Peek() (int64, bool) {
	if len(e.items) == 0 {
		return 0, false
	}
	return e.items[0], true
}

func (e *Expiry) Pop() (int64, bool) {
	if len(e.items) == 0 {
		return 0, false
	}
	return stdheap.Pop(&e.items).(int64), true
}
