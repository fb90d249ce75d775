package store

import "github.com/loganszeto/sharedstate/internal/protocol"

// compaction threshold for the consumed prefix of a fifo
const fifoCompactAt = 64

type fifo struct {
	items []protocol.Blob
	head  int
}

func (f *fifo) push(item protocol.Blob) {
	f.items = append(f.items, item)
}

func (f *fifo) pop() (protocol.Blob, bool) {
	if f.head >= len(f.items) {
		return nil, false
	}
	item := f.items[f.head]
	f.items[f.head] = nil
	f.head++
	switch {
	case f.head == len(f.items):
		f.items = f.items[:0]
		f.head = 0
	case f.head >= fifoCompactAt && f.head*2 >= len(f.items):
		n := copy(f.items, f.items[f.head:])
		f.items = f.items[:n]
		f.head = 0
	}
	return item, true
}

func (f *fifo) len() int {
	return len(f.items) - f.head
}

// Queues maps queue names to unbounded FIFO buffers. A queue comes into
// existence on its first Enqueue and lives until Delete, even when empty.
type Queues struct {
	queues map[string]*fifo
}

func NewQueues() *Queues {
	return &Queues{queues: make(map[string]*fifo)}
}

func (q *Queues) Enqueue(name string, item protocol.Blob) {
	f, ok := q.queues[name]
	if !ok {
		f = &fifo{}
		q.queues[name] = f
	}
	f.push(item)
}

// Dequeue pops the head of name. Absent and empty queues both report false.
func (q *Queues) Dequeue(name string) (protocol.Blob, bool) {
	f, ok := q.queues[name]
	if !ok {
		return nil, false
	}
	return f.pop()
}

func (q *Queues) Size(name string) int {
	f, ok := q.queues[name]
	if !ok {
		return 0
	}
	return f.len()
}

func (q *Queues) Delete(name string) bool {
	if _, ok := q.queues[name]; !ok {
		return false
	}
	delete(q.queues, name)
	return true
}

func (q *Queues) Stats() protocol.QueueStatsReport {
	report := protocol.QueueStatsReport{
		Queues: len(q.queues),
		Sizes:  make(map[string]int, len(q.queues)),
	}
	for name, f := range q.queues {
		n := f.len()
		report.Sizes[name] = n
		report.Items += n
	}
	return report
}
