// Package store holds the in-memory state of the KV and queue services.
//
// Neither KV nor Queues is safe for concurrent use. The server owns each
// instance from a single goroutine and funnels every command through it.
package store

import "github.com/loganszeto/sharedstate/internal/protocol"

type KVStore interface {
	Put(domain, key string, value protocol.Blob, ttlSeconds int64)
	Get(domain, key string) (protocol.Blob, bool)
	Has(domain, key string) bool
	Del(domain, key string) bool
	DelAll(domain string)
}

type QueueStore interface {
	Enqueue(name string, item protocol.Blob)
	Dequeue(name string) (protocol.Blob, bool)
	Size(name string) int
	Delete(name string) bool
	Stats() protocol.QueueStatsReport
}

var (
	_ KVStore    = (*KV)(nil)
	_ QueueStore = (*Queues)(nil)
)
