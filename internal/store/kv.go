package store

import (
	"math"
	"time"

	"pkt.systems/pslog"

	"github.com/loganszeto/sharedstate/internal/heap"
	"github.com/loganszeto/sharedstate/internal/loggingutil"
	"github.com/loganszeto/sharedstate/internal/protocol"
	"github.com/loganszeto/sharedstate/internal/util"
)

const DefaultGCCycle = 30 * time.Second

// Eviction reasons reported to KVOptions.OnEvict.
const (
	EvictPassive = "passive"
	EvictSweep   = "sweep"
)

type KVOptions struct {
	Clock util.Clock
	// GCCycle is the minimum time between two active sweeps.
	GCCycle time.Duration
	// MaxSweepBuckets caps the timestamps processed by one sweep. Zero means
	// no cap. A capped sweep leaves the cycle timer untouched so the next
	// eligible request resumes it.
	MaxSweepBuckets int
	OnEvict         func(reason string, n int)
	Logger          pslog.Logger
}

type entry struct {
	value    protocol.Blob
	expires  bool
	expireAt int64
}

// KV is a domain-partitioned key-value map with per-key expiry.
//
// Keys with a deadline are also registered in ttl, an index from deadline to
// the keys expiring at that second. A deadline is pushed onto the expiry heap
// whenever its bucket is created, so the heap may hold deadlines whose bucket
// is already gone; sweeps skip them.
type KV struct {
	data   map[string]map[string]entry
	ttl    map[int64]map[string]map[string]struct{}
	expiry *heap.Expiry

	clock     util.Clock
	gcCycle   time.Duration
	maxSweep  int
	lastSweep time.Time
	onEvict   func(string, int)
	logger    pslog.Logger
}

func NewKV(opts KVOptions) *KV {
	if opts.GCCycle <= 0 {
		opts.GCCycle = DefaultGCCycle
	}
	if opts.MaxSweepBuckets < 0 {
		opts.MaxSweepBuckets = 0
	}
	clock := util.EnsureClock(opts.Clock)
	return &KV{
		data:      make(map[string]map[string]entry),
		ttl:       make(map[int64]map[string]map[string]struct{}),
		expiry:    heap.NewExpiry(),
		clock:     clock,
		gcCycle:   opts.GCCycle,
		maxSweep:  opts.MaxSweepBuckets,
		lastSweep: clock.Now(),
		onEvict:   opts.OnEvict,
		logger:    loggingutil.WithSubsystem(opts.Logger, "store.kv"),
	}
}

// Put stores value under domain/key. A ttl below one second, or one too large
// to express as a unix deadline, means the entry never expires.
func (s *KV) Put(domain, key string, value protocol.Blob, ttlSeconds int64) {
	s.MaybeSweep()
	now := s.now()
	if old, ok := s.lookup(domain, key); ok {
		if old.expires && old.expireAt <= now {
			s.notify(EvictPassive, 1)
		}
		s.unindex(domain, key, old)
	}
	ent := entry{value: value}
	// a deadline past the int64 range is stored as never expiring
	if ttlSeconds >= 1 && ttlSeconds <= math.MaxInt64-now {
		ent.expires = true
		ent.expireAt = now + ttlSeconds
		s.index(domain, key, ent.expireAt)
	}
	keys, ok := s.data[domain]
	if !ok {
		keys = make(map[string]entry)
		s.data[domain] = keys
	}
	keys[key] = ent
}

func (s *KV) Get(domain, key string) (protocol.Blob, bool) {
	s.MaybeSweep()
	ent, ok := s.live(domain, key)
	if !ok {
		return nil, false
	}
	return ent.value, true
}

func (s *KV) Has(domain, key string) bool {
	s.MaybeSweep()
	_, ok := s.live(domain, key)
	return ok
}

func (s *KV) Del(domain, key string) bool {
	ent, ok := s.lookup(domain, key)
	if !ok {
		return false
	}
	s.remove(domain, key, ent)
	return true
}

// DelAll empties domain. The domain itself stays registered.
func (s *KV) DelAll(domain string) {
	for key, ent := range s.data[domain] {
		s.unindex(domain, key, ent)
	}
	s.data[domain] = make(map[string]entry)
}

// Len counts stored entries, including expired ones not yet evicted.
func (s *KV) Len() int {
	n := 0
	for _, keys := range s.data {
		n += len(keys)
	}
	return n
}

func (s *KV) Domains() int {
	return len(s.data)
}

// MaybeSweep runs Sweep when at least one GC cycle has passed since the last
// completed sweep. It returns the number of evicted keys.
func (s *KV) MaybeSweep() int {
	if s.clock.Now().Sub(s.lastSweep) < s.gcCycle {
		return 0
	}
	return s.Sweep()
}

// Sweep evicts every key whose deadline has passed, walking deadlines in
// ascending order from the heap.
func (s *KV) Sweep() int {
	now := s.now()
	evicted, buckets := 0, 0
	for {
		ts, ok := s.expiry.Peek()
		if !ok || ts > now {
			break
		}
		if s.maxSweep > 0 && buckets >= s.maxSweep {
			s.logger.Debug("sweep capped", "buckets", buckets, "evicted", evicted)
			s.notify(EvictSweep, evicted)
			return evicted
		}
		s.expiry.Pop()
		buckets++
		bucket, ok := s.ttl[ts]
		if !ok {
			continue
		}
		for domain, keys := range bucket {
			for key := range keys {
				if dk, ok := s.data[domain]; ok {
					delete(dk, key)
					evicted++
				}
			}
		}
		delete(s.ttl, ts)
	}
	s.lastSweep = s.clock.Now()
	if evicted > 0 {
		s.logger.Debug("sweep done", "buckets", buckets, "evicted", evicted)
	}
	s.notify(EvictSweep, evicted)
	return evicted
}

func (s *KV) now() int64 {
	return s.clock.Now().Unix()
}

func (s *KV) lookup(domain, key string) (entry, bool) {
	keys, ok := s.data[domain]
	if !ok {
		return entry{}, false
	}
	ent, ok := keys[key]
	return ent, ok
}

// live returns the entry when present and not expired. Expired entries are
// removed on the spot.
func (s *KV) live(domain, key string) (entry, bool) {
	ent, ok := s.lookup(domain, key)
	if !ok {
		return entry{}, false
	}
	if ent.expires && ent.expireAt <= s.now() {
		s.remove(domain, key, ent)
		s.notify(EvictPassive, 1)
		return entry{}, false
	}
	return ent, true
}

func (s *KV) remove(domain, key string, ent entry) {
	delete(s.data[domain], key)
	s.unindex(domain, key, ent)
}

func (s *KV) index(domain, key string, expireAt int64) {
	bucket, ok := s.ttl[expireAt]
	if !ok {
		bucket = make(map[string]map[string]struct{})
		s.ttl[expireAt] = bucket
		s.expiry.Push(expireAt)
	}
	keys, ok := bucket[domain]
	if !ok {
		keys = make(map[string]struct{})
		bucket[domain] = keys
	}
	keys[key] = struct{}{}
}

func (s *KV) unindex(domain, key string, ent entry) {
	if !ent.expires {
		return
	}
	bucket, ok := s.ttl[ent.expireAt]
	if !ok {
		return
	}
	keys, ok := bucket[domain]
	if !ok {
		return
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(bucket, domain)
	}
	if len(bucket) == 0 {
		delete(s.ttl, ent.expireAt)
	}
}

func (s *KV) notify(reason string, n int) {
	if n > 0 && s.onEvict != nil {
		s.onEvict(reason, n)
	}
}
