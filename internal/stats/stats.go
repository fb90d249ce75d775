package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sharedstate"

// Stats counts requests for one service. The atomic counters back the STATS
// command; the Prometheus collectors back the metrics endpoint.
type Stats struct {
	requests  atomic.Int64
	errors    atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	conns     atomic.Int64

	commands   *prometheus.CounterVec
	evicted    *prometheus.CounterVec
	lookups    *prometheus.CounterVec
	connsGauge prometheus.Gauge
	sweeps     prometheus.Counter
}

// New creates the collectors for service and registers them with reg. A nil
// reg leaves them unregistered.
func New(service string, reg prometheus.Registerer) *Stats {
	f := promauto.With(reg)
	return &Stats{
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "commands_total",
			Help:      "Commands handled, by command and response status.",
		}, []string{"command", "status"}),
		evicted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "evictions_total",
			Help:      "Expired keys removed, by mechanism.",
		}, []string{"reason"}),
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "lookups_total",
			Help:      "Reads that found (hit) or did not find (miss) a value.",
		}, []string{"result"}),
		connsGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "connections",
			Help:      "Open client connections.",
		}),
		sweeps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "gc_sweeps_total",
			Help:      "Active expiry sweeps that evicted at least one key.",
		}),
	}
}

func (s *Stats) RecordCommand(command, status string) {
	s.requests.Add(1)
	if status != "success" {
		s.errors.Add(1)
	}
	s.commands.WithLabelValues(command, status).Inc()
}

func (s *Stats) RecordLookup(hit bool) {
	if hit {
		s.hits.Add(1)
		s.lookups.WithLabelValues("hit").Inc()
		return
	}
	s.misses.Add(1)
	s.lookups.WithLabelValues("miss").Inc()
}

func (s *Stats) RecordEviction(reason string, n int) {
	s.evictions.Add(int64(n))
	s.evicted.WithLabelValues(reason).Add(float64(n))
	if reason == "sweep" {
		s.sweeps.Inc()
	}
}

func (s *Stats) ConnOpened() {
	s.conns.Add(1)
	s.connsGauge.Inc()
}

func (s *Stats) ConnClosed() {
	s.conns.Add(-1)
	s.connsGauge.Dec()
}

func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"requests":    s.requests.Load(),
		"errors":      s.errors.Load(),
		"hits":        s.hits.Load(),
		"misses":      s.misses.Load(),
		"evictions":   s.evictions.Load(),
		"connections": s.conns.Load(),
	}
}
