package daemon

import (
	"pkt.systems/pslog"

	"github.com/loganszeto/sharedstate/internal/config"
	"github.com/loganszeto/sharedstate/internal/server"
	"github.com/loganszeto/sharedstate/internal/stats"
	"github.com/loganszeto/sharedstate/internal/store"
)

// Service describes one server binary.
type Service struct {
	// Name is the binary name and the root command.
	Name  string
	Short string
	// Metrics is the Prometheus subsystem of the service collectors.
	Metrics    string
	Defaults   config.Defaults
	NewHandler func(cfg config.Config, st *stats.Stats, logger pslog.Logger) server.Handler
}

func KV() Service {
	return Service{
		Name:     "kv-server",
		Short:    "Shared key-value store with per-key expiry",
		Metrics:  "kv",
		Defaults: config.KVDefaults(),
		NewHandler: func(cfg config.Config, st *stats.Stats, logger pslog.Logger) server.Handler {
			kv := store.NewKV(store.KVOptions{
				GCCycle:         cfg.GCCycle,
				MaxSweepBuckets: cfg.GCMaxBuckets,
				OnEvict:         st.RecordEviction,
				Logger:          logger,
			})
			return server.NewKVHandler(kv, server.HandlerOptions{Stats: st, Token: cfg.Token, Logger: logger})
		},
	}
}

func Queue() Service {
	return Service{
		Name:     "queue-server",
		Short:    "Shared named FIFO queues",
		Metrics:  "queue",
		Defaults: config.QueueDefaults(),
		NewHandler: func(cfg config.Config, st *stats.Stats, logger pslog.Logger) server.Handler {
			return server.NewQueueHandler(store.NewQueues(), server.HandlerOptions{Stats: st, Token: cfg.Token, Logger: logger})
		},
	}
}
