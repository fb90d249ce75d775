// Package daemon assembles a server process: TCP listener, dispatch loop,
// optional websocket gateway and metrics endpoint.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"

	"github.com/loganszeto/sharedstate/internal/config"
	"github.com/loganszeto/sharedstate/internal/loggingutil"
	"github.com/loganszeto/sharedstate/internal/server"
	"github.com/loganszeto/sharedstate/internal/stats"
)

const shutdownTimeout = 10 * time.Second

type Daemon struct {
	svc      Service
	cfg      config.Config
	logger   pslog.Logger
	registry *prometheus.Registry
	stats    *stats.Stats
	srv      *server.Server
}

func New(svc Service, cfg config.Config, logger pslog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = loggingutil.EnsureLogger(logger)
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	st := stats.New(svc.Metrics, registry)
	h := svc.NewHandler(cfg, st, logger)
	srv := server.New(cfg.Listen, h,
		server.WithLogger(loggingutil.WithSubsystem(logger, "server", svc.Metrics)),
		server.WithStats(st),
		server.WithMaxLine(cfg.MaxLine),
	)
	return &Daemon{
		svc:      svc,
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		stats:    st,
		srv:      srv,
	}, nil
}

func (d *Daemon) Server() *server.Server {
	return d.srv
}

func (d *Daemon) Registry() *prometheus.Registry {
	return d.registry
}

// Run serves until ctx is cancelled or a listener fails.
func (d *Daemon) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.cfg.Listen, err)
	}
	httpServers, err := d.httpServers()
	if err != nil {
		_ = ln.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.srv.Serve(gctx, ln)
	})
	for _, hs := range httpServers {
		g.Go(func() error {
			d.logger.Info("http listening", "addr", hs.ln.Addr().String(), "routes", hs.routes)
			if err := hs.srv.Serve(hs.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http %s: %w", hs.ln.Addr(), err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return hs.srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

type httpListener struct {
	ln     net.Listener
	srv    *http.Server
	routes []string
}

// httpServers binds the gateway and metrics listeners. Both surfaces share
// one listener when configured on the same address.
func (d *Daemon) httpServers() ([]httpListener, error) {
	byAddr := map[string]*server.HTTPOptions{}
	var order []string
	mount := func(addr string) *server.HTTPOptions {
		opts, ok := byAddr[addr]
		if !ok {
			opts = &server.HTTPOptions{Logger: loggingutil.WithSubsystem(d.logger, "http")}
			byAddr[addr] = opts
			order = append(order, addr)
		}
		return opts
	}
	if d.cfg.WSListen != "" {
		mount(d.cfg.WSListen).WebSocket = true
	}
	if d.cfg.MetricsListen != "" {
		mount(d.cfg.MetricsListen).Gatherer = d.registry
	}

	var out []httpListener
	for _, addr := range order {
		opts := byAddr[addr]
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, hl := range out {
				_ = hl.ln.Close()
			}
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
		routes := []string{"/healthz"}
		if opts.WebSocket {
			routes = append(routes, "/ws")
		}
		if opts.Gatherer != nil {
			routes = append(routes, "/metrics")
		}
		out = append(out, httpListener{
			ln:     ln,
			srv:    server.NewHTTPServer(addr, server.NewHTTPHandler(d.srv, *opts)),
			routes: routes,
		})
	}
	return out, nil
}
