package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"pkt.systems/pslog"
)

// HTTPOptions selects the routes served by NewHTTPHandler.
type HTTPOptions struct {
	// WebSocket mounts the gateway at /ws.
	WebSocket bool
	// Gatherer, when set, exposes its metrics at /metrics.
	Gatherer prometheus.Gatherer
	Logger   pslog.Logger
}

// NewHTTPHandler builds the HTTP surface of a server: /healthz always, plus
// the websocket gateway and metrics when enabled.
func NewHTTPHandler(s *Server, opts HTTPOptions) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.WebSocket {
		mux.HandleFunc("/ws", s.ServeWS)
	}
	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	logger := opts.Logger
	if logger == nil {
		logger = s.logger
	}
	return withLogging(logger, mux)
}

func withLogging(logger pslog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start).String())
	})
}

// NewHTTPServer wraps h in an http.Server with the header timeout used for
// every listener.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
