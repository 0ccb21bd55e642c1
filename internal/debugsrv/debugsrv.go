// Package debugsrv implements the loopback-only diagnostic HTTP server
// (SPEC_FULL.md supplemented feature 3): /metrics and /healthz, bound only
// when DEBUG_ADDR is configured. Never exposed to the control-plane TLS
// socket and never gates any control-loop behavior.
package debugsrv

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	sdperrors "github.com/sdpc-project/sdpc/internal/errors"
	"github.com/sdpc-project/sdpc/internal/logging"
)

// Server is the debug HTTP listener.
type Server struct {
	httpSrv *http.Server
	logger  *logging.Logger
}

// HealthFunc reports whether the control loop considers itself healthy; used
// by the /healthz handler.
type HealthFunc func() (ok bool, detail string)

// New builds (but does not start) a debug server bound to addr, refusing to
// bind anything but a loopback address — the spec's default posture is no
// inbound traffic at all, and a debug server is the one deliberate exception,
// so it must not be reachable off-host even by operator misconfiguration.
func New(addr string, gatherer prometheus.Gatherer, health HealthFunc, logger *logging.Logger) (*Server, error) {
	if err := requireLoopback(addr); err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthHandler(health)).Methods(http.MethodGet)

	return &Server{
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}, nil
}

func requireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return sdperrors.Wrapf(err, sdperrors.KindUninitialized, "parse debug_addr %q", addr)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip != nil && ip.IsLoopback() {
		return nil
	}
	return sdperrors.Errorf(sdperrors.KindUninitialized, "debug_addr %q must be loopback-only", addr)
}

func healthHandler(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok\n"))
			return
		}
		ok, detail := health()
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(detail + "\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok: " + detail + "\n"))
	}
}

// Serve starts the listener in the background and logs (without blocking)
// any error other than a clean Shutdown.
func (s *Server) Serve() {
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("debug server: %v", err)
		}
	}()
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
