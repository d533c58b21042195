// Package statusserver exposes a running session over HTTP: health, the
// session snapshot, the latest processed frame and Prometheus metrics.
package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/live_blur/client"
	"example.com/live_blur/pkg/logger"
	"example.com/live_blur/pkg/video"
)

const (
	// DefaultAddr is the listen address of the status server.
	DefaultAddr = "127.0.0.1:9464"

	defaultReadHeaderTimeout = 10 * time.Second
	shutdownTimeout          = 5 * time.Second
)

// Session is the part of client.Client the server reads.
type Session interface {
	Snapshot() client.Snapshot
	LatestFrame() (video.Frame, bool)
}

// Server serves the status endpoints.
type Server struct {
	addr     string
	session  Session
	gatherer prometheus.Gatherer
	log      *slog.Logger
	handler  http.Handler
}

// New creates a status server. A nil gatherer disables /metrics.
func New(addr string, session Session, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:     addr,
		session:  session,
		gatherer: gatherer,
		log:      logger.OrDefault(log).With("component", "statusserver"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /frame.jpg", s.handleFrame)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	s.handler = mux
	return s
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("status server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.session.Snapshot())
}

func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	f, ok := s.session.LatestFrame()
	if !ok || len(f.JPEG) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(f.JPEG); err != nil {
		s.log.Debug("failed to write frame", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("failed to write response", "error", err)
	}
}
