// Package httpadapter exposes the service's operational HTTP surface:
// health and readiness probes, Prometheus metrics, pipeline status, and
// alert acknowledgment.
package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/air-quality-sentinel/internal/store"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
// The pipeline driver is ready once its first cycle has completed.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// StatusReporter returns a JSON-serializable snapshot of pipeline state.
type StatusReporter interface {
	Status() any
}

// Acknowledger marks a published alert as handled.
type Acknowledger interface {
	Acknowledge(ctx context.Context, id int64) error
}

// Server exposes health, readiness, metrics, status, and alert endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer wires the operational routes. status and acker may be nil for
// binaries that run without a pipeline, which disables those routes.
func NewServer(addr string, ready ReadinessChecker, status StatusReporter, acker Acknowledger, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if status != nil {
		mux.HandleFunc("GET /status", handleStatus(status))
	}
	if acker != nil {
		mux.HandleFunc("POST /alerts/{id}/acknowledge", s.handleAcknowledge(acker))
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func handleStatus(status StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, status.Status())
	}
}

func (s *Server) handleAcknowledge(acker Acknowledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid alert id"})
			return
		}

		if err := acker.Acknowledge(r.Context(), id); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, store.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}

		s.logger.Info("alert acknowledged", "id", id)
		writeJSON(w, http.StatusOK, map[string]any{"acknowledged": id})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort health response
}
