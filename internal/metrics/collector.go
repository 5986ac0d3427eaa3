package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a handler for a specific registry.
func HandlerFor(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Server exposes /metrics while a run is in progress.
type Server struct {
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// NewRouter builds the router served by Server.
func NewRouter() *chi.Mux {
	router := chi.NewRouter()
	router.Handle("/metrics", Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return router
}

// Serve starts serving metrics on addr in the background.
func Serve(addr string, logger *slog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s; %w", addr, err)
	}

	s := &Server{
		server: &http.Server{
			Handler:           NewRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	logger.Info("metrics server listening", "addr", listener.Addr().String())
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// RecordItem records the final outcome of an item.
func RecordItem(task, outcome string, attempts int, duration time.Duration) {
	ItemsTotal.WithLabelValues(task, outcome).Inc()
	ItemDuration.WithLabelValues(task).Observe(duration.Seconds())
	if attempts > 1 {
		ItemRetriesTotal.WithLabelValues(task).Add(float64(attempts - 1))
	}
}

// RecordAPIRequest records a document-store request. status is 0 for transport failures.
func RecordAPIRequest(operation string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(operation, statusClass(status)).Inc()
	APIRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSearchPage records one fetched search page.
func RecordSearchPage() {
	SearchPagesTotal.Inc()
}

// RecordTokenRefresh records a token exchange.
func RecordTokenRefresh(err error) {
	if err != nil {
		TokenRefreshTotal.WithLabelValues("error").Inc()
		return
	}
	TokenRefreshTotal.WithLabelValues("ok").Inc()
}

// StartRun publishes the run identity.
func StartRun(task, runID, version string, started time.Time) {
	RunInfo.WithLabelValues(task, runID, version).Set(1)
	RunStartTime.Set(float64(started.Unix()))
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
