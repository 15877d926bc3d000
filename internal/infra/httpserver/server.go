package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server exposes /metrics and /healthz for operators.
type Server struct {
	Router chi.Router
	log    *logrus.Entry
	checks map[string]HealthCheck
}

// NewServer creates the ops router. gatherer is the registry served on /metrics.
func NewServer(logger *logrus.Entry, gatherer prometheus.Gatherer, checks map[string]HealthCheck) *Server {
	s := &Server{log: logger, checks: checks}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", s.health)
	s.Router = r
	return s
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	code := http.StatusOK
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			s.log.WithError(err).WithField("check", name).Warn("Health check failed")
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		timeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(timeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Ops server graceful shutdown failed")
		}
	}()

	go func() {
		s.log.WithField("addr", addr).Info("Ops server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Ops server stopped")
		}
		cancel()
	}()
}
