// Package api implements the Admit-Assist HTTP API: the chat endpoint
// used by the web page, onboarding status and admin routes, health,
// version and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/n1dhiparate/admit-assist/internal/assistant"
	"github.com/n1dhiparate/admit-assist/internal/metrics"
	"github.com/n1dhiparate/admit-assist/internal/onboarding"
)

// Assistant is the part of the assistant service the API calls.
type Assistant interface {
	SubmitMessage(ctx context.Context, studentID, text string) assistant.ComposedAnswer
	Status(ctx context.Context, studentID string) onboarding.Status
	AggregateStats(ctx context.Context) onboarding.AggregateStats
	Reset(ctx context.Context, studentID string, ms ...onboarding.Milestone) onboarding.Status
}

// Invalidator drops a cached brochure so the next read reloads it.
type Invalidator interface {
	Invalidate()
}

// Config holds server settings.
type Config struct {
	Address string
	Port    int
	// StudentID is the single student the HTTP surface acts for.
	StudentID      string
	AllowedOrigins []string
	// RequestsPerSecond limits POST /chat; zero or less disables it.
	RequestsPerSecond float64
	Burst             int
}

// Server is the HTTP API server.
type Server struct {
	cfg      Config
	assist   Assistant
	brochure Invalidator
	metrics  *metrics.Metrics
	limiter  *rate.Limiter
	logger   *slog.Logger

	mu     sync.Mutex
	server *http.Server
	closed bool

	dependencies func() map[string]DependencyStatus
}

// DependencyStatus is the health of one external service as reported
// by GET /health.
type DependencyStatus struct {
	Name      string `json:"name"`
	Ready     bool   `json:"ready"`
	LastCheck string `json:"last_check,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// SetDependencies installs the source of dependency health for
// GET /health. Without it the endpoint reports only liveness.
func (s *Server) SetDependencies(fn func() map[string]DependencyStatus) {
	s.dependencies = fn
}

// NewServer creates a new API server. brochure and m may be nil.
func NewServer(cfg Config, assist Assistant, brochure Invalidator, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StudentID == "" {
		cfg.StudentID = assistant.DefaultStudentID
	}
	s := &Server{
		cfg:      cfg,
		assist:   assist,
		brochure: brochure,
		metrics:  m,
		logger:   logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return s
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestID)
	r.Use(s.withLogging)
	r.Use(cors(s.cfg.AllowedOrigins))

	r.Get("/", s.handleIndex)
	r.With(s.rateLimit).Post("/chat", s.handleChat)
	r.Get("/status", s.handleStatus)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Post("/reset", s.handleReset)
		r.Post("/brochure/reload", s.handleBrochureReload)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}

// Start serves HTTP until Shutdown is called. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second, // generation can be slow
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	addr := s.cfg.Address
	if addr == "" {
		addr = "0.0.0.0"
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("starting API server", "address", addr, "port", s.cfg.Port)
	return srv.ListenAndServe()
}

// Shutdown gracefully stops the server. A Start that has not run yet
// returns http.ErrServerClosed immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// errorResponse writes {"error": msg} with the given status.
func (s *Server) errorResponse(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg}, s.logger)
}
