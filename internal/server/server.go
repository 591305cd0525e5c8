// Package server exposes annotation, live sessions and preferences over
// HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"emojilens/internal/health"
	"emojilens/internal/lexicon"
	"emojilens/internal/metrics"
	"emojilens/internal/prefs"
	"emojilens/internal/session"
)

// Config holds listener and request limits.
type Config struct {
	Listen       string
	RateLimit    float64 // requests per second; zero disables limiting
	Burst        int
	MaxBodyBytes int64
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Listen:       "127.0.0.1:7337",
		RateLimit:    50,
		Burst:        100,
		MaxBodyBytes: 4 << 20,
	}
}

// Deps are the collaborators the handlers use.
type Deps struct {
	Manager *session.Manager
	Store   prefs.Store
	Lexicon *lexicon.Lexicon
	Health  *health.Checker
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server is the HTTP front end.
type Server struct {
	cfg     Config
	manager *session.Manager
	store   prefs.Store
	lexicon *lexicon.Lexicon
	health  *health.Checker
	metrics *metrics.Metrics
	logger  *slog.Logger
	limiter *rate.Limiter
	handler http.Handler
}

// New builds a server and its routes.
func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Lexicon == nil {
		deps.Lexicon = lexicon.Empty()
	}
	if deps.Health == nil {
		deps.Health = health.NewChecker()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	s := &Server{
		cfg:     cfg,
		manager: deps.Manager,
		store:   deps.Store,
		lexicon: deps.Lexicon,
		health:  deps.Health,
		metrics: metrics.OrNew(deps.Metrics),
		logger:  deps.Logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/annotate", s.handleAnnotate)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/mutations", s.handleMutations)
	mux.HandleFunc("GET /v1/preferences", s.handleGetPreferences)
	mux.HandleFunc("PUT /v1/preferences", s.handlePutPreferences)
	mux.HandleFunc("GET /v1/preview", s.handlePreview)
	mux.Handle("GET /metrics", s.metrics.Registry().HTTPHandler())
	mux.Handle("GET /healthz", s.health.HealthHandler())
	mux.Handle("GET /readyz", s.health.ReadinessHandler())

	s.handler = s.logRequests(s.limit(s.limitBody(mux)))
	return s
}

// SetRateLimit adjusts the limiter of a running server. It has no effect
// when the server was built without rate limiting.
func (s *Server) SetRateLimit(limit float64, burst int) {
	if s.limiter == nil || limit <= 0 {
		return
	}
	if burst <= 0 {
		burst = 1
	}
	s.limiter.SetLimit(rate.Limit(limit))
	s.limiter.SetBurst(burst)
	s.logger.Info("rate limit updated", "limit", limit, "burst", burst)
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	s.health.SetReady(true)
	s.logger.Info("server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		s.health.SetReady(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
