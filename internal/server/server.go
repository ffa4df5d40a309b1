// Package server exposes the term store over HTTP.
//
// The surface is read-only for the catalogue plus the replacement endpoints:
//
//	GET  /healthz, /readyz     liveness and readiness probes
//	GET  /metrics              Prometheus scrape endpoint
//	GET  /v1/terms             all entries in canonical file order
//	GET  /v1/terms/stats       counts, load time and recent history
//	GET  /v1/terms/{id}        a single entry
//	POST /v1/replace           apply terms to one text
//	POST /v1/transcripts       apply terms to a list of timed segments
//
// Mutations go through the command-line tool, which owns the document.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/termsub/internal/health"
	"github.com/MrWong99/termsub/internal/observe"
	"github.com/MrWong99/termsub/internal/terms"
	"github.com/MrWong99/termsub/internal/transcript"
)

const (
	// maxBodyBytes caps request bodies of the POST endpoints.
	maxBodyBytes = 1 << 20

	defaultShutdownTimeout = 15 * time.Second
)

// Catalog is the read side of a term store. [*terms.Store] satisfies it.
type Catalog interface {
	List() []terms.Entry
	Get(id string) (terms.Entry, error)
	Stats() terms.Stats
}

var _ Catalog = (*terms.Store)(nil)

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithLogger sets the server's logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records HTTP request durations to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithCheckers adds readiness checks to /readyz.
func WithCheckers(c ...health.Checker) Option {
	return func(s *Server) {
		s.checkers = append(s.checkers, c...)
	}
}

// WithMetricsHandler replaces the /metrics handler. Default:
// [promhttp.Handler].
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithShutdownTimeout bounds the graceful shutdown in [Server.Serve].
// Default: 15s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// Server serves the HTTP API.
type Server struct {
	catalog         Catalog
	pipeline        *transcript.Pipeline
	log             *slog.Logger
	metrics         *observe.Metrics
	checkers        []health.Checker
	metricsHandler  http.Handler
	shutdownTimeout time.Duration
}

// New creates a [Server] reading entries from catalog and applying them
// through pipeline.
func New(catalog Catalog, pipeline *transcript.Pipeline, opts ...Option) *Server {
	s := &Server{
		catalog:         catalog,
		pipeline:        pipeline,
		log:             slog.Default(),
		metricsHandler:  promhttp.Handler(),
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))

	health.New(s.checkers...).Register(r)
	r.Method(http.MethodGet, "/metrics", s.metricsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/terms", s.listTerms)
		r.Get("/terms/stats", s.termStats)
		r.Get("/terms/{id}", s.getTerm)
		r.Post("/replace", s.replace)
		r.Post("/transcripts", s.transcripts)
	})
	return r
}

// ListenAndServe listens on addr and calls [Server.Serve].
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.log.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
