package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/labelgw/internal/auth"
	"github.com/mattjoyce/labelgw/internal/dispatch"
	"github.com/mattjoyce/labelgw/internal/events"
	"github.com/mattjoyce/labelgw/internal/journal"
)

// Dispatcher turns print requests into outcomes.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// JobStore exposes the print journal.
type JobStore interface {
	Get(ctx context.Context, id string) (*journal.Entry, error)
	List(ctx context.Context, f journal.ListFilter) ([]journal.Entry, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey guards the print and journal endpoints. Empty disables auth.
	APIKey       string
	MaxBodyBytes int64

	// Service info reported by / and /health.
	ServiceName  string
	Version      string
	DryRun       bool
	PrinterModel string
	TapeSize     string
	Driver       string
	// PrintTimeout bounds the worker and LockTimeout the wait for the device
	// before it. The write timeout covers both.
	PrintTimeout time.Duration
	LockTimeout  time.Duration
}

// writeMargin covers request decoding and spooling around a print.
const writeMargin = 30 * time.Second

// Server represents the HTTP API server
type Server struct {
	config     Config
	dispatcher Dispatcher
	jobs       JobStore
	events     *events.Hub
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time

	sseKeepAlive time.Duration
}

// New creates a new API server instance. jobs and hub may be nil, in which
// case the journal and event endpoints answer 404.
func New(config Config, dispatcher Dispatcher, jobs JobStore, hub *events.Hub, logger *slog.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 16 << 20
	}
	if config.PrintTimeout <= 0 {
		config.PrintTimeout = 30 * time.Second
	}
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		jobs:       jobs,
		events:     hub,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.writeTimeout(),
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "dry_run", s.config.DryRun)

	// Run server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		// In-flight prints get their full budget to finish.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.LockTimeout+s.config.PrintTimeout+5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// writeTimeout bounds a response. A print may wait for the device lock and
// then the worker; /events lifts the deadline for its own connection.
func (s *Server) writeTimeout() time.Duration {
	return s.config.LockTimeout + s.config.PrintTimeout + writeMargin
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated info endpoints.
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/labels", s.handleLabels)
	r.Get("/openapi.json", s.handleOpenAPI)

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/print", s.handlePrint)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware checks the bearer token when an API key is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := auth.Authenticate(r, s.config.APIKey); err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="labelgw"`)
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
