package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/opsched/internal/config"
	"github.com/me/opsched/internal/engine"
	"github.com/me/opsched/internal/scheduler"
	"github.com/me/opsched/pkg/model"
)

// Catalog receives imported descriptor files. The service's reloader reads
// from the same catalog.
type Catalog interface {
	ReplaceDescriptors(ctx context.Context, ds []model.OperationDescriptor) error
}

// EventLog serves recent scheduling events, newest first.
type EventLog interface {
	RecentEvents(ctx context.Context, n int) ([]model.Event, error)
}

// Server is the opsched REST API server.
type Server struct {
	router      chi.Router
	logger      *slog.Logger
	config      config.ServerConfig
	startTime   time.Time
	svc         *engine.Service
	scheduler   scheduler.Scheduler
	catalog     Catalog  // optional; without it imports load straight into the service
	events      EventLog // optional; /events is empty without it
	sseInterval time.Duration
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithCatalog sets where imported descriptor files are stored.
func WithCatalog(c Catalog) Option {
	return func(s *Server) {
		s.catalog = c
	}
}

// WithEventLog sets the source of GET /events.
func WithEventLog(l EventLog) Option {
	return func(s *Server) {
		s.events = l
	}
}

// WithSSEInterval sets how often machine streams poll for changes.
func WithSSEInterval(d time.Duration) Option {
	return func(s *Server) {
		s.sseInterval = d
	}
}

// New creates a new Server with all routes registered.
// sched may be nil if no periodic scheduling is desired (e.g. in tests).
func New(cfg config.ServerConfig, svc *engine.Service, sched scheduler.Scheduler, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		logger:      logger.With("component", "server"),
		config:      cfg,
		startTime:   time.Now(),
		svc:         svc,
		scheduler:   sched,
		sseInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// StartScheduler begins the scheduling loop in a background goroutine.
func (s *Server) StartScheduler(ctx context.Context) {
	if s.scheduler == nil {
		return
	}
	go func() {
		if err := s.scheduler.Start(ctx); err != nil && err != context.Canceled {
			s.logger.Error("scheduler stopped", "error", err)
		}
	}()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", s.handleListOrders)
			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", s.handleGetOrder)
				r.Post("/force", s.handleForceOrder)
				r.Post("/unforce", s.handleUnforceOrder)
				r.Post("/estimate", s.handleEstimateOrder)
				r.Route("/operations/{opID}", func(r chi.Router) {
					r.Post("/start", s.handleStartOperation)
					r.Post("/complete", s.handleCompleteOperation)
					r.Post("/halt", s.handleHaltOperation)
					r.Post("/resume", s.handleResumeOperation)
				})
			})
		})

		r.Route("/machines", func(r chi.Router) {
			r.Get("/", s.handleListMachines)
			r.Get("/{id}", s.handleGetMachine)
		})

		r.Route("/schedule", func(r chi.Router) {
			r.Get("/", s.handleGetSchedule)
			r.Post("/pass", s.handleRunPass)
		})

		r.Get("/summary", s.handleSummary)
		r.Get("/events", s.handleListEvents)

		// Catalog
		r.Post("/reset", s.handleReset)
		r.Post("/import", s.handleImport)
		r.Get("/export", s.handleExport)

		// SSE endpoints for real-time updates
		r.Route("/sse", func(r chi.Router) {
			r.Get("/machines/{id}", s.handleSSEMachine)
		})
	})
}
