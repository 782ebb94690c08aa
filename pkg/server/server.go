package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shiftsuite/shiftboard/pkg/middleware"
	"github.com/shiftsuite/shiftboard/pkg/session"
	"github.com/shiftsuite/shiftboard/pkg/upload"
)

// Server is the dashboard HTTP server. It wires the upload store, the
// session manager, and the events hub behind a chi router.
type Server struct {
	config   *Config
	sessions *session.Manager
	uploads  upload.Store
	events   *EventHub

	trustedProxies *proxyMatcher
	memory         *MemoryMonitor

	httpServer *http.Server
	logger     *slog.Logger
	done       chan struct{}
}

// New creates a server. sessions and uploads may be nil, in which case a
// manager without manifest persistence and a disk upload store under
// config.DataDir are created.
func New(config *Config, sessions *session.Manager, uploads upload.Store, logger *slog.Logger) (*Server, error) {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return nil, err
	}

	if sessions == nil {
		sessions = session.NewManager(nil, config.Session, logger)
	}
	if uploads == nil {
		store, err := upload.NewDiskStore(filepath.Join(config.DataDir, "staged"), config.MaxUploadBytes)
		if err != nil {
			return nil, err
		}
		uploads = store
	}

	s := &Server{
		config:         config,
		sessions:       sessions,
		uploads:        uploads,
		events:         NewEventHub(logger),
		trustedProxies: newProxyMatcher(config.TrustedProxies, logger),
		logger:         logger,
		done:           make(chan struct{}),
	}

	// Every registration and removal path (create, resume, delete, capacity
	// eviction, TTL expiry, shedding) funnels through these hooks, so the
	// gauges track the manager exactly.
	sessions.SetOnAdd(func(sess *session.Session) {
		middleware.RecordSessionCreate()
		middleware.RecordSessionDiskBytes(sess.Bytes)
	})
	sessions.SetOnRemove(func(sess *session.Session, reason string) {
		middleware.RecordSessionDiskBytes(-sess.Bytes)
		if reason == "removed" {
			middleware.RecordSessionDestroy()
			s.events.Broadcast(Event{Type: EventSessionRemoved, SessionID: sess.ID})
			return
		}
		middleware.RecordSessionEvicted()
		s.events.Broadcast(Event{Type: EventSessionEvicted, SessionID: sess.ID, Detail: reason})
	})

	if config.Memory != nil {
		s.memory = NewMemoryMonitor(config.Memory)
		s.memory.SetOnSoftLimit(s.onMemoryPressure("soft", 1))
		s.memory.SetOnHardLimit(s.onMemoryPressure("hard", 4))
	}

	s.httpServer = &http.Server{
		Addr:              config.Address,
		Handler:           s.routes(),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	return s, nil
}

// onMemoryPressure builds a limit callback shedding up to n sessions.
func (s *Server) onMemoryPressure(level string, n int) func(current, limit int64) {
	return func(current, limit int64) {
		shed := s.sessions.Shed(n, "memory pressure")
		s.logger.Warn("memory limit crossed",
			"level", level,
			"heap_bytes", current,
			"limit_bytes", limit,
			"sessions_shed", shed)
		s.events.Broadcast(Event{Type: EventMemoryPressure, Detail: level})
	}
}

// routes builds the router with the full middleware chain.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Prometheus())
	r.Use(middleware.OpenTelemetry(middleware.WithRequestFilter(func(r *http.Request) bool {
		return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
	})))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/uploads", s.handleStageUpload)
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/events", s.events.ServeHTTP)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Get("/scenarios", s.handleListScenarios)

			r.Route("/scenarios/{scenario}", func(r chi.Router) {
				r.Get("/", s.handleScenarioMetadata)
				r.Get("/datasets/{kind}", s.handleDataset)
				r.Get("/heatmap", s.handleHeatmap)
				r.Get("/shortage", s.handleShortage)
				r.Get("/overview", s.handleOverview)
			})
		})
	})

	return r
}

// Handler returns the routed handler for mounting in tests or an outer mux.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves until Shutdown is
// called. It blocks.
func (s *Server) Start() error {
	if s.memory != nil {
		s.memory.Start()
	}
	go s.sweepStagedUploads()
	s.logger.Info("listening", "address", s.config.Address)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests, then tears down the events hub and
// the session manager. Persisted sessions can be resumed after a restart.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.memory != nil {
		s.memory.Stop()
	}

	drainCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(drainCtx); err != nil {
		s.logger.Warn("http drain failed", "error", err)
	}

	close(s.done)
	s.events.Close()
	return s.sessions.Shutdown(ctx)
}

// sweepStagedUploads periodically drops staged uploads that were never
// claimed into a session.
func (s *Server) sweepStagedUploads() {
	expiry := s.config.Upload.StagedExpiry
	if expiry <= 0 {
		return
	}

	ticker := time.NewTicker(expiry / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.uploads.Cleanup(ctx, expiry); err != nil {
				s.logger.Warn("staged upload cleanup failed", "error", err)
			}
			cancel()
		case <-s.done:
			return
		}
	}
}
