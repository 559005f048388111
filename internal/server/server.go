// Package server provides the HTTP server and routing for papertrader.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/papertrader/internal/config"
	"github.com/aristath/papertrader/internal/di"
	"github.com/aristath/papertrader/internal/identity"
	historyhandlers "github.com/aristath/papertrader/internal/modules/history/handlers"
	ledgerhandlers "github.com/aristath/papertrader/internal/modules/ledger/handlers"
	markethourshandlers "github.com/aristath/papertrader/internal/modules/market_hours/handlers"
	portfoliohandlers "github.com/aristath/papertrader/internal/modules/portfolio/handlers"
	priceshandlers "github.com/aristath/papertrader/internal/modules/prices/handlers"
	riskhandlers "github.com/aristath/papertrader/internal/modules/risk/handlers"
	snapshotshandlers "github.com/aristath/papertrader/internal/modules/snapshots/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container // DI container with all services
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	var backups BackupManager
	if cfg.Container.BackupService != nil {
		backups = cfg.Container.BackupService
	}

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			cfg.Config.DataDir,
			cfg.Container.Databases(),
			cfg.Container.Scheduler,
			backups,
		),
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router exposes the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", identity.HeaderUserID},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	c := s.container

	s.router.Route("/api", func(r chi.Router) {
		// System monitoring and operations
		r.Route("/system", func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database-stats", s.systemHandlers.HandleDatabaseStats)
			r.Get("/disk", s.systemHandlers.HandleDiskUsage)
			r.Get("/jobs", s.systemHandlers.HandleListJobs)
			r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)
			r.Post("/backup", s.systemHandlers.HandleCreateBackup)
			r.Get("/backups", s.systemHandlers.HandleListBackups)
		})

		// Everything else is per user
		r.Group(func(r chi.Router) {
			r.Use(identity.RequireUser(c.ActivityTracker))

			// Price routes include the websocket stream, which must not be wrapped by
			// Timeout or Compress
			priceshandlers.NewHandler(c.PriceService, s.cfg.Prices.StreamInterval, s.log).RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(60 * time.Second))
				if !s.cfg.DevMode {
					r.Use(middleware.Compress(5))
				}

				markethourshandlers.NewHandler(c.MarketHoursService, s.log).RegisterRoutes(r)
				ledgerhandlers.NewHandler(c.Accountant, s.log).RegisterRoutes(r)
				portfoliohandlers.NewHandler(c.PortfolioService, s.log).RegisterRoutes(r)
				historyhandlers.NewHandler(c.HistoryService, s.log).RegisterRoutes(r)
				riskhandlers.NewHandler(c.RiskService, s.log).RegisterRoutes(r)
				snapshotshandlers.NewHandler(c.SnapshotEngine, c.SnapshotRepo, s.log).RegisterRoutes(r)
			})
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
