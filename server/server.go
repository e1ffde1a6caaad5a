// Package server provides the HTTP API of the cloudops build supervisor.
//
// The server runs the configured build on demand or on a cron schedule, one
// run at a time, and exposes the live status and history of runs.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /metrics - Prometheus metrics, when a metrics handler is set
//   - GET /api/status - Current or last run with live activity logs, and the next scheduled run
//   - GET /api/operations - Configured operations in build order
//   - GET /api/config - Current configuration as YAML, credentials redacted
//   - POST /api/run - Triggers a run of all or selected operations
//   - GET /api/history - Completed runs, most recent first
//   - GET /api/history/:id - One completed run with its activity executions
//
// # Example
//
//	r := runner.New(logger, pipeline, runner.WithStateStore(store))
//	srv, err := server.New(&cfg, r,
//		server.WithLogger(logger),
//		server.WithMetricsHandler(registry.Handler()),
//		server.WithCron(specs...),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nomis52/cloudops/config"
	"github.com/nomis52/cloudops/server/cron"
	"github.com/nomis52/cloudops/server/handlers"
	"github.com/nomis52/cloudops/server/runner"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultListenAddr      = ":8080"
)

// Server is the HTTP server for the cloudops API.
type Server struct {
	addr           string
	cfg            *config.Config
	logger         *slog.Logger
	runner         *runner.Runner
	cronSpecs      []cron.TriggerSpec
	cron           *cron.CronTriggerManager
	metricsHandler http.Handler
	certLoader     *CertLoader
	engine         *gin.Engine
	httpServer     *http.Server
}

// Option configures a Server.
type Option func(*Server) error

// WithListenAddr configures the address the server listens on.
// Default is ":8080".
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithCron runs the build on the given schedules.
func WithCron(specs ...cron.TriggerSpec) Option {
	return func(s *Server) error {
		s.cronSpecs = append(s.cronSpecs, specs...)
		return nil
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) error {
		s.metricsHandler = h
		return nil
	}
}

// WithTLS serves HTTPS with the given certificate and key. The files are
// reloaded when they change on disk.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) error {
		loader, err := NewCertLoader(certFile, keyFile, s.logger)
		if err != nil {
			return err
		}
		s.certLoader = loader
		return nil
	}
}

// New creates a Server that starts runs on r.
func New(cfg *config.Config, r *runner.Runner, opts ...Option) (*Server, error) {
	if cfg == nil || r == nil {
		return nil, errors.New("config and runner are required")
	}

	s := &Server{
		addr:   defaultListenAddr,
		cfg:    cfg,
		logger: slog.Default(),
		runner: r,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "server")

	if len(s.cronSpecs) > 0 {
		manager, err := cron.NewCronTriggerManager(s.cronSpecs, cronRunnable{r}, s.logger)
		if err != nil {
			return nil, fmt.Errorf("creating cron triggers: %w", err)
		}
		s.cron = manager
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestLogger(s.logger))
	s.registerRoutes(s.engine)

	return s, nil
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Config returns the server's configuration.
func (s *Server) Config() *config.Config {
	return s.cfg
}

// Status returns the current run status by delegating to the runner.
func (s *Server) Status() runner.RunStatus {
	return s.runner.Status()
}

// NextRun returns the next scheduled run time, or nil if no cron is configured.
func (s *Server) NextRun() *time.Time {
	if s.cron == nil {
		return nil
	}
	next := s.cron.NextRun()
	if next.IsZero() {
		return nil
	}
	return &next
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs a graceful shutdown when the context is done.
// If cron triggers are configured, they are started automatically.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.engine,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if s.certLoader != nil {
		s.httpServer.TLSConfig = &tls.Config{
			GetCertificate: s.certLoader.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}
	}

	if s.cron != nil {
		s.logger.Info("starting cron triggers", "next_run", s.cron.NextRun())
		s.cron.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.addr, "tls", s.certLoader != nil)
		var err error
		if s.certLoader != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(e *gin.Engine) {
	runHandler := handlers.NewRunHandler(s.runner)
	historyHandler := handlers.NewHistoryHandler(s.runner)
	statusHandler := handlers.NewStatusHandler(s.logger, s)
	configHandler := handlers.NewConfigHandler(s)
	operationsHandler := handlers.NewOperationsHandler(s)

	e.GET("/health", handlers.HandleHealth)
	if s.metricsHandler != nil {
		e.GET("/metrics", gin.WrapH(s.metricsHandler))
	}

	api := e.Group("/api")
	api.GET("/status", statusHandler.Handle)
	api.GET("/operations", operationsHandler.Handle)
	api.GET("/config", configHandler.Handle)
	api.POST("/run", runHandler.Handle)
	api.GET("/history", historyHandler.List)
	api.GET("/history/:id", historyHandler.Get)
}

// cronRunnable starts scheduled runs.
type cronRunnable struct {
	runner *runner.Runner
}

func (c cronRunnable) Run(operations []string) error {
	return c.runner.Run(runner.TriggerCron, operations)
}

// requestLogger logs each request once it has been served.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "request served",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
