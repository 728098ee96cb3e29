// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and builds the logger, then:
//
//	Server.New() creates:
//	  sqlite.DB ──────────────┐
//	  storage.Store ──────────┤
//	  responder.Responder ────┼→ PromptService → PromptHandler
//	  upload.Validator ───────┘
//	  Password/TokenService ──→ AuthService   → AuthHandler
//	  ratelimit.Limiter ──────→ RateLimit middleware on /api/auth
//	  prometheus.Registry ────→ metrics.Metrics, /metrics
//
// This is the "composition root" pattern — all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/clustify-agent/internal/auth"
	"github.com/sakif/clustify-agent/internal/config"
	"github.com/sakif/clustify-agent/internal/handler"
	"github.com/sakif/clustify-agent/internal/metrics"
	"github.com/sakif/clustify-agent/internal/middleware"
	"github.com/sakif/clustify-agent/internal/ratelimit"
	sqliteRepo "github.com/sakif/clustify-agent/internal/repository/sqlite"
	"github.com/sakif/clustify-agent/internal/responder"
	"github.com/sakif/clustify-agent/internal/service"
	"github.com/sakif/clustify-agent/internal/storage"
	"github.com/sakif/clustify-agent/internal/upload"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and, depending on config, a Redis
// client and a Gemini client. closers lists them in creation order; Close
// releases them in reverse.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	closers []func() error
}

// New creates a Server from cfg.
//
// DEPENDENCY INJECTION & WIRING:
//  1. Open the database and run migrations
//  2. Build the swappable backends (blob store, responder, limiter)
//  3. Create the services with the repository INTERFACES they need
//  4. Create the handlers with the services
//  5. Wire handlers to routes
//
// If any step fails, whatever was already opened is closed again.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		closers: []func() error{db.Close},
	}

	if err := s.setupRoutes(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases every resource the server opened.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /metrics                → Prometheus exposition
// GET    /api/health             → liveness + DB ping
// POST   /api/auth/register      → create account        (rate limited)
// POST   /api/auth/login         → issue session token   (rate limited)
// GET    /api/user/profile       → caller's account      (bearer token)
// POST   /api/prompts            → submit prompt + files (bearer token)
// GET    /api/prompts            → caller's history      (bearer token)
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
//  1. RequestID — assigns unique ID to each request (for tracing)
//  2. RealIP — extracts real client IP from proxy headers, only when
//     TRUST_PROXY_HEADERS is set; otherwise the socket peer is the client
//  3. Logger — logs each request with timing info
//  4. Recoverer — catches panics and returns 500 instead of crashing
//  5. Metrics — counts requests per route pattern
//  6. CORS — lets the browser client call us from its own origin
func (s *Server) setupRoutes(ctx context.Context) error {
	cfg := s.config

	// === Metrics registry ===
	// A private registry (not prometheus.DefaultRegisterer) so tests can build
	// several servers in one process without "duplicate collector" panics.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// === Swappable backends ===
	blobs, err := s.newBlobStore(ctx)
	if err != nil {
		return err
	}
	resp, err := s.newResponder(ctx)
	if err != nil {
		return err
	}
	limiter := s.newLimiter(ctx)

	// === Auth ===
	passwords, err := auth.NewPasswordService(cfg.BcryptCost)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	gate := auth.NewGate(tokens)

	// === Services and handlers ===
	// s.db implements both repository.UserRepository and
	// repository.PromptRepository; each service only sees the interfaces.
	validator := upload.NewValidator(upload.Policy{
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		MaxFiles:          cfg.Upload.MaxFiles,
		MaxFileSize:       cfg.Upload.MaxFileBytes,
	})
	policy := validator.Policy()

	authService := service.NewAuthService(s.db, passwords, tokens, m, s.logger)
	promptService := service.NewPromptService(s.db, s.db, validator, blobs, resp, m, s.logger)

	authHandler := handler.NewAuthHandler(authService, gate, s.logger)
	promptHandler := handler.NewPromptHandler(promptService, gate, policy.MaxFiles, policy.MaxFileSize, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Metrics(m))
	s.router.Use(middleware.CORS(cfg.CORSAllowedOrigin))

	s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.HandleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.RateLimit(limiter, "auth", m, s.logger))
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
		})

		r.Get("/user/profile", authHandler.HandleProfile)

		r.Post("/prompts", promptHandler.HandleSubmit)
		r.Get("/prompts", promptHandler.HandleList)
	})

	return nil
}

func (s *Server) newBlobStore(ctx context.Context) (storage.Store, error) {
	sc := s.config.Storage
	if sc.Backend == "s3" {
		st, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:    sc.S3Bucket,
			Region:    sc.S3Region,
			Endpoint:  sc.S3Endpoint,
			AccessKey: sc.S3AccessKey,
			SecretKey: sc.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		s.logger.Info("attachments stored in S3", slog.String("bucket", sc.S3Bucket))
		return st, nil
	}

	st, err := storage.NewDiskStore(s.config.Upload.Dir)
	if err != nil {
		return nil, err
	}
	s.logger.Info("attachments stored on disk", slog.String("dir", s.config.Upload.Dir))
	return st, nil
}

func (s *Server) newResponder(ctx context.Context) (responder.Responder, error) {
	rc := s.config.Responder
	switch rc.Kind {
	case "http":
		s.logger.Info("using HTTP responder", slog.String("url", rc.URL))
		return responder.NewHTTP(responder.HTTPConfig{
			URL:          rc.URL,
			Timeout:      rc.Timeout,
			TokenURL:     rc.TokenURL,
			ClientID:     rc.ClientID,
			ClientSecret: rc.ClientSecret,
		}), nil
	case "gemini":
		g, err := responder.NewGemini(ctx, rc.GeminiAPIKey, rc.GeminiModel)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, g.Close)
		s.logger.Info("using Gemini responder", slog.String("model", rc.GeminiModel))
		return g, nil
	default:
		s.logger.Info("using mock responder")
		return responder.Mock{}, nil
	}
}

// newLimiter prefers Redis so replicas share one budget. If Redis is not
// configured or does not answer at startup, each process counts on its own.
func (s *Server) newLimiter(ctx context.Context) ratelimit.Limiter {
	rl := s.config.RateLimit
	rc := s.config.Redis

	if rc.Addr != "" {
		client := ratelimit.NewRedisClient(rc.Addr, rc.Password, rc.DB)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		err := client.Ping(pingCtx).Err()
		if err == nil {
			s.closers = append(s.closers, client.Close)
			s.logger.Info("auth rate limit backed by Redis", slog.String("addr", rc.Addr))
			return ratelimit.NewRedis(client, rl.Limit, rl.Window)
		}

		client.Close()
		s.logger.Warn("redis unreachable, using in-memory rate limit",
			slog.String("addr", rc.Addr),
			slog.String("error", err.Error()),
		)
	}
	return ratelimit.NewMemory(rl.Limit, rl.Window)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database, Redis and Gemini clients
//
// Uploads can be large and the responder may take up to its own timeout, so
// read and write timeouts are measured in minutes rather than seconds.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      s.config.Responder.Timeout + 2*time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
