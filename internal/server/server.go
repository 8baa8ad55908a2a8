// Package server wires the escrow service, its stores and the HTTP surface.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/homeescrow/internal/auth"
	"github.com/mbd888/homeescrow/internal/circuitbreaker"
	"github.com/mbd888/homeescrow/internal/config"
	"github.com/mbd888/homeescrow/internal/documents"
	"github.com/mbd888/homeescrow/internal/escrow"
	"github.com/mbd888/homeescrow/internal/health"
	"github.com/mbd888/homeescrow/internal/idgen"
	"github.com/mbd888/homeescrow/internal/logging"
	"github.com/mbd888/homeescrow/internal/metrics"
	"github.com/mbd888/homeescrow/internal/notify"
	"github.com/mbd888/homeescrow/internal/payments"
	"github.com/mbd888/homeescrow/internal/property"
	"github.com/mbd888/homeescrow/internal/ratelimit"
	"github.com/mbd888/homeescrow/internal/realtime"
	"github.com/mbd888/homeescrow/internal/security"
	"github.com/mbd888/homeescrow/internal/traces"
	"github.com/mbd888/homeescrow/internal/validation"
	"github.com/mbd888/homeescrow/migrations"
)

// Version is stamped at build time with -ldflags "-X ...server.Version=...".
var Version = "dev"

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	db            *sql.DB // nil if using in-memory
	escrowStore   escrow.Store
	escrowService *escrow.Service
	sampler       *escrow.Sampler
	notifyStore   notify.Store
	dispatcher    *notify.Dispatcher
	properties    property.Lookup
	confirmer     payments.Confirmer
	presigner     documents.Presigner
	breaker       *circuitbreaker.Breaker
	verifier      *auth.Verifier
	realtimeHub   *realtime.Hub
	rateLimiter   *ratelimit.Limiter
	health        *health.Registry
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	drainDelay    time.Duration
	cancelRunCtx  context.CancelFunc
	stopTracing   func(context.Context) error

	ready atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithPropertyLookup replaces the configured property source.
func WithPropertyLookup(l property.Lookup) Option {
	return func(s *Server) { s.properties = l }
}

// WithPaymentConfirmer replaces the Stripe confirmer.
func WithPaymentConfirmer(c payments.Confirmer) Option {
	return func(s *Server) { s.confirmer = c }
}

// WithDrainDelay sets how long Shutdown waits for load balancers to stop
// routing before closing listeners.
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) { s.drainDelay = d }
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		drainDelay: 5 * time.Second,
		breaker:    circuitbreaker.New(5, 30*time.Second),
		health:     health.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := escrow.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}
	if err := s.setupStorage(); err != nil {
		return nil, err
	}
	if err := s.setupIntegrations(); err != nil {
		return nil, err
	}

	s.realtimeHub = realtime.NewHub(s.logger)
	s.dispatcher = notify.NewDispatcher(s.notifyStore, s.logger,
		notify.WithWorkers(cfg.NotifyWorkers),
		notify.WithQueueSize(cfg.NotifyQueueSize),
		notify.WithPusher(notify.HubPusher{Hub: s.realtimeHub}),
	)

	directory := auth.NewDirectory(cfg.AdminUserIDs)
	s.verifier = auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, directory)

	guarded := property.NewGuarded(s.properties, s.breaker, cfg.UpstreamTimeout, s.logger)
	s.escrowService = escrow.NewService(s.escrowStore, guarded, s.logger).
		WithNotifier(s.dispatcher).
		WithAdminDirectory(directory).
		WithStoreTimeout(cfg.StoreTimeout).
		WithUpstreamTimeout(cfg.UpstreamTimeout).
		WithDefaultCurrency(cfg.DefaultCurrency)
	if s.confirmer != nil {
		s.escrowService.WithPaymentConfirmer(s.confirmer)
	}
	s.sampler = escrow.NewSampler(s.escrowStore, escrow.DefaultSampleInterval, s.logger)

	s.setupHealth()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// setupStorage picks Postgres when DATABASE_URL is set, in-memory otherwise.
func (s *Server) setupStorage() error {
	cfg := s.cfg
	if cfg.DatabaseURL == "" {
		s.escrowStore = escrow.NewMemoryStore()
		s.notifyStore = notify.NewMemoryStore()
		if s.properties == nil {
			lookup := property.NewMemoryLookup()
			if cfg.PropertiesFile != "" {
				var err error
				if lookup, err = property.LoadFile(cfg.PropertiesFile); err != nil {
					return fmt.Errorf("load properties: %w", err)
				}
			}
			s.properties = lookup
			s.logger.Info("property lookup seeded", "properties", lookup.Len())
		}
		s.logger.Info("using in-memory storage (data will not persist)")
		return nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := migrations.Up(ctx, db); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		s.logger.Info("database migrations applied")
	}

	s.db = db
	s.escrowStore = escrow.NewPostgresStore(db)
	s.notifyStore = notify.NewPostgresStore(db)
	if s.properties == nil {
		s.properties = property.NewPostgresLookup(db)
	}
	s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	return nil
}

func (s *Server) setupIntegrations() error {
	cfg := s.cfg
	if s.confirmer == nil && cfg.StripeSecretKey != "" {
		s.confirmer = payments.NewStripeConfirmer(cfg.StripeSecretKey, s.breaker, s.logger)
		s.logger.Info("payment confirmation enabled", "provider", "stripe")
	}
	if cfg.DocumentsEnabled() {
		p, err := documents.NewS3Presigner(documents.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("configure document uploads: %w", err)
		}
		s.presigner = p
		s.logger.Info("document uploads enabled", "bucket", cfg.S3Bucket)
	}
	return nil
}

func (s *Server) setupHealth() {
	if s.db != nil {
		s.health.Register("database", health.Database(s.db))
	}
	s.health.Register(property.BreakerKey, health.Breaker(s.breaker, property.BreakerKey))
	if s.confirmer != nil {
		s.health.Register(payments.BreakerKey, health.Breaker(s.breaker, payments.BreakerKey))
	}
	s.health.Register("notifications", health.Queue("notifications", s.dispatcher.Pending, s.dispatcher.Capacity, 0.9))
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(s.requestIDMiddleware())
	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(auth.Middleware(s.verifier))

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerSecond: s.cfg.RateLimitRPS,
		BurstSize:         s.cfg.RateLimitBurst,
	})
	s.router.Use(s.rateLimiter.Middleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = idgen.Hex(16)
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger.With("request_id", requestID))
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		logger := logging.L(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health.ReadinessHandler())
	s.router.GET("/health/live", health.LivenessHandler(Version))
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Browsers cannot set headers on WebSocket upgrades, so the token may
	// also arrive as ?token=.
	s.router.GET("/ws", auth.RequireAuth(), func(c *gin.Context) {
		user, _ := auth.CurrentUser(c)
		s.realtimeHub.ServeUser(c.Writer, c.Request, user.ID.String())
	})

	v1 := s.router.Group("/v1", auth.RequireAuth())
	escrow.NewHandler(s.escrowService).WithPresigner(s.presigner).RegisterRoutes(v1)
	notify.NewHandler(s.notifyStore).RegisterRoutes(v1)
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	s.health.ReadinessHandler()(c)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server and background workers and blocks until ctx
// is cancelled, a signal arrives or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	stopTracing, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, Version, s.logger)
	if err != nil {
		s.logger.Warn("tracing init failed, continuing without traces", "error", err)
	} else {
		s.stopTracing = stopTracing
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "version", Version)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)
	s.dispatcher.Start()
	go s.sampler.Start(runCtx)
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	s.ready.Store(true)
	s.logger.Info("server ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		_ = s.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server. In-flight requests finish, queued
// notifications are flushed, then the database pool closes.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	s.sampler.Stop()
	if err := s.dispatcher.Stop(ctx); err != nil {
		s.logger.Warn("notification queue not fully drained", "error", err)
	}
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.stopTracing != nil {
		if err := s.stopTracing(ctx); err != nil {
			s.logger.Warn("trace exporter shutdown error", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return shutdownErr
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Verifier returns the token verifier, used by tests and the MCP bridge.
func (s *Server) Verifier() *auth.Verifier {
	return s.verifier
}
