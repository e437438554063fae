// Package server wires the dispute engine together and runs the HTTP API.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
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

	"github.com/servimarket/disputes/internal/config"
	"github.com/servimarket/disputes/internal/dispute"
	"github.com/servimarket/disputes/internal/escrow"
	"github.com/servimarket/disputes/internal/fees"
	"github.com/servimarket/disputes/internal/health"
	"github.com/servimarket/disputes/internal/logging"
	"github.com/servimarket/disputes/internal/mediator"
	"github.com/servimarket/disputes/internal/metrics"
	"github.com/servimarket/disputes/internal/notify"
	"github.com/servimarket/disputes/internal/payments"
	"github.com/servimarket/disputes/internal/ratelimit"
	"github.com/servimarket/disputes/internal/security"
	"github.com/servimarket/disputes/internal/traces"
	"github.com/servimarket/disputes/internal/validation"
)

// Server wraps the HTTP server and dependencies.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db          *sql.DB // nil when using in-memory stores
	processor   payments.Processor
	escrows     *escrow.Service
	assessor    *fees.Assessor
	disputes    *dispute.Service
	scheduler   *dispute.Scheduler
	webhooks    notify.Store
	rateLimiter *ratelimit.Limiter
	healthReg   *health.Registry

	router        *gin.Engine
	httpSrv       *http.Server
	shutdownTrace func(context.Context) error
	ready         atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithProcessor injects a payment processor (for testing).
func WithProcessor(p payments.Processor) Option {
	return func(s *Server) { s.processor = p }
}

// New creates a server instance with all subsystems wired.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, "json"),
		healthReg: health.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Payment processor: Stripe when configured, fake otherwise.
	if s.processor == nil {
		if cfg.StripeAPIKey != "" {
			s.processor = payments.NewStripeProcessor(cfg.StripeAPIKey)
			s.logger.Info("stripe processor enabled")
		} else {
			s.processor = payments.NewFake()
			s.logger.Info("fake payment processor enabled (funds are simulated)")
		}
	}

	// Mediation capability: HTTP when configured, deterministic otherwise.
	var med mediator.Mediator
	if cfg.MediatorURL != "" {
		med = mediator.NewHTTP(cfg.MediatorURL, cfg.MediatorAPIKey, cfg.MediatorTimeout)
		s.logger.Info("mediation capability enabled", "url", cfg.MediatorURL)
	} else {
		med = mediator.NewStatic()
		s.logger.Info("static mediator enabled (deterministic proposals)")
	}

	// Storage: Postgres when DATABASE_URL is set, in-memory otherwise.
	var (
		escrowStore  escrow.Store
		feeStore     fees.Store
		disputeStore dispute.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		escrowStore = escrow.NewPostgresStore(db)
		feeStore = fees.NewPostgresStore(db)
		disputeStore = dispute.NewPostgresStore(db)
		s.webhooks = notify.NewPostgresStore(db)
		s.healthReg.Register("database", func(ctx context.Context) error {
			return db.PingContext(ctx)
		})
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		escrowStore = escrow.NewMemoryStore()
		feeStore = fees.NewMemoryStore()
		disputeStore = dispute.NewMemoryStore()
		s.webhooks = notify.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	s.escrows = escrow.NewService(escrowStore, s.processor, cfg.PlatformFeeBps)
	s.assessor = fees.NewAssessor(feeStore, s.processor, cfg.OpenFeeCents, cfg.EscalationFeeCents)

	emitter := notify.NewEmitter(notify.NewDispatcher(s.webhooks), s.logger)
	s.disputes = dispute.NewService(disputeStore, s.escrows, s.assessor, med, emitter, dispute.Windows{
		Negotiation: cfg.NegotiationWindow,
		Mediation:   cfg.MediationWindow,
		Review:      cfg.ReviewWindow,
	})
	s.scheduler = dispute.NewScheduler(s.disputes, cfg.SchedulerInterval, cfg.DeadlineWarning, s.logger)

	s.setupRouter()
	return s, nil
}

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

func (s *Server) setupRouter() {
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()

	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))
	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerSecond: float64(s.cfg.RateLimitRPS),
		Burst:             s.cfg.RateLimitRPS * 2,
		CleanupInterval:   time.Minute,
	})
	s.router.Use(s.rateLimiter.Middleware())
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())

	// Health & metrics
	s.router.GET("/health/live", health.LiveHandler())
	s.router.GET("/health/ready", s.readinessHandler())
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	dispute.NewHandler(s.disputes, s.assessor).RegisterRoutes(v1)
	escrow.NewHandler(s.escrows).RegisterRoutes(v1)
	notify.NewHandler(s.webhooks).RegisterRoutes(v1)
}

func (s *Server) readinessHandler() gin.HandlerFunc {
	ready := s.healthReg.ReadyHandler()
	return func(c *gin.Context) {
		if !s.ready.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		ready(c)
	}
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
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

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method, "path", path, "status", status,
				"latency_ms", latency.Milliseconds(), "client_ip", c.ClientIP())
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method, "path", path, "status", status,
				"latency_ms", latency.Milliseconds())
		default:
			logger.Info("request completed",
				"method", c.Request.Method, "path", path, "status", status,
				"latency_ms", latency.Milliseconds())
		}
	}
}

func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Router returns the gin engine, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server, scheduler and background collectors, and
// blocks until a shutdown signal or ctx cancellation.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.OTLPEndpoint != "" {
		shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
		if err != nil {
			s.logger.Warn("tracing disabled", "error", err)
		} else {
			s.shutdownTrace = shutdown
		}
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
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.scheduler.Start()
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server and all background work.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var firstErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown error", "error", err)
			firstErr = err
		}
	}

	if s.scheduler != nil {
		s.scheduler.Stop()
		s.logger.Info("scheduler stopped")
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.shutdownTrace != nil {
		if err := s.shutdownTrace(ctx); err != nil {
			s.logger.Warn("trace exporter shutdown error", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.logger.Info("shutdown complete")
	return firstErr
}
