// Package server wires the HTTP API together: storage, gateway,
// services, middleware and routes.
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
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/advoflow/advoflow/internal/alerts"
	"github.com/advoflow/advoflow/internal/audit"
	"github.com/advoflow/advoflow/internal/config"
	"github.com/advoflow/advoflow/internal/escrow"
	"github.com/advoflow/advoflow/internal/fees"
	"github.com/advoflow/advoflow/internal/gateway"
	"github.com/advoflow/advoflow/internal/health"
	"github.com/advoflow/advoflow/internal/invoice"
	"github.com/advoflow/advoflow/internal/logging"
	"github.com/advoflow/advoflow/internal/metrics"
	"github.com/advoflow/advoflow/internal/order"
	"github.com/advoflow/advoflow/internal/payee"
	"github.com/advoflow/advoflow/internal/payout"
	"github.com/advoflow/advoflow/internal/ratelimit"
	"github.com/advoflow/advoflow/internal/security"
	"github.com/advoflow/advoflow/internal/traces"
	"github.com/advoflow/advoflow/internal/validation"
	"github.com/advoflow/advoflow/internal/webhook"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	gw           gateway.PaymentGateway
	auditor      audit.Recorder
	orders       *order.Service
	payees       *payee.Directory
	payouts      *payout.Service
	sweeper      *escrow.Sweeper
	processor    *webhook.Processor
	alertHub     *alerts.Hub
	checks       *health.Registry
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	stopTracer   func(context.Context) error
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGateway sets a custom payment gateway (for testing)
func WithGateway(gw gateway.PaymentGateway) Option {
	return func(s *Server) {
		s.gw = gw
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
		checks: health.NewRegistry(),
	}

	// Apply options first (may set gateway/logger)
	for _, opt := range opts {
		opt(s)
	}

	rates := fees.Rates{FeeBPS: cfg.FeeRateBPS, TaxBPS: cfg.TaxRateBPS}
	if err := rates.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fee configuration: %w", err)
	}

	// Select the payment gateway. Without a Stripe key the server runs
	// against the deterministic stub, which is only acceptable outside
	// production (config.Validate enforces that).
	if s.gw == nil {
		if cfg.UseStubGateway() {
			s.gw = gateway.NewStub(cfg.StripeWebhookSecret)
			s.logger.Warn("no Stripe key configured, using stub gateway")
			s.checks.Register("gateway", health.Static(true, "stub"))
		} else {
			s.gw = gateway.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
			s.logger.Info("Stripe gateway configured")
			s.checks.Register("gateway", health.Static(true, "stripe"))
		}
	} else {
		s.checks.Register("gateway", health.Static(true, "custom"))
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		orderStore   order.Store
		payeeStore   payee.Store
		payoutStore  payout.Store
		webhookStore webhook.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.auditor = audit.NewPostgresRecorder(db)
		orderStore = order.NewPostgresStore(db)
		payeeStore = payee.NewPostgresStore(db)
		payoutStore = payout.NewPostgresStore(db)
		webhookStore = webhook.NewPostgresStore(db)
		s.checks.Register("database", health.DB(db))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		rec := audit.NewMemoryRecorder()
		s.auditor = rec
		orderStore = order.NewMemoryStore(rec)
		payeeStore = payee.NewMemoryStore()
		payoutStore = payout.NewMemoryStore()
		webhookStore = webhook.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Payee directory drives both payout destinations and the escrow
	// hold policy (new payees get longer holds).
	s.payees = payee.NewDirectory(payeeStore)

	policy := escrow.Policy{
		StandardHold: cfg.HoldPeriod,
		ExtendedHold: cfg.ExtendedHoldPeriod,
		NewPayeeAge:  cfg.NewPayeeAge,
	}
	scheduler := escrow.NewScheduler(policy, s.payees)

	s.payouts = payout.NewService(payoutStore, s.gw, s.payees, s.auditor, s.logger)
	s.alertHub = alerts.NewHub(s.logger)

	s.orders = order.NewService(orderStore, s.auditor, s.payees, s.gw, rates, s.logger).
		WithHolds(scheduler).
		WithPayouts(s.payouts).
		WithAlerts(s.alertHub)

	s.sweeper = escrow.NewSweeper(s.orders, cfg.SweepInterval, s.logger)
	s.processor = webhook.NewProcessor(s.gw, webhookStore, s.orders, s.payouts, s.logger).
		WithAudit(s.auditor).
		WithAlerts(s.alertHub)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
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
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	s.router.Use(security.CORSMiddleware(s.allowedOrigins()))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPS * 60,
		BurstSize:         s.cfg.RateLimitRPS,
		CleanupInterval:   time.Minute,
	})
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Actor attribution for the audit trail
	s.router.Use(s.actorMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) allowedOrigins() []string {
	if s.cfg.AllowedOrigins == "" {
		return []string{"*"}
	}
	parts := strings.Split(s.cfg.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// actorMiddleware stamps the calling party onto the request context so
// every audit record names who acted. Unattributed requests are
// recorded as system actions.
func (s *Server) actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if actorID := c.GetHeader("X-Actor-ID"); actorID != "" {
			actorType := c.GetHeader("X-Actor-Type")
			if actorType == "" {
				actorType = audit.ActorClient
			}
			ctx = audit.WithActor(ctx, actorType, actorID)
		}
		ctx = audit.WithIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
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

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for order alerts
	s.router.GET("/ws", func(c *gin.Context) {
		s.alertHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	order.NewHandler(s.orders).RegisterRoutes(v1)
	payee.NewHandler(s.payees).RegisterRoutes(v1)
	payout.NewHandler(s.payouts).RegisterRoutes(v1)
	webhook.NewHandler(s.processor).RegisterRoutes(v1)

	v1.GET("/orders/:id/invoice", s.invoiceHandler)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Advoflow",
		"description": "Escrow payment settlement for legal services",
		"version":     "0.1.0",
	})
}

// invoiceHandler renders the billing document for a funded order.
// Lives here rather than in the order package so the invoice package
// can depend on order without a cycle.
func (s *Server) invoiceHandler(c *gin.Context) {
	o, err := s.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Order not found",
			})
			return
		}
		logging.L(c.Request.Context()).Error("invoice lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Operation failed",
		})
		return
	}

	inv, err := invoice.Build(o, time.Now())
	if err != nil {
		if errors.Is(err, invoice.ErrNotInvoiceable) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "not_invoiceable",
				"message": "Order has not been funded",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Operation failed",
		})
		return
	}
	c.JSON(http.StatusOK, inv)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when no OTLP endpoint is configured)
	stopTracer, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("tracing disabled", "error", err)
	} else {
		s.stopTracer = stopTracer
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start alert hub
	go s.alertHub.Run(runCtx)

	// Start escrow release sweeper
	go s.sweeper.Start(runCtx)

	// Export connection pool stats
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
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

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, sweeper)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop the sweeper
	if s.sweeper != nil {
		s.sweeper.Stop()
		s.logger.Info("sweeper stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush pending trace spans
	if s.stopTracer != nil {
		if err := s.stopTracer(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
