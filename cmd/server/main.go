// Package main is the entry point for the FarmOps server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/ai"
	"github.com/myhorsefarm/farmops/internal/audit"
	"github.com/myhorsefarm/farmops/internal/availability"
	"github.com/myhorsefarm/farmops/internal/campaign"
	"github.com/myhorsefarm/farmops/internal/config"
	"github.com/myhorsefarm/farmops/internal/database"
	"github.com/myhorsefarm/farmops/internal/email"
	"github.com/myhorsefarm/farmops/internal/handler"
	"github.com/myhorsefarm/farmops/internal/hubspot"
	"github.com/myhorsefarm/farmops/internal/logging"
	"github.com/myhorsefarm/farmops/internal/metrics"
	"github.com/myhorsefarm/farmops/internal/middleware"
	"github.com/myhorsefarm/farmops/internal/ratelimit"
	"github.com/myhorsefarm/farmops/internal/repository"
	"github.com/myhorsefarm/farmops/internal/service"
	"github.com/myhorsefarm/farmops/internal/shutdown"
	"github.com/myhorsefarm/farmops/internal/square"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Load .env in development; a missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger := appLogger.Zap()
	defer func() { _ = logger.Sync() }()

	logger.Info("starting FarmOps server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Environment),
	)

	// Initialize database and apply migrations
	ctx := context.Background()
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	// Note: db.Close() is handled by shutdown coordinator

	migrator := database.NewMigrator(db.Pool, logger)
	if err := migrator.MigrateFromFS(ctx, database.Migrations, database.MigrationsDir); err != nil {
		logger.Fatal("failed to apply migrations", zap.Error(err))
	}

	// Initialize repositories
	quoteRepo := repository.NewQuoteRepository(db.Pool)
	bookingRepo := repository.NewBookingRepository(db.Pool)
	serviceRepo := repository.NewServiceRepository(db.Pool)
	scheduleRepo := repository.NewScheduleRepository(db.Pool)
	sequenceRepo := repository.NewSequenceRepository(db.Pool)
	chatSessionRepo := repository.NewChatSessionRepository(db.Pool)
	chatLimitRepo := repository.NewUserRateLimitRepository(db.Pool, logger)

	// Initialize external API clients
	hubspotClient := hubspot.New(&cfg.HubSpot, logger)
	squareClient := square.New(&cfg.Square, logger)
	emailClient := email.New(&cfg.Email, cfg.App.PublicURL, logger)
	claudeClient := ai.NewClaudeClient(&cfg.Anthropic, logger)

	// Initialize metrics, business event logging, and the security audit trail
	m := metrics.NewMetrics()
	events := metrics.NewBusinessEventLogger(logger)
	auditLog := audit.NewLogger(logger)

	// Initialize engines
	availabilityEngine := availability.NewEngine(scheduleRepo, bookingRepo, nil, logger)
	campaignEngine := campaign.NewEngine(hubspotClient, emailClient, serviceRepo, &cfg.HubSpot, nil, logger)

	// Initialize services
	quoteService := service.NewQuoteService(
		quoteRepo,
		serviceRepo,
		sequenceRepo,
		db.TxManager,
		hubspotClient,
		emailClient,
		&cfg.HubSpot,
		cfg.App.NumberPrefix,
		nil,
		logger,
	)
	bookingService := service.NewBookingService(
		bookingRepo,
		quoteRepo,
		serviceRepo,
		sequenceRepo,
		availabilityEngine,
		hubspotClient,
		emailClient,
		&cfg.HubSpot,
		cfg.App.NumberPrefix,
		nil,
		logger,
	)
	reconciler := service.NewPaymentReconciler(
		squareClient,
		hubspotClient,
		emailClient,
		&cfg.HubSpot,
		nil,
		logger,
	)
	chatService := service.NewChatService(
		chatSessionRepo,
		serviceRepo,
		scheduleRepo,
		availabilityEngine,
		quoteService,
		claudeClient,
		emailClient,
		cfg.Anthropic.MaxToolIterations,
		nil,
		logger,
	)

	// Rate limiters: a global token bucket per IP, a cost cap on model
	// calls, a per-session turn limiter, and a lockout on failed admin auth.
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, logger).WithAudit(auditLog)
	authLimiter := middleware.NewAuthRateLimiter(logger)
	chatCostLimiter := ratelimit.NewQuoteLimiter(ratelimit.DefaultQuoteLimiterConfig(), logger)
	chatSessionLimiter := ratelimit.NewUserRateLimiter(ratelimit.DefaultUserRateLimitConfig(), chatLimitRepo, logger)

	// Initialize handlers
	quoteHandler := handler.NewQuoteHandler(handler.QuoteHandlerConfig{
		QuoteService: quoteService,
		Logger:       logger,
		Metrics:      m,
		Audit:        auditLog,
	})
	bookingHandler := handler.NewBookingHandler(handler.BookingHandlerConfig{
		BookingService: bookingService,
		Availability:   availabilityEngine,
		Logger:         logger,
		Metrics:        m,
		Audit:          auditLog,
	})
	chatHandler := handler.NewChatHandler(handler.ChatHandlerConfig{
		ChatService:    chatService,
		CostLimiter:    chatCostLimiter,
		SessionLimiter: chatSessionLimiter,
		Logger:         logger,
		Metrics:        m,
	})
	webhookHandler := handler.NewWebhookHandler(handler.WebhookHandlerConfig{
		Verifier:   squareClient,
		Reconciler: reconciler,
		Audit:      auditLog,
		Logger:     logger,
		Metrics:    m,
	})
	cronHandler := handler.NewCronHandler(handler.CronHandlerConfig{
		Campaigns: campaignEngine,
		Secret:    cfg.Cron.Secret,
		Logger:    logger,
		Metrics:   m,
		Events:    events,
		Audit:     auditLog,
	})
	unsubscribeHandler := handler.NewUnsubscribeHandler(handler.UnsubscribeHandlerConfig{
		Verifier: emailClient,
		CRM:      hubspotClient,
		Events:   events,
		Logger:   logger,
		Audit:    auditLog,
	})
	adminHandler := handler.NewAdminHandler(handler.AdminHandlerConfig{
		Services:    serviceRepo,
		Schedules:   scheduleRepo,
		Admin:       &cfg.Admin,
		AuthLimiter: authLimiter,
		Audit:       auditLog,
		Logger:      logger,
	})
	catalogHandler := handler.NewCatalogHandler(handler.CatalogHandlerConfig{
		Services: serviceRepo,
		Logger:   logger,
	})
	healthHandler := handler.NewHealthHandler(handler.HealthHandlerConfig{
		HealthChecker: db,
		Circuits: map[string]handler.CircuitChecker{
			"hubspot":   hubspotClient,
			"square":    squareClient,
			"email":     emailClient,
			"anthropic": claudeClient,
		},
		Logger: logger,
	})
	logLevelHandler := handler.NewLogLevelHandler(appLogger.AtomicLevel(), logger)

	// Initialize request correlation
	correlation := middleware.NewRequestCorrelation(logger)

	// Initialize router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(correlation.Middleware) // First: add correlation IDs
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(chimiddleware.Compress(5))
	r.Use(m.Middleware)
	r.Use(middleware.RateLimit(rateLimiter))

	// Register routes
	quoteHandler.RegisterRoutes(r)
	bookingHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)
	webhookHandler.RegisterRoutes(r)
	cronHandler.RegisterRoutes(r)
	unsubscribeHandler.RegisterRoutes(r)
	adminHandler.RegisterRoutes(r)
	catalogHandler.RegisterRoutes(r)
	healthHandler.RegisterRoutes(r)
	r.Handle("/admin/log-level", logLevelHandler)
	r.Handle("/metrics", m.Handler())

	// Create server. The write timeout must cover a full streamed chat turn,
	// not just a request/response round trip.
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()
	auditLog.ServiceStarted(ctx, version, cfg.Server.Environment)

	// Initialize shutdown coordinator
	shutdownCoord := shutdown.NewCoordinator(&shutdown.Config{
		Timeout: 30 * time.Second,
	}, logger)

	// Phase 2 (Drain): Let in-flight requests complete
	shutdownCoord.RegisterFunc(shutdown.PhaseDrain, "http-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})

	// Phase 4 (Cleanup): Close connections and flush buffers
	shutdownCoord.RegisterFunc(shutdown.PhaseCleanup, "database", func(ctx context.Context) error {
		db.Close()
		return nil
	})

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("received shutdown signal")
	auditLog.ServiceStopping(ctx, "shutdown signal received")

	// Execute graceful shutdown
	if err := shutdownCoord.Shutdown(ctx); err != nil {
		logger.Error("shutdown completed with errors", zap.Error(err))
	}
}

// initLogger builds the application logger with runtime level adjustment.
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(&logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Environment: cfg.Server.Environment,
	})
}
