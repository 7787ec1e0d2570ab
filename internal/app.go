// Package internal assembles the application: storage, caches, ingestion
// pipeline, aggregation engine, background jobs and the HTTP server.
package internal

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"glance/internal/analytics"
	"glance/internal/cache"
	"glance/internal/collect"
	"glance/internal/config"
	"glance/internal/database"
	"glance/internal/jobs"
	"glance/internal/limiter"
	"glance/internal/logging"
	"glance/internal/notify"
	"glance/internal/pkg/geoip"
	"glance/internal/websites"
)

// originsTTL bounds how stale the CORS preflight domain set may get.
const originsTTL = 5 * time.Minute

// Application bundles every long-lived component.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBManager *database.Manager
	Fiber     *fiber.App
	Tiers     *cache.Tiers
	Broker    *notify.Broker
	Pipeline  *collect.Pipeline
	Engine    *analytics.Engine
	Origins   *websites.AllowedOrigins
	Scheduler *jobs.Scheduler
}

// NewApp creates an application from the environment configuration.
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates an application from an explicit configuration.
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := logging.NewLogger(cfg)

	dbManager := database.NewManager(cfg, logger)
	if _, err := dbManager.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := dbManager.MigrateDatabase(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	geoip.InitLogger(logger)
	geoip.InitGeoDB()

	tiers := cache.NewTiers(
		time.Duration(cfg.WebsiteCacheTTLSeconds)*time.Second,
		time.Duration(cfg.VisitorCacheTTLSeconds)*time.Second,
		time.Duration(cfg.SessionTimeoutSeconds)*time.Second,
		time.Duration(cfg.ReportCacheTTLSeconds)*time.Second,
	)
	lim := limiter.New(cfg.RateLimitMaxRequests, time.Duration(cfg.RateLimitWindowSeconds)*time.Second)
	broker := notify.NewBroker()

	db := dbManager.GetConnection()
	app := &Application{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		Tiers:     tiers,
		Broker:    broker,
		Pipeline:  collect.New(db, logger, cfg, tiers, lim, broker),
		Engine:    analytics.NewEngine(db, logger, tiers.Report),
		Origins:   websites.NewAllowedOrigins(db, logger, originsTTL),
		Scheduler: jobs.NewScheduler(dbManager, logger, cfg, tiers, lim),
	}

	app.Fiber = fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: !cfg.IsDevelopment(),
	})
	app.mountRoutes()

	return app, nil
}

// Start launches the background jobs and serves HTTP until Shutdown.
func (a *Application) Start() error {
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start background jobs: %w", err)
	}

	addr := ":" + a.Config.AppPort
	a.Logger.Info("Starting server", slog.String("addr", addr))
	return a.Fiber.Listen(addr)
}

// Shutdown stops jobs and drains in-flight requests.
func (a *Application) Shutdown() error {
	a.Scheduler.Stop()
	return a.Fiber.Shutdown()
}
