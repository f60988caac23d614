// Package main provides the entry point of the food parcel service
package main

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/food-parcel/app/handlers"
	"github.com/amirphl/food-parcel/app/middleware"
	"github.com/amirphl/food-parcel/app/router"
	"github.com/amirphl/food-parcel/app/scheduler"
	"github.com/amirphl/food-parcel/app/services"
	businessflow "github.com/amirphl/food-parcel/business_flow"
	"github.com/amirphl/food-parcel/config"
	"github.com/amirphl/food-parcel/repository"
	"github.com/amirphl/food-parcel/utils"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	scheduler *scheduler.Scheduler
	logger    zerolog.Logger
	closers   []io.Closer
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	logger, logCloser := services.NewLogger(cfg.Logging, cfg.Deployment)
	logger.Info().
		Str("commit", cfg.Deployment.CommitHash).
		Str("build_time", cfg.Deployment.BuildTime).
		Msg("starting food parcel service")

	app, err := initializeApplication(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}
	app.closers = append(app.closers, logCloser)

	app.router.SetupRoutes()

	if err := app.scheduler.Start(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	app.shutdown(cfg.Server.ShutdownTimeout)
}

// shutdown stops the scheduler, waits for in-flight runs, then drains HTTP
func (a *Application) shutdown(timeout time.Duration) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stopped := a.scheduler.Stop()
	select {
	case <-stopped.Done():
	case <-shutdownCtx.Done():
		a.logger.Warn().Msg("scheduler jobs still running at shutdown deadline")
	}

	for _, fn := range a.stopFuncs {
		fn()
	}

	if err := a.router.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("error during server shutdown")
	}

	a.logger.Info().Msg("server stopped")
	for _, c := range a.closers {
		_ = c.Close()
	}
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, logger zerolog.Logger) (*gorm.DB, error) {
	level := gormlogger.Silent
	if cfg.SlowQueryLog {
		level = gormlogger.Warn
	}
	gormLog := gormlogger.New(
		stdlog.New(logger.With().Str("component", "gorm").Logger(), "", 0),
		gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
		NowFunc:        utils.UTCNow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Int("max_open_conns", cfg.MaxOpenConns).
		Int("max_idle_conns", cfg.MaxIdleConns).
		Msg("database connection established")

	return db, nil
}

// initializeCache returns nil when caching is disabled
func initializeCache(cfg config.CacheConfig, logger zerolog.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Int("db", cfg.RedisDB).Msg("redis connection established")
	return rc, nil
}

// startCacheHealthMonitor periodically pings redis. The returned func stops it.
func startCacheHealthMonitor(client *redis.Client, interval time.Duration, logger zerolog.Logger) func() {
	monitorCtx, cancel := context.WithCancel(context.Background())
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn().Err(err).Msg("redis healthcheck failed")
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication wires repositories, services, flows and handlers
func initializeApplication(cfg *config.ProductionConfig, logger zerolog.Logger) (*Application, error) {
	app := &Application{logger: logger}

	tp, err := utils.NewTimeProvider(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, err
	}

	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		app.closers = append(app.closers, sqlDB)
	}

	rc, err := initializeCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		app.stopFuncs = append(app.stopFuncs, startCacheHealthMonitor(rc, 30*time.Second, logger))
		app.closers = append(app.closers, rc)
	}

	// Repositories
	householdRepo := repository.NewHouseholdRepository(db)
	parcelRepo := repository.NewParcelRepository(db)
	locationRepo := repository.NewPickupLocationRepository(db)
	smsRepo := repository.NewOutgoingSMSRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	transactor := repository.NewTransactor(db)

	// Services
	smsProvider, err := services.NewSMSProvider(cfg.SMS, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sms provider: %w", err)
	}
	smsProvider = services.NewRateLimitedSMSProvider(smsProvider, cfg.SMS.RatePerSecond, cfg.SMS.RateBurst)

	alerts, err := services.NewAlertService(cfg.Alert, smsProvider, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize alert service: %w", err)
	}

	tokenService, err := services.NewTokenService(
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	locations := services.NewLocationCache(locationRepo, rc, cfg.Cache.RedisPrefix, cfg.Reminder.LocationCacheTTL, logger)

	// Flows
	validationFlow := businessflow.NewParcelValidationFlow(parcelRepo, locations, tp, cfg.Reminder.DefaultMaxPerSlot, logger)
	removalFlow := businessflow.NewHouseholdRemovalFlow(householdRepo, parcelRepo, smsRepo, auditRepo, transactor, tp, logger)
	reminderFlow := businessflow.NewSMSReminderFlow(
		parcelRepo,
		householdRepo,
		locationRepo,
		smsRepo,
		smsProvider,
		tp,
		businessflow.ReminderOptions{
			Horizon:        cfg.Reminder.Horizon,
			StaleThreshold: cfg.Reminder.StaleThreshold,
			BatchLimit:     cfg.Reminder.BatchLimit,
		},
		logger,
	)
	dashboardFlow := businessflow.NewSMSDashboardFlow(smsRepo, tp, cfg.Reminder.StaleThreshold, logger)

	app.scheduler = scheduler.NewScheduler(
		cfg.Scheduler,
		cfg.Deployment,
		cfg.SMS.TestMode,
		reminderFlow,
		removalFlow,
		alerts,
		tp,
		logger,
	)

	app.router = router.NewFiberRouter(
		cfg,
		middleware.NewAuthMiddleware(tokenService),
		router.Handlers{
			Scheduler: handlers.NewSchedulerHandler(app.scheduler, logger),
			Parcel:    handlers.NewParcelHandler(validationFlow, tp),
			Household: handlers.NewHouseholdHandler(removalFlow),
			SMS:       handlers.NewSMSHandler(dashboardFlow, tp),
		},
		logger,
	)

	logger.Info().
		Str("sms_provider", cfg.SMS.Provider).
		Bool("sms_test_mode", cfg.SMS.TestMode).
		Str("timezone", tp.Location().String()).
		Msg("application initialized")

	return app, nil
}
