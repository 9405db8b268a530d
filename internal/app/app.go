package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ikemenltd/gasgen/internal/common"
	"github.com/ikemenltd/gasgen/internal/handlers"
	"github.com/ikemenltd/gasgen/internal/interfaces"
	"github.com/ikemenltd/gasgen/internal/services/cache"
	"github.com/ikemenltd/gasgen/internal/services/llm"
	"github.com/ikemenltd/gasgen/internal/services/messenger"
	"github.com/ikemenltd/gasgen/internal/services/queue"
	"github.com/ikemenltd/gasgen/internal/services/ratelimit"
	"github.com/ikemenltd/gasgen/internal/services/scheduler"
	"github.com/ikemenltd/gasgen/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Core services
	RateLimiter      interfaces.RateLimiter
	ContextCache     interfaces.ContextCache
	Generator        interfaces.Generator
	Messenger        interfaces.Messenger
	QueueService     interfaces.QueueService
	SchedulerService interfaces.SchedulerService

	// HTTP handlers
	TriggerHandler *handlers.TriggerHandler
	JobHandler     *handlers.JobHandler
	StatusHandler  *handlers.StatusHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initScheduler(); err != nil {
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("environment", cfg.Environment).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	// 1. Rate limiter with the configured window classes
	limiter, err := ratelimit.NewService(a.Logger, a.Config.RateLimits, time.Minute)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	a.RateLimiter = limiter
	a.Logger.Debug().Int("classes", len(a.Config.RateLimits)).Msg("Rate limiter initialized")

	// 2. Conversation context cache
	contextCache := cache.NewService(
		a.Logger,
		a.Config.Cache.MaxSize,
		common.Duration(a.Config.Cache.TTL, 30*time.Minute),
		a.Config.Cache.WarmUpThreshold,
		common.Duration(a.Config.Cache.SweepInterval, 5*time.Minute),
	)
	contextCache.Start()
	a.ContextCache = contextCache
	a.Logger.Debug().Int("max_size", a.Config.Cache.MaxSize).Msg("Context cache initialized")

	// 3. Claude generation service
	claudeService, err := llm.NewClaudeService(&a.Config.Claude, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Claude service: %w", err)
	}
	if err := claudeService.HealthCheck(context.Background()); err != nil {
		// Startup proceeds; generation will fail per-job until the key works
		a.Logger.Warn().Err(err).Msg("Claude service health check failed")
	}
	a.Generator = claudeService
	a.Logger.Debug().Str("model", a.Config.Claude.Model).Msg("Claude service initialized")

	// 4. LINE push client
	lineOpts := []messenger.ClientOption{
		messenger.WithLogger(a.Logger),
		messenger.WithRateLimit(a.Config.Line.RequestsPerSecond),
		messenger.WithHTTPClient(&http.Client{
			Timeout: common.Duration(a.Config.Line.Timeout, 10*time.Second),
		}),
	}
	if a.Config.Line.Endpoint != "" {
		lineOpts = append(lineOpts, messenger.WithEndpoint(a.Config.Line.Endpoint))
	}
	a.Messenger = messenger.NewLineClient(a.Config.Line.ChannelToken, lineOpts...)
	a.Logger.Debug().Msg("LINE client initialized")

	// 5. Queue service ties the pipeline together
	a.QueueService = queue.NewService(
		a.Logger,
		a.StorageManager.JobStorage(),
		a.RateLimiter,
		a.ContextCache,
		a.Generator,
		a.Messenger,
		a.Config,
	)
	a.Logger.Debug().
		Int("batch_size", a.Config.Queue.BatchSize).
		Int("concurrency", a.Config.Queue.Concurrency).
		Msg("Queue service initialized")

	// Claims stranded by a crash before this start are returned to pending
	if count, err := a.QueueService.RecoverStale(context.Background()); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to recover stale jobs at startup")
	} else if count > 0 {
		a.Logger.Info().Int("count", count).Msg("Recovered stale jobs from previous run")
	}

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.TriggerHandler = handlers.NewTriggerHandler(a.QueueService, a.Config.Server.CronSecret, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.QueueService, a.StorageManager.JobStorage(), a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.QueueService, a.ContextCache, a.SchedulerService, a.Config.Environment, a.Logger)
}

// initScheduler registers background maintenance jobs and, when opted in,
// an internal dispatch cron alongside the HTTP trigger.
func (a *App) initScheduler() error {
	sched := scheduler.NewService(a.Logger)

	if err := sched.RegisterJob("recover-stale", "*/5 * * * *", func() error {
		_, err := a.QueueService.RecoverStale(context.Background())
		return err
	}); err != nil {
		return err
	}

	if err := sched.RegisterJob("cleanup-old", "0 3 * * *", func() error {
		_, err := a.QueueService.CleanupOldJobs(context.Background())
		return err
	}); err != nil {
		return err
	}

	if a.Config.Scheduler.Enabled {
		if err := sched.RegisterJob("dispatch", a.Config.Scheduler.DispatchSchedule, func() error {
			_, err := a.QueueService.DispatchCycle(context.Background(), 0)
			return err
		}); err != nil {
			return err
		}
	}

	if err := sched.Start(); err != nil {
		return err
	}

	a.SchedulerService = sched
	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.ContextCache != nil {
		a.ContextCache.Stop()
	}

	if a.RateLimiter != nil {
		a.RateLimiter.Stop()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
