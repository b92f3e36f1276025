package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	inventoryapp "github.com/stockledger/backend/internal/application/inventory"
	"github.com/stockledger/backend/internal/domain/inventory"
	"github.com/stockledger/backend/internal/infrastructure/cache"
	"github.com/stockledger/backend/internal/infrastructure/config"
	"github.com/stockledger/backend/internal/infrastructure/event"
	"github.com/stockledger/backend/internal/infrastructure/logger"
	"github.com/stockledger/backend/internal/infrastructure/persistence"
	"github.com/stockledger/backend/internal/infrastructure/scheduler"
	"github.com/stockledger/backend/internal/infrastructure/telemetry"
)

// stockd is the stock ledger maintenance daemon. It runs the nightly expiry
// scan and daily summary precompute against the batch ledger, keeps the
// valuation cache warm and coherent across instances, and exports stock level
// metrics. Writes to the ledger happen through the application services
// embedded in the retail platform; this process only reads and re-warms.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting StockLedger maintenance daemon",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	// OpenTelemetry providers. Each constructor returns a no-op provider when
	// telemetry is disabled, so the wiring below stays unconditional.
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.TracingConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	loggerProvider, err := telemetry.NewLoggerProvider(context.Background(), telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := loggerProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()

	// From here on every component logs through the bridged logger, so
	// entries also reach the collector when log export is enabled.
	log = telemetry.BridgeLogger(log, loggerProvider, cfg.Telemetry.ServiceName, cfg.Log.Level)

	// Continuous profiling (no-op when disabled). Mutex and block profiles
	// are on because allocation retries make lock contention the first
	// thing to look at when latency regresses.
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:              cfg.Profiling.Enabled,
		ServerAddress:        cfg.Profiling.ServerAddress,
		ApplicationName:      cfg.Telemetry.ServiceName,
		ProfileCPU:           true,
		ProfileAllocObjects:  true,
		ProfileAllocSpace:    true,
		ProfileInuseObjects:  true,
		ProfileInuseSpace:    true,
		ProfileGoroutines:    true,
		ProfileMutexCount:    true,
		ProfileMutexDuration: true,
		ProfileBlockCount:    true,
		ProfileBlockDuration: true,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()

	// Span profiles need the profiler running first
	if cfg.Profiling.Enabled && cfg.Telemetry.Enabled {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to enable span profiles", zap.Error(err))
		}
	}

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Database query tracing (otelgorm)
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        "postgresql",
		}, log)
		if err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}

	// Database metrics (pool stats, query latency, slow queries)
	dbMetricsCfg := telemetry.DefaultDBMetricsConfig()
	dbMetricsCfg.SlowQueryThreshold = cfg.Telemetry.DBSlowQueryThresh
	dbMetrics, err := telemetry.RegisterDBMetrics(context.Background(), db.DB, meterProvider, dbMetricsCfg, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		defer dbMetrics.Stop()
	}

	// Valuation snapshot cache: in-memory L1 always; Redis L2 with
	// cross-instance invalidation when Redis is reachable. The daemon must see
	// invalidations published by the platform instances so the snapshots it
	// re-warms are never computed over stale reads.
	l1Cache := cache.NewInMemoryValuationCache(cache.WithInMemoryLogger(log))
	var valuationCache inventory.ValuationCache = l1Cache

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	pingErr := redisClient.Ping(pingCtx).Err()
	pingCancel()
	if pingErr != nil {
		log.Warn("Redis unavailable, valuation cache degraded to in-memory only",
			zap.String("addr", cfg.Redis.Addr()),
			zap.Error(pingErr),
		)
		_ = redisClient.Close()
	} else {
		defer func() {
			_ = redisClient.Close()
		}()
		l2Cache := cache.NewRedisValuationCache(redisClient, cache.WithCacheLogger(log))
		invalidator := cache.NewRedisValuationCacheInvalidator(redisClient, cache.WithInvalidatorLogger(log))
		tieredCache := cache.NewTieredValuationCache(l1Cache, l2Cache, invalidator, cache.WithTieredLogger(log))
		// The subscription blocks draining Pub/Sub messages until Close cancels it.
		go func() {
			if err := tieredCache.StartInvalidationSubscription(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("Cache invalidation subscription ended", zap.Error(err))
			}
		}()
		defer func() {
			if err := tieredCache.Close(); err != nil {
				log.Error("Error closing valuation cache", zap.Error(err))
			}
		}()
		valuationCache = tieredCache
		log.Info("Valuation cache connected to Redis", zap.String("addr", cfg.Redis.Addr()))
	}

	// Idempotency store for event handlers (Redis with in-memory fallback)
	idempotencyStore, err := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log)).CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}

	// Initialize repositories
	batchRepo := persistence.NewGormBatchRepository(db.DB)
	movementRepo := persistence.NewGormMovementRepository(db.DB)

	// Valuation service backed by the tiered cache; the daily summary job
	// re-warms snapshots through it
	valuationService := inventoryapp.NewValuationService(batchRepo,
		inventoryapp.WithValuationCache(valuationCache),
		inventoryapp.WithValuationLogger(log),
	)

	// Initialize event bus and handlers
	eventBus := event.NewInMemoryEventBus(log)

	// Stock mutation events -> valuation cache invalidation
	invalidationHandler := event.NewIdempotentHandler(
		inventoryapp.NewValuationInvalidationHandler(valuationCache, log),
		idempotencyStore,
		log,
	)
	eventBus.Subscribe(invalidationHandler)

	// Batch depleted -> operational alert
	depletionHandler := inventoryapp.NewBatchDepletedHandler(log).
		WithNotifier(inventoryapp.NewLoggingDepletionNotifier(log))
	eventBus.Subscribe(depletionHandler)

	// Every stock event -> audit log mirror (catch-all, no event types)
	eventBus.Subscribe(inventoryapp.NewStockEventAuditHandler(log))

	log.Info("Event handlers registered",
		zap.Strings("valuation_invalidation_events", invalidationHandler.EventTypes()),
		zap.Strings("batch_depleted_events", depletionHandler.EventTypes()),
	)

	// Start event bus
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Stock level gauges (batch counts per status, expiring batches, value at cost)
	if meterProvider.IsEnabled() {
		stockMetrics, err := telemetry.NewStockMetrics(telemetry.StockMetricsConfig{
			Meter:            meterProvider.Meter("stockledger.inventory"),
			Logger:           log,
			StockProvider:    telemetry.NewGormStockLevelProvider(db.DB),
			ExpiryWindowDays: cfg.Jobs.ExpiryWindowDays,
		})
		if err != nil {
			log.Fatal("Failed to initialize stock metrics", zap.Error(err))
		}
		stockMetrics.StartPeriodicCollection(context.Background(), 0)
		defer stockMetrics.Stop()
		log.Info("Stock level metrics collection started",
			zap.Int("expiry_window_days", cfg.Jobs.ExpiryWindowDays),
		)
	}

	// Initialize maintenance scheduler (if enabled)
	if cfg.Jobs.Enabled {
		cronHour, cronMinute, err := scheduler.ParseCronSchedule(cfg.Jobs.DailyCronSchedule)
		if err != nil {
			log.Fatal("Invalid jobs.daily_cron_schedule",
				zap.String("schedule", cfg.Jobs.DailyCronSchedule),
				zap.Error(err),
			)
		}

		executor := scheduler.NewMaintenanceExecutor(valuationService, movementRepo, log)
		executor.SetSnapshotWarmer(valuationService)
		executor.SetExpiryWindow(cfg.Jobs.ExpiryWindowDays)

		maintenanceScheduler := scheduler.NewMaintenanceCronScheduler(
			scheduler.MaintenanceCronSchedulerConfig{
				Enabled:           cfg.Jobs.Enabled,
				CronHour:          cronHour,
				CronMinute:        cronMinute,
				DailyCronSchedule: cfg.Jobs.DailyCronSchedule,
				JobTimeout:        cfg.Jobs.JobTimeout,
				MaxConcurrentJobs: cfg.Jobs.MaxConcurrentJobs,
				RetryAttempts:     cfg.Jobs.RetryAttempts,
				RetryDelay:        cfg.Jobs.RetryDelay,
			},
			executor,
			scheduler.NewMaintenanceJobRepository(db.DB),
			log,
		)
		if err := maintenanceScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start maintenance scheduler", zap.Error(err))
		}
		defer func() {
			if err := maintenanceScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping maintenance scheduler", zap.Error(err))
			}
		}()
		log.Info("Maintenance scheduler started",
			zap.String("daily_schedule", cfg.Jobs.DailyCronSchedule),
			zap.Int("expiry_window_days", cfg.Jobs.ExpiryWindowDays),
			zap.Duration("job_timeout", cfg.Jobs.JobTimeout),
		)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down maintenance daemon...")
}
