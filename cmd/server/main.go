package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	catalogapp "github.com/syncbridge/backend/internal/application/catalog"
	integrationapp "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/cache"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/destination"
	"github.com/syncbridge/backend/internal/infrastructure/event"
	"github.com/syncbridge/backend/internal/infrastructure/export"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/infrastructure/persistence"
	"github.com/syncbridge/backend/internal/infrastructure/queue"
	"github.com/syncbridge/backend/internal/infrastructure/ratelimit"
	"github.com/syncbridge/backend/internal/infrastructure/scheduler"
	"github.com/syncbridge/backend/internal/infrastructure/storage"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"github.com/syncbridge/backend/internal/interfaces/http/handler"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
	"github.com/syncbridge/backend/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	otelCfg := telemetry.Config{
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Traces:            cfg.Telemetry.Enabled,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		Metrics:           cfg.Telemetry.Enabled,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		Logs:              cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
	}
	// OTLP logs: rebuild the logger with a second core feeding the collector
	logProvider, err := telemetry.NewLoggerProvider(rootCtx, otelCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	if logProvider.IsEnabled() {
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: logProvider,
			Level:          logger.ParseLevel(cfg.Log.Level),
		})
		if log, err = logger.New(logCfg, otelCore); err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting sync engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(rootCtx, otelCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(rootCtx, otelCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:             cfg.Telemetry.ProfilingEnabled,
		ServerAddress:       cfg.Telemetry.PyroscopeAddress,
		ApplicationName:     cfg.Telemetry.ServiceName,
		ProfileCPU:          true,
		ProfileAllocObjects: true,
		ProfileAllocSpace:   true,
		ProfileInuseObjects: true,
		ProfileInuseSpace:   true,
	}, log)
	if err != nil {
		log.Warn("Continuous profiling unavailable", zap.Error(err))
	}
	if profiler != nil && profiler.IsEnabled() {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Span profiles unavailable", zap.Error(err))
		}
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		dbTracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	}
	if err := telemetry.NewDBTracingPlugin(dbTracing, log).RegisterOtelGorm(db.DB); err != nil {
		log.Warn("Database tracing unavailable", zap.Error(err))
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		log.Warn("Database metrics unavailable", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(rootCtx)
	}

	// Redis is only dialed when a component is configured to share state through it
	var redisClient *redis.Client
	if usesRedis(cfg) {
		redisClient, err = cache.NewRedisClient(rootCtx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis", zap.Error(err))
			}
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}
	var redisCmd redis.Cmdable
	if redisClient != nil {
		redisCmd = redisClient
	}

	// Repositories
	pairRepo := persistence.NewGormConnectionPairRepository(db.DB)
	companyRepo := persistence.NewGormCompanyRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	pricingRuleRepo := persistence.NewGormPricingRuleRepository(db.DB)
	syncLogRepo := persistence.NewGormSyncLogRepository(db.DB)
	syncRecordRepo := persistence.NewGormSyncRecordRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	stores := cache.NewStoreFactory(redisCmd, cache.WithLogger(log))
	dedupeBackend := cache.BackendMemory
	if cfg.Queue.Backend == config.QueueBackendRedis {
		dedupeBackend = cache.BackendRedis
	}
	dedupeStore, err := stores.DedupeStore(dedupeBackend)
	if err != nil {
		log.Fatal("Failed to create dispatch dedupe store", zap.Error(err))
	}
	defer func() {
		_ = dedupeStore.Close()
	}()
	aggregateCache, err := stores.AggregateCache(cfg.Analytics.CacheBackend)
	if err != nil {
		log.Fatal("Failed to create analytics cache", zap.Error(err))
	}

	// Destinations: REST gateway behind the rate limiter and a circuit breaker
	limiters, err := ratelimit.NewRegistryFromConfig(cfg.RateLimit, redisCmd, log)
	if err != nil {
		log.Fatal("Failed to configure rate limits", zap.Error(err))
	}
	destinations, err := destination.BuildRegistry(cfg.Destinations, limiters, log)
	if err != nil {
		log.Fatal("Failed to configure destinations", zap.Error(err))
	}

	// Event bus
	eventBus := event.NewInMemoryEventBus(log)

	// Sync services
	statusManager := integrationapp.NewSyncStatusManager(syncRecordRepo, retryPolicy(cfg.Sync), log)
	syncService := integrationapp.NewSyncService(integrationapp.SyncServiceDeps{
		Records:   syncRecordRepo,
		Pairs:     pairRepo,
		Companies: companyRepo,
		Products:  productRepo,
		TxScope:   txScope,
		Registry:  destinations,
		Status:    statusManager,
	}, log).WithDedupe(dedupeStore, cfg.Sync.DedupeWindow)

	processor := integrationapp.NewBatchSyncProcessor(
		syncRecordRepo,
		syncLogRepo,
		destinations,
		statusManager,
		syncService,
		integrationapp.BatchSyncConfig{
			SubChunkSize:  cfg.Sync.SubChunkSize,
			ThrottleEvery: cfg.Sync.ThrottleEvery,
			ThrottleDelay: cfg.Sync.ThrottleDelay,
		},
		log,
	).WithPublisher(eventBus)

	jobScheduler, err := scheduler.NewSyncJobScheduler(
		schedulerConfig(cfg),
		scheduler.NewSyncJobExecutor(processor, log),
		log,
	)
	if err != nil {
		log.Fatal("Invalid scheduler configuration", zap.Error(err))
	}

	var jobQueue integration.JobQueue = jobScheduler
	var streamQueue *queue.RedisStreamQueue
	if cfg.Queue.Backend == config.QueueBackendRedis {
		streamQueue = queue.NewRedisStreamQueue(redisClient, cfg.Queue, log)
		if err := streamQueue.EnsureGroup(rootCtx); err != nil {
			log.Fatal("Failed to prepare sync job stream", zap.Error(err))
		}
		jobQueue = streamQueue
	}
	syncService.SetQueue(jobQueue)

	syncRecordService := integrationapp.NewSyncRecordService(syncRecordRepo, pairRepo, productRepo, syncLogRepo, syncService, eventBus, log)
	analyticsService := integrationapp.NewSyncAnalyticsService(
		syncRecordRepo,
		syncLogRepo,
		jobQueue,
		aggregateCache,
		integrationapp.AnalyticsConfig{
			CacheTTL:             cfg.Analytics.CacheTTL,
			StaleInProgressAfter: cfg.Analytics.StaleInProgressAfter,
			BacklogWarning:       cfg.Analytics.BacklogWarning,
			BacklogCritical:      cfg.Analytics.BacklogCritical,
		},
		log,
	)

	productService := catalogapp.NewProductService(productRepo, eventBus, log)
	pricingRuleService := catalogapp.NewPricingRuleService(pricingRuleRepo, eventBus, log)

	// Observers
	eventBus.Subscribe(integrationapp.NewProductObserver(productRepo, syncService, eventBus, log))
	eventBus.Subscribe(integrationapp.NewCatalogStatusObserver(syncRecordRepo, syncService, cfg.Sync.Cooldown, log))
	eventBus.Subscribe(catalogapp.NewPricingRuleObserver(productRepo, eventBus, log))
	eventBus.Subscribe(catalogapp.NewPriceRecomputeHandler(productRepo, pricingRuleRepo, syncRecordRepo, statusManager, log))

	backlog := telemetry.NewGormBacklogProvider(db.DB)
	syncMetrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:           meterProvider.Meter("sync-engine"),
		Logger:          log,
		BacklogProvider: backlog,
	})
	if err != nil {
		log.Warn("Sync metrics unavailable", zap.Error(err))
	} else {
		eventBus.Subscribe(syncMetrics)
		syncMetrics.StartPeriodicCollection(rootCtx, backlog, cfg.Telemetry.MetricsInterval)
	}

	var kafkaForwarder *event.KafkaForwarder
	if cfg.Kafka.Enabled {
		writer, err := event.NewKafkaWriter(cfg.Kafka)
		if err != nil {
			log.Fatal("Failed to create Kafka writer", zap.Error(err))
		}
		kafkaForwarder = event.NewKafkaForwarder(writer, event.NewEventSerializer(), cfg.Kafka.WriteTimeout, log)
		eventBus.Subscribe(kafkaForwarder)
		log.Info("Forwarding sync outcomes to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	if err := eventBus.Start(rootCtx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Background work
	var sweeper *scheduler.SyncSweeper
	if cfg.Scheduler.Enabled {
		if err := jobScheduler.Start(rootCtx); err != nil {
			log.Fatal("Failed to start sync job scheduler", zap.Error(err))
		}
		if streamQueue != nil {
			go func() {
				if err := streamQueue.Consume(rootCtx, jobScheduler); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("Sync job stream consumer stopped", zap.Error(err))
				}
			}()
		}

		if cfg.Scheduler.SweepEnabled {
			var locker scheduler.SweepLocker
			if redisClient != nil {
				locker = scheduler.NewRedisSweepLock(redisClient, scheduler.DefaultSweepLockKey)
			}
			sweepCfg := scheduler.SyncSweeperConfigFrom(cfg)
			sweepCfg.BatchChunkSize = cfg.Sync.BatchLimit
			sweeper = scheduler.NewSyncSweeper(sweepCfg, syncService, statusManager, pairRepo, locker, log)
			if err := sweeper.Start(rootCtx); err != nil {
				log.Fatal("Failed to start sync sweeper", zap.Error(err))
			}
		}
	} else {
		log.Warn("Scheduler disabled, queued sync jobs will not run on this instance")
	}

	// Handlers
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService, syncRecordService, export.NewEncoder, log).
		WithExportMaxRows(cfg.Export.MaxRows)
	if cfg.Export.S3.Enabled {
		archive, err := storage.NewS3ExportArchive(rootCtx, cfg.Export.S3, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to configure export archive", zap.Error(err))
		}
		if err := archive.EnsureBucket(rootCtx); err != nil {
			log.Warn("Export archive bucket check failed", zap.String("bucket", archive.Bucket()), zap.Error(err))
		}
		analyticsHandler.WithExportArchive(archive)
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version).
		WithCheck("database", db.Ping)
	if redisClient != nil {
		systemHandler.WithCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	// HTTP engine
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanAttributes())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.HTTPMetrics(meterProvider))
	profilingCfg := middleware.DefaultProfilingConfig()
	profilingCfg.Enabled = profiler.IsEnabled()
	engine.Use(middleware.ProfilingWithConfig(profilingCfg))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(corsCfg))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		requestLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		go requestLimiter.Run(rootCtx)
		engine.Use(middleware.RateLimit(requestLimiter))
	}

	tenantMW := middleware.TenantMiddlewareWithConfig(middleware.TenantMiddlewareConfig{
		Required:  true,
		Validator: handler.NewCompanyTenantValidator(companyRepo),
		Logger:    log,
	})

	r := router.NewRouter(engine)
	r.Register(router.NewSyncRoutes(router.SyncHandlers{
		Sync:      handler.NewSyncHandler(syncService, statusManager, syncRecordService, analyticsService),
		Analytics: analyticsHandler,
		Records:   handler.NewRecordHandler(syncRecordService, analyticsService),
		Catalog:   handler.NewCatalogHandler(productService, pricingRuleService),
	}, tenantMW)).
		Register(router.NewSystemRoutes(systemHandler)).
		Operational("/health/live", systemHandler.Live).
		Operational("/health/ready", systemHandler.Ready).
		Operational("/metrics", gin.WrapH(telemetry.PrometheusHandler()))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Stop producers before the workers so no job is accepted after the drain
	if sweeper != nil {
		if err := sweeper.Stop(ctx); err != nil {
			log.Error("Sync sweeper did not stop cleanly", zap.Error(err))
		}
	}
	stopRoot()
	if cfg.Scheduler.Enabled {
		if err := jobScheduler.Stop(ctx); err != nil {
			log.Error("Sync job scheduler did not stop cleanly", zap.Error(err))
		}
	}
	_ = eventBus.Stop(ctx)

	if kafkaForwarder != nil {
		if err := kafkaForwarder.Close(); err != nil {
			log.Error("Error closing Kafka writer", zap.Error(err))
		}
	}
	if syncMetrics != nil {
		syncMetrics.Stop()
	}
	if dbMetrics != nil {
		dbMetrics.Stop()
	}
	if profiler != nil {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}
	if err := meterProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := logProvider.Shutdown(ctx); err != nil {
		log.Error("Error shutting down log provider", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// usesRedis reports whether any component is configured with the redis backend
func usesRedis(cfg *config.Config) bool {
	return cfg.Queue.Backend == config.QueueBackendRedis ||
		cfg.RateLimit.Backend == config.RateLimitBackendRedis ||
		cfg.Analytics.CacheBackend == cache.BackendRedis
}

// retryPolicy selects the failed-record retry policy
func retryPolicy(cfg config.SyncConfig) integration.RetryPolicy {
	if cfg.RetryPolicy == config.RetryPolicyExponential {
		return integration.NewExponentialRetryPolicy(cfg.BackoffSchedule)
	}
	return integration.NewFlatRetryPolicy(cfg.RetryWindow)
}

func schedulerConfig(cfg *config.Config) scheduler.SyncJobSchedulerConfig {
	sc := scheduler.DefaultSyncJobSchedulerConfig()
	if cfg.Scheduler.MaxConcurrentJobs > 0 {
		sc.MaxConcurrentJobs = cfg.Scheduler.MaxConcurrentJobs
	}
	if cfg.Scheduler.QueueSize > 0 {
		sc.QueueSize = cfg.Scheduler.QueueSize
	}
	sc.RetryAttempts = cfg.Scheduler.RetryAttempts
	if cfg.Scheduler.RetryDelay > 0 {
		sc.RetryDelay = cfg.Scheduler.RetryDelay
	}
	if cfg.Scheduler.HistorySize > 0 {
		sc.HistorySize = cfg.Scheduler.HistorySize
	}
	if cfg.Sync.BatchJobTimeout > 0 {
		sc.BatchJobTimeout = cfg.Sync.BatchJobTimeout
	}
	if cfg.Sync.SingleJobTimeout > 0 {
		sc.SingleJobTimeout = cfg.Sync.SingleJobTimeout
	}
	return sc
}
