package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/lumilearn/content-pipeline/internal/api/handler"
	"github.com/lumilearn/content-pipeline/internal/api/router"
	"github.com/lumilearn/content-pipeline/internal/audit"
	"github.com/lumilearn/content-pipeline/internal/cache"
	"github.com/lumilearn/content-pipeline/internal/config"
	"github.com/lumilearn/content-pipeline/internal/events"
	"github.com/lumilearn/content-pipeline/internal/metrics"
	"github.com/lumilearn/content-pipeline/internal/optimize"
	"github.com/lumilearn/content-pipeline/internal/scheduler"
	"github.com/lumilearn/content-pipeline/internal/store"
	"github.com/lumilearn/content-pipeline/internal/validation"
	"github.com/lumilearn/content-pipeline/shared/logger"
	"github.com/lumilearn/content-pipeline/shared/postgresql"
	"github.com/lumilearn/content-pipeline/shared/rabbitmq"
	"github.com/lumilearn/content-pipeline/shared/redis"

	"github.com/klauspost/compress/gzip"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("PIPELINE_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/pipeline-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidatePipelineConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting pipeline service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize the result cache
	resultCache, closeCache, err := initCache(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer closeCache()

	// Initialize the job record store
	jobStore, closeStore, err := initStore(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer closeStore()

	// Initialize the audit sink; falls back to the log when no broker
	// is configured
	auditSink, closeAudit, err := initAudit(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize audit sink: %w", err)
	}
	defer closeAudit()

	// Wire the pipeline
	mode, err := validation.ParseMode(cfg.Validation.Mode)
	if err != nil {
		return fmt.Errorf("invalid validation mode: %w", err)
	}
	engine := validation.NewEngine(
		cfg.Validation.Budgets,
		validation.NewPolicy(mode, cfg.Validation.BannedTerms),
	)

	hub := events.NewHub()
	registry := metrics.NewRegistry()

	sched := scheduler.New(scheduler.Config{
		Workers:       cfg.Pipeline.Workers,
		QueueCapacity: cfg.Pipeline.QueueCapacity,
		JobTimeout:    cfg.Pipeline.JobTimeout,
		MaxRetries:    cfg.Pipeline.MaxRetries,
		RetryBackoff:  cfg.Pipeline.RetryBackoff,
		CacheTTL:      cfg.Pipeline.CacheTTL,
	}, scheduler.Options{
		Logger:   appLogger.Logger,
		Engine:   engine,
		Packager: optimize.NewPackager(gzip.DefaultCompression),
		Cache:    resultCache,
		Store:    jobStore,
		Hub:      hub,
		Audit:    auditSink,
		Metrics:  registry,
	})

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	sched.Start(rootCtx)

	// Periodically purge terminal job records past the retention window
	if cfg.Store.Retention > 0 {
		go purgeLoop(rootCtx, jobStore, cfg.Store.Retention, cfg.Store.PurgeInterval, appLogger.Logger)
	}

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, sched, jobStore, hub, registry)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Pipeline service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
	}

	// Stop accepting new jobs and drain the in-flight ones
	rootCancel()
	sched.Stop()

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initCache builds the configured result cache backend
func initCache(cfg *config.Config, log *slog.Logger) (cache.Cache, func(), error) {
	switch cfg.Cache.Backend {
	case "redis":
		client, err := redis.NewClient(&redis.Config{
			Host:        cfg.Redis.Host,
			Port:        cfg.Redis.Port,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
			PoolSize:    cfg.Redis.PoolSize,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedis(client.GetClient()), func() { client.Close() }, nil
	default:
		mem := cache.NewMemory(cfg.Cache.Capacity, cfg.Cache.SweepInterval)
		return mem, mem.Close, nil
	}
}

// initStore builds the configured job record store backend
func initStore(cfg *config.Config, log *slog.Logger) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		client, err := postgresql.NewClient(&postgresql.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, log)
		if err != nil {
			return nil, nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pg, err := store.NewPostgres(ctx, client, log)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return pg, func() { client.Close() }, nil
	default:
		return store.NewMemory(cfg.Store.Capacity), func() {}, nil
	}
}

// initAudit builds the audit sink, preferring the RabbitMQ trail when a
// broker is configured
func initAudit(cfg *config.Config, log *slog.Logger) (audit.Sink, func(), error) {
	if cfg.RabbitMQ.Host == "" {
		return audit.NewSlogSink(log), func() {}, nil
	}

	client, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.RabbitMQ.Host,
		Port:               cfg.RabbitMQ.Port,
		User:               cfg.RabbitMQ.User,
		Password:           cfg.RabbitMQ.Password,
		VHost:              cfg.RabbitMQ.VHost,
		ExchangeName:       cfg.RabbitMQ.Exchange.Name,
		ExchangeType:       cfg.RabbitMQ.Exchange.Type,
		ExchangeDurable:    cfg.RabbitMQ.Exchange.Durable,
		ExchangeAutoDelete: cfg.RabbitMQ.Exchange.AutoDelete,
		QueueName:          cfg.RabbitMQ.Queue.Name,
		QueueDurable:       cfg.RabbitMQ.Queue.Durable,
		QueueAutoDelete:    cfg.RabbitMQ.Queue.AutoDelete,
		QueueExclusive:     cfg.RabbitMQ.Queue.Exclusive,
		RoutingKey:         cfg.RabbitMQ.RoutingKey,
		RetryAttempts:      cfg.RabbitMQ.Connection.RetryAttempts,
		RetryInterval:      cfg.RabbitMQ.Connection.RetryInterval,
		Heartbeat:          cfg.RabbitMQ.Connection.Heartbeat,
		ConnectionTimeout:  cfg.RabbitMQ.Connection.ConnectionTimeout,
		PublishRetries:     cfg.RabbitMQ.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.RabbitMQ.Publish.RetryInterval,
		PublishBackoffMult: cfg.RabbitMQ.Publish.BackoffMultiplier,
	}, log)
	if err != nil {
		return nil, nil, err
	}

	return audit.NewRabbitSink(client, log), func() { client.Close() }, nil
}

// purgeLoop evicts terminal job records older than the retention window
func purgeLoop(ctx context.Context, jobStore store.Store, retention, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := jobStore.PurgeBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Error("Failed to purge expired job records",
					slog.Any("error", err),
				)
				continue
			}
			if purged > 0 {
				log.Info("Purged expired job records",
					slog.Int("count", purged),
				)
			}
		}
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, log *slog.Logger, sched *scheduler.Scheduler, jobStore store.Store, hub *events.Hub, registry *metrics.Registry) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	thresholds := metrics.DefaultThresholds()
	if cfg.Health.MaxAvgProcessing > 0 {
		thresholds.MaxAvgProcessing = cfg.Health.MaxAvgProcessing
	}
	if cfg.Health.MaxQueueDepth > 0 {
		thresholds.MaxQueueDepth = cfg.Health.MaxQueueDepth
	}
	if cfg.Health.MinCacheHitRatio > 0 {
		thresholds.MinCacheHitRatio = cfg.Health.MinCacheHitRatio
	}
	if cfg.Health.MinCacheSamples > 0 {
		thresholds.MinCacheSamples = cfg.Health.MinCacheSamples
	}

	handlerDeps := &handler.Dependencies{
		Logger:        log,
		Scheduler:     sched,
		Store:         jobStore,
		Hub:           hub,
		Metrics:       registry,
		Health:        thresholds,
		MaxBatchItems: cfg.Pipeline.MaxBatchItems,
		MaxStatusWait: cfg.Pipeline.MaxStatusWait,
	}

	return router.SetupRouter(handlerDeps)
}
