package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/venue-approval/internal/di"
	"github.com/prohmpiriya/venue-approval/internal/handler"
	"github.com/prohmpiriya/venue-approval/internal/metrics"
	"github.com/prohmpiriya/venue-approval/internal/repository"
	"github.com/prohmpiriya/venue-approval/internal/service"
	"github.com/prohmpiriya/venue-approval/internal/worker"
	"github.com/prohmpiriya/venue-approval/pkg/config"
	"github.com/prohmpiriya/venue-approval/pkg/database"
	"github.com/prohmpiriya/venue-approval/pkg/kafka"
	"github.com/prohmpiriya/venue-approval/pkg/logger"
	"github.com/prohmpiriya/venue-approval/pkg/middleware"
	pkgredis "github.com/prohmpiriya/venue-approval/pkg/redis"
	"github.com/prohmpiriya/venue-approval/pkg/retry"
	"github.com/prohmpiriya/venue-approval/pkg/telemetry"
)

const serviceName = "venue-approval"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Venue Approval Service...")

	ctx := context.Background()

	// Initialize telemetry
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry disabled: %v", err))
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to register metrics: %v", err))
	}

	checks := map[string]handler.Pinger{}

	// Initialize the ledger
	var ledger repository.LedgerRepository
	var db *database.PostgresDB
	switch cfg.Ledger.Backend {
	case config.LedgerBackendPostgres:
		dbCfg := &database.PostgresConfig{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.DBName,
			SSLMode:         cfg.Database.SSLMode,
			MaxConns:        int32(cfg.Database.MaxOpenConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnectTimeout:  5 * time.Second,
			MaxRetries:      3,
			RetryInterval:   time.Second,
			EnableTracing:   cfg.OTel.Enabled,
		}
		db, err = database.NewPostgres(ctx, dbCfg)
		if err != nil {
			appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
		}
		defer db.Close()
		appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", dbCfg.MinConns, dbCfg.MaxConns))

		pgLedger := repository.NewPostgresLedgerRepository(db.Pool())
		if cfg.Ledger.AutoMigrate {
			if err := pgLedger.Migrate(ctx); err != nil {
				appLog.Fatal(fmt.Sprintf("Ledger migration failed: %v", err))
			}
			appLog.Info("Ledger schema migrated")
		}
		ledger = pgLedger
		checks["postgres"] = db
	default:
		ledger = repository.NewMemoryLedgerRepository()
		appLog.Info("Using in-memory ledger")
	}

	// Initialize Redis connection
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, &pkgredis.Config{
			Host:          cfg.Redis.Host,
			Port:          cfg.Redis.Port,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			PoolSize:      cfg.Redis.PoolSize,
			MinIdleConns:  cfg.Redis.MinIdleConns,
			DialTimeout:   cfg.Redis.DialTimeout,
			ReadTimeout:   cfg.Redis.ReadTimeout,
			WriteTimeout:  cfg.Redis.WriteTimeout,
			MaxRetries:    3,
			RetryInterval: 100 * time.Millisecond,
		})
		if err != nil {
			appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
		}
		defer redisClient.Close()
		checks["redis"] = redisClient
		appLog.Info(fmt.Sprintf("Redis connected at %s", cfg.Redis.Addr()))
	}

	// Initialize notification sinks
	var sinks []worker.Sink
	var dlq retry.DLQPublisher = retry.NoOpDLQPublisher{}
	if len(cfg.Kafka.Brokers) > 0 && cfg.HasSink("kafka") {
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      cfg.Kafka.ClientID,
			MaxRetries:    3,
			RetryInterval: 2 * time.Second,
			LingerMs:      10,
		})
		if err != nil {
			appLog.Warn(fmt.Sprintf("Kafka connection failed, kafka sink disabled: %v", err))
		} else {
			defer producer.Close()
			sinks = append(sinks, worker.Sink{
				Name:      "kafka",
				Publisher: service.NewKafkaEventPublisherWithProducer(producer, cfg.Kafka.NotificationTopic, serviceName),
			})
			dlq = retry.NewKafkaDLQPublisher(producer, serviceName)
			checks["kafka"] = producer
			appLog.Info("Kafka notification sink connected")
		}
	}
	if redisClient != nil && cfg.HasSink("redis") {
		publisher := service.NewRedisEventPublisher(redisClient, &service.RedisPublisherConfig{
			Stream:  cfg.Notification.RedisStream,
			Channel: cfg.Notification.RedisChannel,
			MaxLen:  cfg.Notification.RedisMaxLen,
		})
		sinks = append(sinks, worker.Sink{Name: "redis", Publisher: publisher})
		appLog.Info("Redis notification sink enabled")
	}

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		Ledger:  ledger,
		Version: cfg.App.Version,
		Checks:  checks,
		Sinks:   sinks,
		DLQ:     dlq,
		RelayConfig: &worker.NotificationRelayConfig{
			Buffer: cfg.Notification.BufferSize,
			Topic:  cfg.Kafka.NotificationTopic,
			Retry: &retry.Config{
				MaxRetries:      cfg.Notification.MaxRetries,
				InitialInterval: cfg.Notification.RetryInterval,
				MaxInterval:     5 * time.Second,
				Multiplier:      2.0,
				JitterFactor:    0.1,
			},
		},
		StreamConfig: &handler.NotificationHandlerConfig{Buffer: cfg.Notification.BufferSize},
		Logger:       appLog,
	})

	// Start the notification relay
	relayCtx, stopRelay := context.WithCancel(ctx)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		container.NotificationRelay.Start(relayCtx)
	}()

	// Setup Gin
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DisableConsoleColor()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(telemetry.TracingMiddleware(serviceName))
	router.Use(middleware.Logger(appLog))

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// Metrics endpoint for monitoring
	router.GET("/metrics", func(c *gin.Context) {
		body := gin.H{
			"ledger":             cfg.Ledger.Backend,
			"notification_sinks": len(sinks),
			"stream_subscribers": container.Broker.Subscribers(),
		}
		if db != nil {
			stats := db.Stats()
			body["db_pool"] = gin.H{
				"total_conns":        stats.TotalConns(),
				"acquired_conns":     stats.AcquiredConns(),
				"idle_conns":         stats.IdleConns(),
				"max_conns":          stats.MaxConns(),
				"constructing_conns": stats.ConstructingConns(),
			}
		}
		c.JSON(http.StatusOK, body)
	})

	// Write operations are rate limited per caller and, with Redis, idempotent
	var write []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		write = append(write, middleware.RateLimit(middleware.NewRateLimiter(&middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		})))
	}
	if redisClient != nil {
		write = append(write, middleware.Idempotency(middleware.DefaultIdempotencyConfig(redisClient.Client())))
	}

	// API routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.Identify(&middleware.IdentityConfig{
		JWTSecret: cfg.JWT.Secret,
		Issuer:    cfg.JWT.Issuer,
	}))
	handler.RegisterRoutes(v1, container.Handlers(), write...)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("Venue Approval Service listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	// Closing the broker ends open notification streams so Shutdown does not
	// wait on them
	if err := container.Close(); err != nil {
		appLog.Error(fmt.Sprintf("Failed to close broker: %v", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	stopRelay()
	<-relayDone

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Error(fmt.Sprintf("Telemetry shutdown failed: %v", err))
	}

	appLog.Info("Server exited gracefully")
}
