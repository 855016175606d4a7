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
	_ "time/tzdata"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/pitch-booking/internal/di"
	"github.com/prohmpiriya/pitch-booking/internal/handler"
	"github.com/prohmpiriya/pitch-booking/internal/metrics"
	"github.com/prohmpiriya/pitch-booking/internal/repository"
	"github.com/prohmpiriya/pitch-booking/internal/service"
	"github.com/prohmpiriya/pitch-booking/pkg/config"
	"github.com/prohmpiriya/pitch-booking/pkg/database"
	"github.com/prohmpiriya/pitch-booking/pkg/kafka"
	"github.com/prohmpiriya/pitch-booking/pkg/logger"
	"github.com/prohmpiriya/pitch-booking/pkg/middleware"
	pkgredis "github.com/prohmpiriya/pitch-booking/pkg/redis"
	"github.com/prohmpiriya/pitch-booking/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "pitch-booking"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.Log.Level,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
		FilePath:    cfg.Log.FilePath,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Pitch Booking Service...", zap.String("version", cfg.App.Version))

	ctx := context.Background()

	// Initialize telemetry before any instrument is created
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("Telemetry disabled", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()
	if err := metrics.Init(); err != nil {
		appLog.Warn("Failed to register metrics", zap.Error(err))
	}

	// Initialize database connection
	dbCfg := &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
		ServiceName:     serviceName,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal("Database connection failed", zap.Error(err))
	}
	defer db.Close()
	appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", dbCfg.MinConns, dbCfg.MaxConns))

	// Initialize Redis connection
	redisCfg := &pkgredis.Config{
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
	}
	redisClient, err := pkgredis.NewClient(ctx, redisCfg)
	if err != nil {
		appLog.Fatal("Redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()
	appLog.Info(fmt.Sprintf("Redis connected (pool: %d, minIdle: %d)", redisCfg.PoolSize, redisCfg.MinIdleConns))

	// Initialize Kafka event publisher
	var (
		eventPublisher service.EventPublisher = service.NewNoOpEventPublisher()
		kafkaCheck     handler.HealthChecker
	)
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      cfg.Kafka.ClientID,
			MaxRetries:    3,
			RetryInterval: time.Second,
		})
		if err != nil {
			appLog.Warn("Kafka connection failed, using no-op publisher", zap.Error(err))
		} else {
			eventPublisher = service.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic, serviceName)
			kafkaCheck = producer
			appLog.Info("Kafka event publisher connected")
		}
	}
	defer eventPublisher.Close()

	// Lifecycle job queue
	jobQueue := repository.NewRedisJobQueue(redisClient, cfg.Lifecycle.QueueKey, cfg.Lifecycle.VisibilityTimeout)
	if err := jobQueue.LoadScripts(ctx); err != nil {
		appLog.Warn("Failed to pre-load Lua scripts", zap.Error(err))
	} else {
		appLog.Info("Lua scripts pre-loaded into Redis")
	}

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		Repos:          repository.NewPostgresRepositories(db.Pool()),
		Tx:             repository.NewPostgresTransactor(db, cfg.Booking.TxTimeout),
		Jobs:           jobQueue,
		EventPublisher: eventPublisher,
		HealthChecks: map[string]handler.HealthChecker{
			"database": db,
			"redis":    redisClient,
			"kafka":    kafkaCheck,
		},
		Availability: &service.AvailabilityServiceConfig{
			WindowHours: cfg.Booking.WindowHours,
			Currency:    cfg.Booking.Currency,
		},
		Reservation: &service.ReservationServiceConfig{
			Currency:       cfg.Booking.Currency,
			MaxRecurrence:  cfg.Booking.MaxRecurrenceSize,
			TxMaxRetries:   cfg.Booking.TxMaxRetries,
			TxRetryBackoff: cfg.Booking.TxRetryBackoff,
		},
	})

	// Setup Gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Authorization",
			middleware.UserIDHeader, middleware.UserRoleHeader, middleware.IdempotencyKeyHeader,
		},
		ExposeHeaders: []string{"Retry-After", middleware.ReplayedHeader, telemetry.TraceIDHeader},
		MaxAge:        12 * time.Hour,
	}))
	router.Use(telemetry.TracingMiddleware(serviceName))
	router.Use(middleware.Identity())

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// Pool stats for monitoring
	router.GET("/metrics", func(c *gin.Context) {
		stats := db.Stats()
		pending, _ := jobQueue.Len(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"db_pool": gin.H{
				"total_conns":    stats.TotalConns(),
				"acquired_conns": stats.AcquiredConns(),
				"idle_conns":     stats.IdleConns(),
				"max_conns":      stats.MaxConns(),
			},
			"lifecycle_jobs_pending": pending,
		})
	})

	// API routes
	v1 := router.Group("/api/v1")
	if cfg.RateLimit.Enabled {
		limit, err := middleware.RateLimit(redisClient.Client(), "api", cfg.RateLimit.Rate)
		if err != nil {
			appLog.Fatal("Invalid rate limit", zap.Error(err))
		}
		v1.Use(limit)
	}
	handler.RegisterRoutes(v1, container.PitchHandler, container.BookingHandler,
		middleware.Idempotency(middleware.IdempotencyConfig{
			Redis: redisClient.Client(),
			TTL:   cfg.Booking.IdempotencyTTL,
			// a request may hold its key for the transaction plus response time
			ProcessingTTL: cfg.Booking.TxTimeout + 30*time.Second,
		}),
	)

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
		appLog.Info(fmt.Sprintf("Pitch Booking Service listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}
