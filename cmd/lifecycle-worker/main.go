package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prohmpiriya/pitch-booking/internal/di"
	"github.com/prohmpiriya/pitch-booking/internal/metrics"
	"github.com/prohmpiriya/pitch-booking/internal/repository"
	"github.com/prohmpiriya/pitch-booking/internal/service"
	"github.com/prohmpiriya/pitch-booking/internal/worker"
	"github.com/prohmpiriya/pitch-booking/pkg/config"
	"github.com/prohmpiriya/pitch-booking/pkg/database"
	"github.com/prohmpiriya/pitch-booking/pkg/kafka"
	"github.com/prohmpiriya/pitch-booking/pkg/logger"
	pkgredis "github.com/prohmpiriya/pitch-booking/pkg/redis"
	"github.com/prohmpiriya/pitch-booking/pkg/retry"
	"github.com/prohmpiriya/pitch-booking/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "lifecycle-worker"

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
	appLog.Info("Starting Lifecycle Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    serviceName,
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
	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:          cfg.Database.Host,
		Port:          cfg.Database.Port,
		User:          cfg.Database.User,
		Password:      cfg.Database.Password,
		Database:      cfg.Database.DBName,
		SSLMode:       cfg.Database.SSLMode,
		MaxConns:      10,
		MinConns:      2,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		EnableTracing: cfg.OTel.Enabled,
		ServiceName:   serviceName,
	})
	if err != nil {
		appLog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Initialize Redis connection
	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      20,
		MinIdleConns:  4,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	})
	if err != nil {
		appLog.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLog.Info("Redis connected")

	// Dead letters always land in Redis; Kafka gets a copy when enabled
	dlq := retry.MultiDLQPublisher{retry.NewRedisDLQPublisher(redisClient.Client(), cfg.Lifecycle.DLQKey)}
	var eventPublisher service.EventPublisher = service.NewNoOpEventPublisher()
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      serviceName,
			MaxRetries:    3,
			RetryInterval: time.Second,
		})
		if err != nil {
			appLog.Warn("Kafka connection failed, using no-op publisher", zap.Error(err))
		} else {
			eventPublisher = service.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic, serviceName)
			dlq = append(dlq, retry.NewKafkaDLQPublisher(producer, cfg.Kafka.EventsTopic+".dlq"))
			appLog.Info("Kafka producer connected")
		}
	}
	defer eventPublisher.Close()

	jobQueue := repository.NewRedisJobQueue(redisClient, cfg.Lifecycle.QueueKey, cfg.Lifecycle.VisibilityTimeout)
	if err := jobQueue.LoadScripts(ctx); err != nil {
		appLog.Warn("Failed to pre-load Lua scripts", zap.Error(err))
	}

	container := di.NewContainer(&di.ContainerConfig{
		Repos:          repository.NewPostgresRepositories(db.Pool()),
		Tx:             repository.NewPostgresTransactor(db, cfg.Booking.TxTimeout),
		Jobs:           jobQueue,
		EventPublisher: eventPublisher,
	})

	// Create workers
	lifecycleWorker := container.NewLifecycleWorker(dlq, &worker.LifecycleWorkerConfig{
		PollInterval:   cfg.Lifecycle.PollInterval,
		BatchSize:      cfg.Lifecycle.BatchSize,
		ReapInterval:   cfg.Lifecycle.VisibilityTimeout / 2,
		MaxAttempts:    cfg.Lifecycle.MaxAttempts,
		InitialBackoff: cfg.Lifecycle.InitialBackoff,
		MaxBackoff:     cfg.Lifecycle.MaxBackoff,
	})
	sweeper := container.NewSweeper(&worker.SweeperConfig{
		Schedule:  cfg.Lifecycle.SweepSchedule,
		BatchSize: cfg.Lifecycle.SweepBatchSize,
		Timeout:   cfg.Booking.TxTimeout * 3,
	})

	if err := lifecycleWorker.Start(ctx); err != nil {
		appLog.Fatal("Failed to start lifecycle worker", zap.Error(err))
	}
	if err := sweeper.Start(ctx); err != nil {
		appLog.Fatal("Failed to start sweeper", zap.Error(err))
	}

	// Repair anything that fell due while no worker was running
	go sweeper.RunOnce(ctx)

	appLog.Info("Lifecycle Worker started successfully")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	cancel()
	sweeper.Stop()
	lifecycleWorker.Stop()

	stats := lifecycleWorker.GetStats()
	appLog.Info("Worker exited gracefully",
		zap.Int64("applied", stats.Applied),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("dead_lettered", stats.DeadLettered),
		zap.Int64("swept", sweeper.GetStats().Repaired),
	)
}
