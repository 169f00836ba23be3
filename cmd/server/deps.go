package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/saju-payments/internal/adapters/kafka"
	"github.com/kevin07696/saju-payments/internal/adapters/memory"
	"github.com/kevin07696/saju-payments/internal/adapters/portone"
	"github.com/kevin07696/saju-payments/internal/adapters/postgres"
	"github.com/kevin07696/saju-payments/internal/adapters/redis"
	"github.com/kevin07696/saju-payments/internal/config"
	"github.com/kevin07696/saju-payments/internal/domain/ports"
	"github.com/kevin07696/saju-payments/internal/services/notification"
	"github.com/kevin07696/saju-payments/pkg/observability"
	"github.com/kevin07696/saju-payments/pkg/shutdown"
)

// initStore opens the configured order store and registers its health
// check and shutdown.
func initStore(ctx context.Context, cfg *config.Config, sm *shutdown.Manager, hc *observability.HealthChecker, logger *zap.Logger) ports.OrderStore {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory order store - orders are lost on restart")
		return memory.NewOrderStore()
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.ConnectionString())
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns

	pool, err := postgres.NewPool(ctx, poolCfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	pool.StartPoolMonitoring(monitorCtx, 30*time.Second)

	hc.Register("database", pool.HealthCheck)
	sm.RegisterNoErr("database", func() {
		stopMonitor()
		pool.Close()
	})

	logger.Info("Database connection established", zap.String("database", cfg.Database.Database))
	return postgres.NewOrderStore(pool)
}

// initTokenCache returns the gateway credential cache. Redis shares one
// token across replicas; memory keeps one per process.
func initTokenCache(ctx context.Context, cfg *config.Config, sm *shutdown.Manager, hc *observability.HealthChecker, logger *zap.Logger) portone.TokenCache {
	if cfg.Gateway.TokenCache != "redis" {
		return portone.NewMemoryTokenCache()
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Key:      cfg.Redis.TokenKey,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}

	hc.Register("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	sm.RegisterCloser("redis", client)

	return redis.NewTokenCache(client, cfg.Redis.TokenKey, logger)
}

// initPublisher returns the Kafka publisher, or a log-only publisher when no
// brokers are configured.
func initPublisher(cfg *config.Config, sm *shutdown.Manager, svcLogger ports.Logger, logger *zap.Logger) ports.NotificationPublisher {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set - result notifications are only logged")
		return notification.NewLogPublisher(svcLogger)
	}

	producer, err := kafka.NewSyncProducer(kafka.Config{
		Brokers:    cfg.Kafka.Brokers,
		Topic:      cfg.Kafka.Topic,
		ClientID:   cfg.Kafka.ClientID,
		MaxRetries: cfg.Kafka.MaxRetries,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}

	publisher := kafka.NewNotificationPublisher(producer, cfg.Kafka.Topic, logger)
	sm.RegisterCloser("kafka-producer", publisher)
	return publisher
}
