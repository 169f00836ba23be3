package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/saju-payments/internal/adapters/portone"
	adapterports "github.com/kevin07696/saju-payments/internal/adapters/ports"
	"github.com/kevin07696/saju-payments/internal/adapters/secrets"
	"github.com/kevin07696/saju-payments/internal/auth"
	"github.com/kevin07696/saju-payments/internal/config"
	orderHandler "github.com/kevin07696/saju-payments/internal/handlers/order"
	adminMiddleware "github.com/kevin07696/saju-payments/internal/middleware"
	"github.com/kevin07696/saju-payments/internal/services/notification"
	orderService "github.com/kevin07696/saju-payments/internal/services/order"
	"github.com/kevin07696/saju-payments/internal/services/reconciliation"
	"github.com/kevin07696/saju-payments/internal/services/refund"
	pkghttp "github.com/kevin07696/saju-payments/pkg/http"
	"github.com/kevin07696/saju-payments/pkg/middleware"
	"github.com/kevin07696/saju-payments/pkg/observability"
	"github.com/kevin07696/saju-payments/pkg/resilience"
	"github.com/kevin07696/saju-payments/pkg/security"
	"github.com/kevin07696/saju-payments/pkg/shutdown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logger)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting saju payments service",
		zap.String("version", "0.1.0"),
		zap.String("store", cfg.Database.Driver),
		zap.String("token_cache", cfg.Gateway.TokenCache),
	)

	ctx := context.Background()
	sm := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)
	hc := observability.NewHealthChecker()

	shutdownTracing, err := initTracing(cfg.Tracing)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	sm.Register("tracing", shutdownTracing)

	secretMgr, err := secrets.NewSecretManager(ctx, secretManagerConfig(cfg.Secrets), logger)
	if err != nil {
		logger.Fatal("Failed to initialize secret manager", zap.Error(err))
	}
	apiKey := mustResolve(ctx, logger, secretMgr, "gateway api key", cfg.Gateway.APIKey, cfg.Gateway.APIKeyPath)
	apiSecret := mustResolve(ctx, logger, secretMgr, "gateway api secret", cfg.Gateway.APISecret, cfg.Gateway.APISecretPath)
	jwtSecret := mustResolve(ctx, logger, secretMgr, "admin jwt secret", cfg.Auth.JWTSecret, cfg.Auth.JWTSecretPath)

	store := initStore(ctx, cfg, sm, hc, logger)
	tokens := initTokenCache(ctx, cfg, sm, hc, logger)

	gatewayCfg := portone.DefaultConfig()
	gatewayCfg.BaseURL = cfg.Gateway.BaseURL
	gatewayCfg.APIKey = apiKey
	gatewayCfg.APISecret = apiSecret
	gatewayCfg.Timeout = cfg.Gateway.Timeout
	gatewayCfg.MaxRetries = cfg.Gateway.MaxRetries
	httpClient := pkghttp.NewHTTPClient(pkghttp.GatewayClientConfig(), cfg.Gateway.Timeout)
	gateway := portone.NewClient(gatewayCfg, httpClient, tokens, logger)

	timeouts := &resilience.TimeoutConfig{
		HTTPHandler:         cfg.Server.HandlerTimeout,
		Service:             cfg.Server.HandlerTimeout * 2 / 3,
		Webhook:             cfg.Server.WebhookTimeout,
		GatewayCall:         cfg.Gateway.Timeout,
		NotificationAttempt: cfg.Notification.Timeout,
		Commit:              resilience.DefaultTimeoutConfig().Commit,
	}

	svcLogger := security.NewZapLogger(logger)
	publisher := initPublisher(cfg, sm, svcLogger, logger)

	dispatcher := notification.NewDispatcher(publisher, notification.Config{
		Workers:     cfg.Notification.Workers,
		QueueSize:   cfg.Notification.QueueSize,
		MaxAttempts: cfg.Notification.MaxAttempts,
	}, timeouts, svcLogger)
	dispatcher.Start()
	sm.Register("notification-dispatcher", dispatcher.Shutdown)

	orders := orderService.NewService(store, gateway, orderService.Config{
		MerchantUIDPrefix: cfg.Products.MerchantUIDPrefix,
		Prices:            cfg.Products.Prices,
	}, svcLogger)
	reconciler := reconciliation.NewService(store, gateway, dispatcher, timeouts,
		reconciliation.Config{ResultURLBase: cfg.Notification.ResultURLBase}, svcLogger)
	refunds := refund.NewService(store, gateway, timeouts, svcLogger)

	if cfg.Server.StaleScanEvery > 0 {
		worker := shutdown.NewPeriodicWorker("stale-pending-scan", cfg.Server.StaleScanEvery, logger)
		worker.Start(func(ctx context.Context) {
			_, _ = orders.ScanStalePending(ctx, cfg.Server.StalePendingAge)
		})
		sm.Register("stale-pending-scan", worker.Shutdown)
	}

	jwtManager, err := auth.NewJWTManager([]byte(jwtSecret), cfg.Auth.Issuer, cfg.Auth.TokenExpiry)
	if err != nil {
		logger.Fatal("Failed to initialize admin token validation", zap.Error(err))
	}
	adminAuth := adminMiddleware.NewAdminAuth(jwtManager, logger)

	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, cfg.Server.TrustProxy)
	sm.RegisterNoErr("rate-limiter", rateLimiter.Shutdown)

	mux := http.NewServeMux()
	orderHandler.NewHandler(orders, reconciler, refunds, timeouts, logger).
		RegisterRoutes(mux, rateLimiter.Middleware, adminAuth.Middleware)
	mux.HandleFunc("GET /health", observability.LivenessHandler())
	mux.HandleFunc("GET /ready", hc.HealthHandler())

	securityHeaders := adminMiddleware.NewSecurityHeaders(cfg.Logger.Development)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           securityHeaders.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Server.HandlerTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcHealth := newHealthServer(logger)
	if err := grpcHealth.serve(cfg.Server.GRPCPort); err != nil {
		logger.Fatal("Failed to start gRPC health server", zap.Error(err))
	}
	sm.Register("grpc-health", grpcHealth.Shutdown)

	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), hc, logger)
	sm.Register("metrics-server", func(ctx context.Context) error {
		return observability.ShutdownMetricsServer(ctx, metricsServer)
	})

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()
	// Registered last so it stops accepting requests first
	sm.RegisterHTTPServer("http-server", httpServer)

	grpcHealth.setServing(true)

	if errs := sm.WaitForShutdown(ctx); len(errs) > 0 {
		os.Exit(1)
	}
}

func initLogger(cfg config.LoggerConfig) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func secretManagerConfig(cfg config.SecretsConfig) secrets.ManagerConfig {
	mc := secrets.ManagerConfig{
		Backend:   secrets.Backend(cfg.Backend),
		LocalPath: cfg.LocalPath,
	}

	switch mc.Backend {
	case secrets.BackendAWS:
		aws := secrets.DefaultAWSSecretsManagerConfig(cfg.AWSRegion)
		aws.Endpoint = cfg.AWSEndpoint
		mc.AWS = aws
	case secrets.BackendVault:
		vault := secrets.DefaultVaultConfig(cfg.VaultAddress)
		vault.AuthMethod = cfg.VaultAuthMethod
		vault.Token = cfg.VaultToken
		vault.RoleID = cfg.VaultRoleID
		vault.SecretID = cfg.VaultSecretID
		mc.Vault = vault
	}
	return mc
}

func mustResolve(ctx context.Context, logger *zap.Logger, mgr adapterports.SecretManagerAdapter, name, inline, path string) string {
	value, err := secrets.ResolveOrFetch(ctx, mgr, inline, path)
	if err != nil {
		logger.Fatal("Failed to resolve secret",
			zap.String("secret", name),
			zap.String("path", path),
			zap.Error(err))
	}
	return value
}
