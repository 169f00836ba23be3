package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/saju-payments/internal/domain"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Gateway      GatewayConfig
	Secrets      SecretsConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Notification NotificationConfig
	Auth         AuthConfig
	Tracing      TracingConfig
	Logger       LoggerConfig
	Products     ProductsConfig
}

// ServerConfig holds HTTP and gRPC listener configuration
type ServerConfig struct {
	Host        string
	Port        int
	GRPCPort    int // gRPC health service
	MetricsPort int

	ShutdownTimeout time.Duration
	HandlerTimeout  time.Duration
	WebhookTimeout  time.Duration

	RateLimitRPS    float64
	RateLimitBurst  int
	TrustProxy      bool
	StaleScanEvery  time.Duration // 0 disables the scan
	StalePendingAge time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Driver   string // postgres or memory
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// GatewayConfig holds PortOne configuration. Key and secret may be given
// inline or as secret manager paths.
type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	APIKeyPath    string
	APISecret     string
	APISecretPath string
	Timeout       time.Duration
	MaxRetries    int
	TokenCache    string // memory or redis
}

// SecretsConfig selects the secret backend
type SecretsConfig struct {
	Backend   string // aws, vault or local
	LocalPath string

	AWSRegion   string
	AWSEndpoint string

	VaultAddress    string
	VaultToken      string
	VaultAuthMethod string
	VaultRoleID     string
	VaultSecretID   string
}

// RedisConfig holds the shared gateway token cache configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TokenKey string
}

// KafkaConfig holds the notification topic configuration.
// No brokers means notifications are only logged.
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	ClientID   string
	MaxRetries int
}

// NotificationConfig holds the dispatcher configuration
type NotificationConfig struct {
	Workers       int
	QueueSize     int
	MaxAttempts   int
	Timeout       time.Duration
	ResultURLBase string
}

// AuthConfig holds admin token configuration
type AuthConfig struct {
	JWTSecret     string
	JWTSecretPath string
	Issuer        string
	TokenExpiry   time.Duration
}

// TracingConfig holds OpenTelemetry exporter configuration
type TracingConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	SampleRatio       float64
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// ProductsConfig holds the price table and merchant UID prefix
type ProductsConfig struct {
	MerchantUIDPrefix string
	Prices            map[domain.ProductType]int64
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("PORT", 8080),
			GRPCPort:        getEnvAsInt("GRPC_PORT", 50051),
			MetricsPort:     getEnvAsInt("METRICS_PORT", 9090),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			HandlerTimeout:  getEnvAsDuration("HANDLER_TIMEOUT", 30*time.Second),
			WebhookTimeout:  getEnvAsDuration("WEBHOOK_TIMEOUT", 20*time.Second),
			RateLimitRPS:    getEnvAsFloat("RATE_LIMIT_RPS", 10),
			RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 20),
			TrustProxy:      getEnvAsBool("TRUST_PROXY", false),
			StaleScanEvery:  getEnvAsDuration("STALE_SCAN_INTERVAL", 10*time.Minute),
			StalePendingAge: getEnvAsDuration("STALE_PENDING_AGE", 30*time.Minute),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("STORE_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "saju_payments"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Gateway: GatewayConfig{
			BaseURL:       getEnv("PORTONE_BASE_URL", "https://api.iamport.kr"),
			APIKey:        getEnv("PORTONE_API_KEY", ""),
			APIKeyPath:    getEnv("PORTONE_API_KEY_PATH", ""),
			APISecret:     getEnv("PORTONE_API_SECRET", ""),
			APISecretPath: getEnv("PORTONE_API_SECRET_PATH", ""),
			Timeout:       getEnvAsDuration("PORTONE_TIMEOUT", 10*time.Second),
			MaxRetries:    getEnvAsInt("PORTONE_MAX_RETRIES", 2),
			TokenCache:    getEnv("GATEWAY_TOKEN_CACHE", "memory"),
		},
		Secrets: SecretsConfig{
			Backend:         getEnv("SECRET_MANAGER", "local"),
			LocalPath:       getEnv("SECRETS_PATH", "./secrets"),
			AWSRegion:       getEnv("AWS_REGION", "ap-northeast-2"),
			AWSEndpoint:     getEnv("AWS_ENDPOINT", ""),
			VaultAddress:    getEnv("VAULT_ADDR", "http://localhost:8200"),
			VaultToken:      getEnv("VAULT_TOKEN", ""),
			VaultAuthMethod: getEnv("VAULT_AUTH_METHOD", "token"),
			VaultRoleID:     getEnv("VAULT_ROLE_ID", ""),
			VaultSecretID:   getEnv("VAULT_SECRET_ID", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TokenKey: getEnv("REDIS_TOKEN_KEY", "saju-payments:gateway:token"),
		},
		Kafka: KafkaConfig{
			Brokers:    getEnvAsList("KAFKA_BROKERS"),
			Topic:      getEnv("KAFKA_NOTIFICATION_TOPIC", "saju.result-ready"),
			ClientID:   getEnv("KAFKA_CLIENT_ID", "saju-payments"),
			MaxRetries: getEnvAsInt("KAFKA_MAX_RETRIES", 3),
		},
		Notification: NotificationConfig{
			Workers:       getEnvAsInt("NOTIFY_WORKERS", 4),
			QueueSize:     getEnvAsInt("NOTIFY_QUEUE_SIZE", 1000),
			MaxAttempts:   getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 5),
			Timeout:       getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
			ResultURLBase: getEnv("RESULT_URL_BASE", "http://localhost:3000/results"),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
			JWTSecretPath: getEnv("ADMIN_JWT_SECRET_PATH", ""),
			Issuer:        getEnv("ADMIN_JWT_ISSUER", "saju-payments"),
			TokenExpiry:   getEnvAsDuration("ADMIN_JWT_EXPIRY", time.Hour),
		},
		Tracing: TracingConfig{
			Enabled:           getEnvAsBool("TRACING_ENABLED", false),
			CollectorEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			ServiceName:       getEnv("SERVICE_NAME", "saju-payments"),
			SampleRatio:       getEnvAsFloat("TRACE_SAMPLE_RATIO", 1.0),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Products: ProductsConfig{
			MerchantUIDPrefix: getEnv("MERCHANT_UID_PREFIX", "saju"),
			Prices: map[domain.ProductType]int64{
				domain.ProductTypeBasic:   int64(getEnvAsInt("PRICE_BASIC", 9900)),
				domain.ProductTypePDF:     int64(getEnvAsInt("PRICE_PDF", 14900)),
				domain.ProductTypePremium: int64(getEnvAsInt("PRICE_PREMIUM", 29900)),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and enumerations
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.Database.Driver)
	}

	switch c.Gateway.TokenCache {
	case "memory", "redis":
	default:
		return fmt.Errorf("GATEWAY_TOKEN_CACHE must be memory or redis, got %q", c.Gateway.TokenCache)
	}

	if c.Gateway.APIKey == "" && c.Gateway.APIKeyPath == "" {
		return fmt.Errorf("PORTONE_API_KEY or PORTONE_API_KEY_PATH is required")
	}
	if c.Gateway.APISecret == "" && c.Gateway.APISecretPath == "" {
		return fmt.Errorf("PORTONE_API_SECRET or PORTONE_API_SECRET_PATH is required")
	}
	if c.Auth.JWTSecret == "" && c.Auth.JWTSecretPath == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET or ADMIN_JWT_SECRET_PATH is required")
	}

	for product, price := range c.Products.Prices {
		if price <= 0 {
			return fmt.Errorf("price for %s must be positive", product)
		}
	}
	return nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
