// Package redis shares the gateway access token between service replicas.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kevin07696/saju-payments/internal/domain/ports"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTokenKey is the key the credential is stored under
const DefaultTokenKey = "saju-payments:gateway:token"

// commander is the subset of the go-redis client the cache uses
type commander interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// Config contains configuration for the Redis connection
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// TokenCache implements portone.TokenCache on Redis
type TokenCache struct {
	client commander
	key    string
	logger *zap.Logger
	now    func() time.Time
}

type storedCredential struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Redis connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return client, nil
}

// NewTokenCache creates a token cache on an existing client
func NewTokenCache(client *goredis.Client, key string, logger *zap.Logger) *TokenCache {
	return newTokenCache(client, key, logger)
}

func newTokenCache(client commander, key string, logger *zap.Logger) *TokenCache {
	if key == "" {
		key = DefaultTokenKey
	}
	return &TokenCache{
		client: client,
		key:    key,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the shared credential. A missing key is not an error.
func (c *TokenCache) Get(ctx context.Context) (ports.Credential, bool, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return ports.Credential{}, false, nil
	}
	if err != nil {
		return ports.Credential{}, false, fmt.Errorf("redis get %s: %w", c.key, err)
	}

	var stored storedCredential
	if err := json.Unmarshal(raw, &stored); err != nil {
		c.logger.Warn("Discarding unreadable cached gateway token", zap.Error(err))
		return ports.Credential{}, false, nil
	}

	return ports.Credential{AccessToken: stored.AccessToken, ExpiresAt: stored.ExpiresAt}, stored.AccessToken != "", nil
}

// Set stores the credential until it expires
func (c *TokenCache) Set(ctx context.Context, cred ports.Credential) error {
	ttl := cred.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(storedCredential{AccessToken: cred.AccessToken, ExpiresAt: cred.ExpiresAt})
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	if err := c.client.Set(ctx, c.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key, err)
	}
	return nil
}

// Invalidate removes the shared credential
func (c *TokenCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", c.key, err)
	}
	return nil
}
