package redis

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/kevin07696/saju-payments/internal/domain/ports"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeRedis records values and TTLs in memory
type fakeRedis struct {
	mu     sync.Mutex
	values map[string][]byte
	ttls   map[string]time.Duration
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return goredis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return goredis.NewStatusResult("", f.err)
	}
	f.values[key] = value.([]byte)
	f.ttls[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return goredis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

func TestTokenCache_RoundTripWithTTL(t *testing.T) {
	fake := newFakeRedis()
	cache := newTokenCache(fake, "", zaptest.NewLogger(t))
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	_, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	cred := ports.Credential{AccessToken: "tok", ExpiresAt: now.Add(30 * time.Minute)}
	require.NoError(t, cache.Set(ctx, cred))
	assert.Equal(t, 30*time.Minute, fake.ttls[DefaultTokenKey])

	got, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", got.AccessToken)
	assert.True(t, cred.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, cache.Invalidate(ctx))
	_, ok, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenCache_SkipsExpiredCredential(t *testing.T) {
	fake := newFakeRedis()
	cache := newTokenCache(fake, "k", zaptest.NewLogger(t))

	require.NoError(t, cache.Set(context.Background(), ports.Credential{
		AccessToken: "old", ExpiresAt: time.Now().Add(-time.Minute),
	}))
	assert.Empty(t, fake.values)
}

func TestTokenCache_CorruptValueIsAMiss(t *testing.T) {
	fake := newFakeRedis()
	fake.values["k"] = []byte("not json")
	cache := newTokenCache(fake, "k", zaptest.NewLogger(t))

	_, ok, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenCache_PropagatesConnectionErrors(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	cache := newTokenCache(fake, "k", zaptest.NewLogger(t))
	ctx := context.Background()

	_, _, err := cache.Get(ctx)
	assert.Error(t, err)
	assert.Error(t, cache.Set(ctx, ports.Credential{AccessToken: "t", ExpiresAt: time.Now().Add(time.Hour)}))
	assert.Error(t, cache.Invalidate(ctx))
}

// TestTokenCache_RealRedis runs against REDIS_ADDR when it is set
func TestTokenCache_RealRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis integration test")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, Config{Addr: addr}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	cache := NewTokenCache(client, "saju-payments:test:token", zaptest.NewLogger(t))
	t.Cleanup(func() { _ = cache.Invalidate(ctx) })

	require.NoError(t, cache.Set(ctx, ports.Credential{AccessToken: "live", ExpiresAt: time.Now().Add(time.Minute)}))
	got, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "live", got.AccessToken)
}
