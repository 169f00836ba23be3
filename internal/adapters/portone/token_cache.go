package portone

import (
	"context"
	"sync"

	"github.com/kevin07696/saju-payments/internal/domain/ports"
)

// TokenCache stores the provider access token between calls.
// A shared implementation lets replicas reuse one token.
type TokenCache interface {
	Get(ctx context.Context) (ports.Credential, bool, error)
	Set(ctx context.Context, cred ports.Credential) error
	Invalidate(ctx context.Context) error
}

// MemoryTokenCache keeps the token in process memory
type MemoryTokenCache struct {
	mu   sync.RWMutex
	cred ports.Credential
}

// NewMemoryTokenCache creates an empty in-process token cache
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{}
}

// Get returns the cached credential, if any
func (c *MemoryTokenCache) Get(ctx context.Context) (ports.Credential, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred, c.cred.AccessToken != "", nil
}

// Set replaces the cached credential
func (c *MemoryTokenCache) Set(ctx context.Context, cred ports.Credential) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = cred
	return nil
}

// Invalidate drops the cached credential
func (c *MemoryTokenCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = ports.Credential{}
	return nil
}
