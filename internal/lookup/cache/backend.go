package cache

import (
	"context"
	"time"
)

// Backend is one physical store for cached LLM responses. Implementations
// must be safe for concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePattern removes keys matching a glob. Best-effort and not
	// required to be atomic; returns the number of keys removed.
	DeletePattern(ctx context.Context, pattern string) (int, error)
}
