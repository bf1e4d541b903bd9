// Package cache is the content-addressed response cache of the look-up
// engine. A durable backend is authoritative; an in-process LRU steps in
// when the durable backend errors (not when it merely misses).
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

// DefaultTTL bounds how long a cached LLM response stays valid.
const DefaultTTL = 24 * time.Hour

const fallbackMaxEntries = 2048

// StatsSnapshot is an advisory view of cache traffic. Counters are not
// required to be consistent under concurrency.
type StatsSnapshot struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Sets          uint64 `json:"sets"`
	FallbackReads uint64 `json:"fallback_reads"`
	DurableErrors uint64 `json:"durable_errors"`
}

type stats struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	sets          atomic.Uint64
	fallbackReads atomic.Uint64
	durableErrors atomic.Uint64
}

// ResponseCache layers the durable backend over an in-process fallback.
type ResponseCache struct {
	durable  Backend
	fallback *expirable.LRU[string, []byte]
	prefix   string
	ttl      time.Duration
	stats    stats
}

// Option tweaks cache construction.
type Option func(*ResponseCache)

func WithPrefix(prefix string) Option {
	return func(c *ResponseCache) { c.prefix = prefix }
}

func WithTTL(ttl time.Duration) Option {
	return func(c *ResponseCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func New(durable Backend, opts ...Option) *ResponseCache {
	c := &ResponseCache{
		durable: durable,
		prefix:  DefaultPrefix,
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.fallback = expirable.NewLRU[string, []byte](fallbackMaxEntries, nil, c.ttl)
	return c
}

// KeyFor builds the cache key for a resolved prompt and its reference data
// under this cache's prefix.
func (c *ResponseCache) KeyFor(resolvedPrompt, referenceData string) string {
	return Key(c.prefix, resolvedPrompt, referenceData)
}

// Prefix returns the configured key namespace.
func (c *ResponseCache) Prefix() string { return c.prefix }

// Get returns the cached response for key, if any. A durable error falls
// through to the in-process backend.
func (c *ResponseCache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil {
		return "", false
	}
	value, ok, err := c.durable.Get(ctx, key)
	if err != nil {
		c.stats.durableErrors.Add(1)
		log.Warn().Err(err).Str("key", key).Msg("durable cache read failed, using fallback")
		if v, ok := c.fallback.Get(key); ok {
			c.stats.hits.Add(1)
			c.stats.fallbackReads.Add(1)
			return string(v), true
		}
		c.stats.misses.Add(1)
		return "", false
	}
	if !ok {
		c.stats.misses.Add(1)
		return "", false
	}
	c.stats.hits.Add(1)
	return string(value), true
}

// Set stores a response under key with the default TTL.
func (c *ResponseCache) Set(ctx context.Context, key, response string) {
	c.SetTTL(ctx, key, response, c.ttl)
}

// SetTTL stores a response with an explicit TTL. The write is idempotent:
// the key is derived from the content, so retries rewrite the same value.
func (c *ResponseCache) SetTTL(ctx context.Context, key, response string, ttl time.Duration) {
	if c == nil {
		return
	}
	c.stats.sets.Add(1)
	if err := c.durable.Set(ctx, key, []byte(response), ttl); err != nil {
		c.stats.durableErrors.Add(1)
		log.Warn().Err(err).Str("key", key).Msg("durable cache write failed, using fallback")
		c.fallback.Add(key, []byte(response))
	}
}

// Delete removes one key from both backends.
func (c *ResponseCache) Delete(ctx context.Context, key string) {
	if c == nil {
		return
	}
	if err := c.durable.Delete(ctx, key); err != nil {
		c.stats.durableErrors.Add(1)
		log.Warn().Err(err).Str("key", key).Msg("durable cache delete failed")
	}
	c.fallback.Remove(key)
}

// ClearPattern removes keys matching a glob from both backends.
// Best-effort and non-atomic.
func (c *ResponseCache) ClearPattern(ctx context.Context, pattern string) int {
	if c == nil {
		return 0
	}
	removed, err := c.durable.DeletePattern(ctx, pattern)
	if err != nil {
		c.stats.durableErrors.Add(1)
		log.Warn().Err(err).Str("pattern", pattern).Msg("durable cache pattern delete failed")
	}
	c.fallback.Purge()
	return removed
}

// Warmup pre-seeds responses for a project. Keys in entries are raw
// fingerprints; the cache prefix is applied here.
func (c *ResponseCache) Warmup(ctx context.Context, projectID string, entries map[string]string) int {
	if c == nil {
		return 0
	}
	seeded := 0
	for fingerprint, response := range entries {
		c.Set(ctx, c.prefix+fingerprint, response)
		seeded++
	}
	log.Debug().Str("project_id", projectID).Int("entries", seeded).Msg("cache warmed up")
	return seeded
}

// Stats returns the advisory counters.
func (c *ResponseCache) Stats() StatsSnapshot {
	if c == nil {
		return StatsSnapshot{}
	}
	return StatsSnapshot{
		Hits:          c.stats.hits.Load(),
		Misses:        c.stats.misses.Load(),
		Sets:          c.stats.sets.Load(),
		FallbackReads: c.stats.fallbackReads.Load(),
		DurableErrors: c.stats.durableErrors.Load(),
	}
}
