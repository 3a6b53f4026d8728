package geocode

import (
	"context"
	"log/slog"
	"sync"
)

// Cache stores results by normalized address.
type Cache interface {
	GetGeocode(ctx context.Context, key string) (*Result, error)
	SetGeocode(ctx context.Context, key string, res *Result) error
}

// MemoryCache keeps results for the lifetime of the process.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Result
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*Result)}
}

// GetGeocode implements Cache.
func (c *MemoryCache) GetGeocode(_ context.Context, key string) (*Result, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	cp := *res
	return &cp, nil
}

// SetGeocode implements Cache.
func (c *MemoryCache) SetGeocode(_ context.Context, key string, res *Result) error {
	cp := *res
	c.mu.Lock()
	c.entries[key] = &cp
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cached puts a Cache in front of a Geocoder. Cache failures degrade to a
// direct lookup.
type Cached struct {
	next   Geocoder
	cache  Cache
	logger *slog.Logger
}

// NewCached wraps next with cache.
func NewCached(next Geocoder, cache Cache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, cache: cache, logger: logger}
}

// Geocode implements Geocoder.
func (c *Cached) Geocode(ctx context.Context, address string) (*Result, error) {
	key := NormalizeAddress(address)
	if res, err := c.cache.GetGeocode(ctx, key); err == nil {
		return res, nil
	}

	res, err := c.next.Geocode(ctx, address)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetGeocode(ctx, key, res); err != nil {
		c.logger.WarnContext(ctx, "geocode cache write failed", "address", key, "error", err)
	}
	return res, nil
}
