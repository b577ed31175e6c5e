package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog"
)

// Config sizes the derived view cache.
type Config struct {
	MaxSizeMB   int
	TTL         time.Duration
	CounterSize int
}

// Cache wraps Ristretto with the dashboard's TTL. Keys embed the snapshot
// generation, so entries from an older load are never served for a newer one.
type Cache struct {
	client *ristretto.Cache
	ttl    time.Duration
}

// New creates a new cache instance with the given configuration
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	counters := cfg.CounterSize
	if counters <= 0 {
		counters = 10000
	}
	client, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(counters),
		MaxCost:     int64(cfg.MaxSizeMB) * 1024 * 1024,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int("max_size_mb", cfg.MaxSizeMB).
		Dur("ttl", cfg.TTL).
		Msg("View cache initialized")

	return &Cache{client: client, ttl: cfg.TTL}, nil
}

// Get retrieves a value from the cache
func (c *Cache) Get(key string) (any, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	return c.client.Get(key)
}

// Set stores value with the configured TTL. cost is an estimate in bytes.
// Ristretto admits writes asynchronously; a dropped Set only costs a recompute.
func (c *Cache) Set(key string, value any, cost int64) bool {
	if c == nil || c.client == nil {
		return false
	}
	return c.client.SetWithTTL(key, value, cost, c.ttl)
}

// Wait blocks until buffered writes are applied.
func (c *Cache) Wait() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Wait()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Clear()
}

func (c *Cache) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Close()
}

// MetricsSnapshot is a point-in-time view of cache effectiveness.
type MetricsSnapshot struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	KeysAdded   uint64  `json:"keys_added"`
	KeysEvicted uint64  `json:"keys_evicted"`
	HitRatio    float64 `json:"hit_ratio"`
}

func (c *Cache) Metrics() MetricsSnapshot {
	if c == nil || c.client == nil || c.client.Metrics == nil {
		return MetricsSnapshot{}
	}
	m := c.client.Metrics
	return MetricsSnapshot{
		Hits:        m.Hits(),
		Misses:      m.Misses(),
		KeysAdded:   m.KeysAdded(),
		KeysEvicted: m.KeysEvicted(),
		HitRatio:    m.Ratio(),
	}
}
