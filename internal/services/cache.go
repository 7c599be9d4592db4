package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"exam-dashboard/internal/models"
	"exam-dashboard/internal/observability"
)

// CacheKey identifies an upload by filename and content. The filename is part
// of the key because it selects the parser.
func CacheKey(filename string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(filename))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TableCache memoizes Loader results by content. Uploads are immutable, so
// entries are only dropped to respect the capacity, oldest first. Failed
// loads are never cached.
type TableCache struct {
	loader   *Loader
	capacity int
	metrics  *observability.Metrics

	mu      sync.Mutex
	entries map[string]*models.Table
	order   []string

	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

func NewTableCache(loader *Loader, capacity int, metrics *observability.Metrics) *TableCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &TableCache{
		loader:   loader,
		capacity: capacity,
		metrics:  metrics,
		entries:  make(map[string]*models.Table),
	}
}

// Load returns the cached table for identical content or parses it once.
// Concurrent calls for the same key share a single parse.
func (c *TableCache) Load(ctx context.Context, filename string, data []byte) (*models.Table, bool, error) {
	key := CacheKey(filename, data)

	if t, ok := c.get(key); ok {
		c.hits.Add(1)
		c.metrics.ObserveCache(true)
		return t, true, nil
	}

	// Only the caller that ran the parse records a miss. Callers that shared
	// its result, or found the entry on the re-check, were served from cache.
	parsed := false
	v, err, _ := c.group.Do(key, func() (any, error) {
		if t, ok := c.get(key); ok {
			return t, nil
		}
		parsed = true
		t, err := c.loader.Load(ctx, filename, data)
		if err != nil {
			return nil, err
		}
		c.put(key, t)
		return t, nil
	})

	if parsed || err != nil {
		c.misses.Add(1)
		c.metrics.ObserveCache(false)
	} else {
		c.hits.Add(1)
		c.metrics.ObserveCache(true)
	}
	if err != nil {
		return nil, false, err
	}
	return v.(*models.Table), !parsed, nil
}

func (c *TableCache) get(key string) (*models.Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[key]
	return t, ok
}

func (c *TableCache) put(key string, t *models.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		return
	}
	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = t
	c.order = append(c.order, key)
}

func (c *TableCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TableCache) Hits() int64 {
	return c.hits.Load()
}

func (c *TableCache) Misses() int64 {
	return c.misses.Load()
}
