package facts

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/openfroyo/capplan/pkg/telemetry"
)

// DefaultCacheSize bounds the number of cached query results.
const DefaultCacheSize = 256

// CachedStore memoises query results of an inner store. Concurrent identical
// queries share one round trip. The cache is process-wide state and is
// emptied by Reset at the start of every planning request.
type CachedStore struct {
	inner   Store
	cache   *lru.Cache[string, []Row]
	group   singleflight.Group
	metrics *telemetry.Metrics
}

// NewCachedStore wraps inner with an LRU of the given size.
func NewCachedStore(inner Store, size int, metrics *telemetry.Metrics) (*CachedStore, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []Row](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{inner: inner, cache: cache, metrics: metrics}, nil
}

// Query returns cached rows or runs the query on the inner store.
func (c *CachedStore) Query(ctx context.Context, query string) ([]Row, error) {
	start := time.Now()
	dialect := string(c.inner.Dialect())
	if rows, ok := c.cache.Get(query); ok {
		c.metrics.RecordFactQuery(dialect, "hit", time.Since(start))
		return rows, nil
	}

	v, err, _ := c.group.Do(query, func() (interface{}, error) {
		rows, err := c.inner.Query(ctx, query)
		if err != nil {
			return nil, err
		}
		c.cache.Add(query, rows)
		return rows, nil
	})
	if err != nil {
		c.metrics.RecordFactQuery(dialect, "error", time.Since(start))
		return nil, err
	}
	c.metrics.RecordFactQuery(dialect, "miss", time.Since(start))
	return v.([]Row), nil
}

// Reset drops every cached result.
func (c *CachedStore) Reset() {
	c.cache.Purge()
}

// Len returns the number of cached queries.
func (c *CachedStore) Len() int {
	return c.cache.Len()
}

// Inner returns the wrapped store.
func (c *CachedStore) Inner() Store {
	return c.inner
}

// Dialect implements Store.
func (c *CachedStore) Dialect() Dialect {
	return c.inner.Dialect()
}

// Close implements Store.
func (c *CachedStore) Close() error {
	c.Reset()
	return c.inner.Close()
}
