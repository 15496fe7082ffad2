package runway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Source loads all runway ends of an airport
type Source interface {
	RunwayEnds(ctx context.Context, airport string) ([]RunwayEnd, error)
}

// Catalog caches runway ends per airport. Batch runs score many flights into
// the same few airports, so each airport is loaded once per TTL.
type Catalog struct {
	source Source
	cache  *expirable.LRU[string, []RunwayEnd]
}

// NewCatalog wraps a source with an LRU of the given size and TTL
func NewCatalog(source Source, size int, ttl time.Duration) *Catalog {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Catalog{
		source: source,
		cache:  expirable.NewLRU[string, []RunwayEnd](size, nil, ttl),
	}
}

// Ends returns the runway ends of an airport. An empty result is cached too.
func (c *Catalog) Ends(ctx context.Context, airport string) ([]RunwayEnd, error) {
	key := strings.ToUpper(strings.TrimSpace(airport))
	if ends, ok := c.cache.Get(key); ok {
		return ends, nil
	}

	ends, err := c.source.RunwayEnds(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load runways for %s: %w", key, err)
	}
	c.cache.Add(key, ends)
	return ends, nil
}

// Invalidate drops one airport from the cache, e.g. after a runway upsert
func (c *Catalog) Invalidate(airport string) {
	c.cache.Remove(strings.ToUpper(strings.TrimSpace(airport)))
}

// Len returns the number of cached airports
func (c *Catalog) Len() int {
	return c.cache.Len()
}
