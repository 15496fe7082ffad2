package weather

import (
	"strings"
	"sync"
	"time"
)

// Cache keeps the latest observation per airport
type Cache struct {
	mu          sync.RWMutex
	latest      map[string]Observation
	lastUpdated time.Time
}

// NewCache creates an empty observation cache
func NewCache() *Cache {
	return &Cache{latest: make(map[string]Observation)}
}

// Update stores observations that are newer than what is cached and returns
// how many replaced an entry
func (c *Cache) Update(observations []Observation) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	updated := 0
	for _, o := range observations {
		cur, ok := c.latest[o.Airport]
		if ok && !o.ObservedAt.After(cur.ObservedAt) {
			continue
		}
		c.latest[o.Airport] = o
		updated++
	}
	c.lastUpdated = time.Now()
	return updated
}

// Get returns the latest observation for an airport
func (c *Cache) Get(airport string) (Observation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.latest[strings.ToUpper(airport)]
	return o, ok
}

// Len returns the number of airports with an observation
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.latest)
}

// GetStats returns cache statistics
func (c *Cache) GetStats() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]any{
		"airports":     len(c.latest),
		"last_updated": c.lastUpdated,
	}
}
