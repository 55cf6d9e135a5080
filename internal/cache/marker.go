package cache

import (
	"sort"
	"sync"

	"github.com/estate360/positioner/pkg/core"
)

// MarkerCache maps engine marker ids to the read-only property markers drawn
// for the current session
type MarkerCache struct {
	mu      sync.RWMutex
	markers map[string]core.PropertyMarker
}

// NewMarkerCache creates a new MarkerCache
func NewMarkerCache() *MarkerCache {
	return &MarkerCache{
		markers: make(map[string]core.PropertyMarker),
	}
}

// Get retrieves a property marker by engine marker id
func (c *MarkerCache) Get(markerID string) (core.PropertyMarker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markers[markerID]
	return m, ok
}

// Set stores a property marker under its engine marker id
func (c *MarkerCache) Set(markerID string, m core.PropertyMarker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers[markerID] = m
}

// Delete removes a marker by engine marker id
func (c *MarkerCache) Delete(markerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markers, markerID)
}

// IDs returns the cached engine marker ids in sorted order
func (c *MarkerCache) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.markers))
	for id := range c.markers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of cached markers
func (c *MarkerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.markers)
}

// Reset clears all markers from the cache
func (c *MarkerCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers = make(map[string]core.PropertyMarker)
}
