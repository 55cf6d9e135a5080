package cache

import (
	"sort"
	"sync"

	"github.com/estate360/positioner/pkg/core"
)

// PlacementCache keeps the last known placement of every property so the
// console and worker can answer without a storage round-trip.
type PlacementCache struct {
	m          sync.Mutex
	Placements map[string]core.Placement
}

func NewPlacementCache() *PlacementCache {
	return &PlacementCache{
		Placements: make(map[string]core.Placement),
	}
}

func (c *PlacementCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.Placements = make(map[string]core.Placement)
}

func (c *PlacementCache) Get(propertyID string) (core.Placement, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	p, ok := c.Placements[propertyID]
	return p, ok
}

func (c *PlacementCache) Put(p core.Placement) {
	c.m.Lock()
	defer c.m.Unlock()
	c.Placements[p.PropertyID] = p
}

func (c *PlacementCache) Remove(propertyID string) {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.Placements, propertyID)
}

// OnPanorama returns the cached placements of one panorama as property
// markers ordered by property id.
func (c *PlacementCache) OnPanorama(panoramaID string) []core.PropertyMarker {
	c.m.Lock()
	defer c.m.Unlock()
	var out []core.PropertyMarker
	for _, p := range c.Placements {
		if p.PanoramaID == panoramaID {
			out = append(out, core.PropertyMarker{PropertyID: p.PropertyID, Position: p.Position})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PropertyID < out[j].PropertyID })
	return out
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
