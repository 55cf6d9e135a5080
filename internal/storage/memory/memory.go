// internal/storage/memory/memory.go
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/estate360/positioner/internal/api"
	"github.com/estate360/positioner/internal/config"
	"github.com/estate360/positioner/pkg/core"
)

// HistoryEntry is one placement change in the order it happened
type HistoryEntry struct {
	Action    string         `json:"action"` // set or clear
	Placement core.Placement `json:"placement"`
}

// Backend keeps placements in memory and exports them to JSON on Close
type Backend struct {
	cfg      config.MemoryConfig
	panorama *core.PanoramaResource

	placements map[string]core.Placement // keyed by PropertyID
	history    []HistoryEntry

	exportedPath string
	startTime    time.Time
	mu           sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:        cfg,
		placements: make(map[string]core.Placement),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startTime = time.Now()
	return nil
}

// Close exports everything recorded so far. Nothing is written when no
// placement changed.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.history) == 0 {
		return nil
	}
	return b.exportJSON()
}

// SavePanorama records the panorama being worked on
func (b *Backend) SavePanorama(p *core.PanoramaResource) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *p
	b.panorama = &cp
	return nil
}

// SavePlacement stores or replaces the placement of a property
func (b *Backend) SavePlacement(p *core.Placement) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.placements[p.PropertyID] = *p
	b.history = append(b.history, HistoryEntry{Action: "set", Placement: *p})
	return nil
}

// DeletePlacement removes the placement of a property. Deleting an unknown
// property is recorded but not an error.
func (b *Backend) DeletePlacement(p *core.Placement) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.placements, p.PropertyID)
	b.history = append(b.history, HistoryEntry{Action: "clear", Placement: *p})
	return nil
}

// ListPlacements returns the placements on a panorama sorted by property id
func (b *Backend) ListPlacements(panoramaID string) ([]core.Placement, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.Placement
	for _, p := range b.placements {
		if p.PanoramaID == panoramaID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PropertyID < out[j].PropertyID })
	return out, nil
}

// History returns a copy of all recorded changes
func (b *Backend) History() []HistoryEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cp := make([]HistoryEntry, len(b.history))
	copy(cp, b.history)
	return cp
}

// GetExportedFilePath returns the path of the last export, if any
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exportedPath
}

// GetExportMetadata describes the last export for upload
func (b *Backend) GetExportMetadata() api.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	meta := api.UploadMetadata{
		Placements: len(b.placements),
		Tag:        b.cfg.Tag,
	}
	if b.panorama != nil {
		meta.PanoramaID = b.panorama.ID
	}
	return meta
}
