package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/estate360/positioner/internal/cache"
	"github.com/estate360/positioner/internal/storage"
	"github.com/estate360/positioner/pkg/core"
)

// ErrInvalidPlacement is returned for placements without a property or with
// an out-of-range position.
var ErrInvalidPlacement = errors.New("invalid placement")

// remoteTimeout bounds each call to the panorama service.
const remoteTimeout = 10 * time.Second

// Job is the payload carried by the persistence dispatcher
type Job struct {
	Placement core.Placement
	Clear     bool // delete the placement instead of saving it
	Panorama  *core.PanoramaResource
}

// PlacementWriter records placement telemetry
type PlacementWriter interface {
	WritePlacement(p core.Placement) error
	WriteClear(p core.Placement) error
}

// PlacementPublisher pushes saved placements to the listing platform
type PlacementPublisher interface {
	PutPlacement(ctx context.Context, p core.Placement) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Cache   *cache.PlacementCache
	Influx  PlacementWriter    // optional
	Remote  PlacementPublisher // optional
	Logger  *slog.Logger
	Context context.Context
}

// Manager persists placement changes off the caller's goroutine
type Manager struct {
	deps    Dependencies
	backend storage.Backend
	saved   cache.SafeCounter
	cleared cache.SafeCounter
	failed  cache.SafeCounter
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Cache == nil {
		deps.Cache = cache.NewPlacementCache()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// Saved returns how many placements were persisted.
func (m *Manager) Saved() int {
	return m.saved.Value()
}

// Cleared returns how many placements were deleted.
func (m *Manager) Cleared() int {
	return m.cleared.Value()
}

// Failed returns how many placement changes could not be persisted.
func (m *Manager) Failed() int {
	return m.failed.Value()
}

// Cache returns the placement cache the worker keeps current.
func (m *Manager) Cache() *cache.PlacementCache {
	return m.deps.Cache
}
