// internal/storage/storage.go
package storage

import (
	"errors"

	"github.com/estate360/positioner/internal/api"
	"github.com/estate360/positioner/pkg/core"
)

// ErrNotFound is returned when deleting a placement that does not exist.
var ErrNotFound = errors.New("placement not found")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Panorama the following placements belong to
	SavePanorama(p *core.PanoramaResource) error

	// Placements, keyed by property id
	SavePlacement(p *core.Placement) error
	DeletePlacement(p *core.Placement) error
	ListPlacements(panoramaID string) ([]core.Placement, error)
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the panorama service.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() api.UploadMetadata
}
