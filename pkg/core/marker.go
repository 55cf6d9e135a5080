// pkg/core/marker.go
package core

import "time"

// DraftMarkerID is the engine marker id of the single draft marker.
const DraftMarkerID = "draft"

// PropertyMarkerPrefix prefixes engine marker ids of read-only property markers.
const PropertyMarkerPrefix = "property:"

// DraftMarker is the marker currently being positioned.
type DraftMarker struct {
	ID       string
	Position SphericalPosition
	Placed   bool
}

// RenderSpec describes how the engine draws a marker.
type RenderSpec struct {
	Image   string  `json:"image,omitempty"`
	Size    float64 `json:"size"`
	Tooltip string  `json:"tooltip,omitempty"`
	Anchor  string  `json:"anchor,omitempty"`
}

// PropertyMarker is an already-saved property shown read-only on the panorama.
type PropertyMarker struct {
	PropertyID string            `json:"propertyId"`
	Title      string            `json:"title"`
	Position   SphericalPosition `json:"position"`
}

// Placement is what the caller persists for a property (markerYaw/markerPitch).
type Placement struct {
	PropertyID string            `json:"propertyId"`
	PanoramaID string            `json:"panoramaId"`
	Position   SphericalPosition `json:"position"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}
