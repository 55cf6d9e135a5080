// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"time"

	"github.com/estate360/positioner/internal/geo"
	"github.com/estate360/positioner/internal/model"
	"github.com/estate360/positioner/pkg/core"
	"gorm.io/datatypes"
)

// metadataToJSON converts free-form metadata to datatypes.JSON for DB storage.
func metadataToJSON(meta map[string]string) datatypes.JSON {
	if len(meta) == 0 {
		return datatypes.JSON("{}")
	}
	data, _ := json.Marshal(meta)
	return datatypes.JSON(data)
}

// CoreToPlacement converts a core.Placement to a GORM model.Placement.
func CoreToPlacement(p core.Placement, meta map[string]string) model.Placement {
	return model.Placement{
		PropertyID: p.PropertyID,
		PanoramaID: p.PanoramaID,
		Yaw:        p.Position.Yaw,
		Pitch:      p.Position.Pitch,
		Direction:  geo.Direction(p.Position),
		Metadata:   metadataToJSON(meta),
		UpdatedAt:  p.UpdatedAt,
	}
}

// CoreToPlacementEvent records a placement change in the history table.
func CoreToPlacementEvent(p core.Placement, action string) model.PlacementEvent {
	t := p.UpdatedAt
	if t.IsZero() {
		t = time.Now()
	}
	return model.PlacementEvent{
		Time:       t,
		PropertyID: p.PropertyID,
		PanoramaID: p.PanoramaID,
		Action:     action,
		Yaw:        p.Position.Yaw,
		Pitch:      p.Position.Pitch,
	}
}

// CoreToPanorama converts a panorama resource to a GORM model.Panorama.
// The capture location is projected to EPSG:3857.
func CoreToPanorama(r core.PanoramaResource) model.Panorama {
	return model.Panorama{
		ID:       r.ID,
		ImageURL: r.ImageURL,
		Caption:  r.Caption,
		Location: geo.LocationPoint(r.Location),
	}
}
