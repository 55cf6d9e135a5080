package convert

import (
	"encoding/json"

	"github.com/estate360/positioner/internal/model"
	"github.com/estate360/positioner/pkg/core"
	"gorm.io/datatypes"
)

// PlacementToCore converts a GORM model.Placement to a core.Placement.
func PlacementToCore(p model.Placement) core.Placement {
	return core.Placement{
		PropertyID: p.PropertyID,
		PanoramaID: p.PanoramaID,
		Position:   core.NewPosition(p.Yaw, p.Pitch),
		UpdatedAt:  p.UpdatedAt,
	}
}

// PlacementMetadata decodes the metadata column. Malformed JSON yields nil.
func PlacementMetadata(p model.Placement) map[string]string {
	return jsonToMetadata(p.Metadata)
}

func jsonToMetadata(data datatypes.JSON) map[string]string {
	if len(data) == 0 {
		return nil
	}
	var meta map[string]string
	if err := json.Unmarshal(data, &meta); err != nil || len(meta) == 0 {
		return nil
	}
	return meta
}

// PlacementsToCore converts a slice of GORM placements.
func PlacementsToCore(ps []model.Placement) []core.Placement {
	out := make([]core.Placement, len(ps))
	for i, p := range ps {
		out[i] = PlacementToCore(p)
	}
	return out
}
