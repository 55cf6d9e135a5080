// pkg/core/display.go
package core

// DisplayKind enumerates what the positioner surface shows.
type DisplayKind string

const (
	DisplayLoading           DisplayKind = "loading"
	DisplayMissingPanorama   DisplayKind = "missing-panorama"
	DisplayUnavailable       DisplayKind = "unavailable"
	DisplayAwaitingPlacement DisplayKind = "awaiting-placement"
	DisplayPlaced            DisplayKind = "placed"
	DisplayUnplaced          DisplayKind = "unplaced"
)

// Controls reports which user controls are enabled.
type Controls struct {
	RequestPlacement bool `json:"requestPlacement"`
	CancelPlacement  bool `json:"cancelPlacement"`
	PlaceAtCenter    bool `json:"placeAtCenter"`
	Delete           bool `json:"delete"`
}

// DisplayState is the full presentation of the positioner at one instant.
type DisplayState struct {
	Kind     DisplayKind `json:"kind"`
	Status   string      `json:"status"`
	Yaw      string      `json:"yaw,omitempty"`
	Pitch    string      `json:"pitch,omitempty"`
	Notice   string      `json:"notice,omitempty"`
	Controls Controls    `json:"controls"`
}
