package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Panorama{},
	&Placement{},
	&PlacementEvent{},
}

// Placement actions recorded in PlacementEvent.
const (
	ActionSet   = "set"
	ActionClear = "clear"
)

// Panorama is a 360° capture of a neighborhood
type Panorama struct {
	ID        string     `json:"id" gorm:"primarykey;size:64"`
	ImageURL  string     `json:"imageUrl" gorm:"size:512"`
	Caption   string     `json:"caption" gorm:"size:256"`
	Location  geom.Point `json:"location"` // capture point in EPSG:3857, empty when unknown
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (*Panorama) TableName() string {
	return "panoramas"
}

// Placement is the current marker position of a property on its panorama
type Placement struct {
	ID         uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	PropertyID string         `json:"propertyId" gorm:"size:64;uniqueIndex:idx_placement_property"`
	PanoramaID string         `json:"panoramaId" gorm:"size:64;index:idx_placement_panorama"`
	Yaw        float64        `json:"markerYaw"`   // radians, [-π, π]
	Pitch      float64        `json:"markerPitch"` // radians, [-π/2, π/2]
	Direction  geom.Point     `json:"direction"`   // unit vector the marker points along
	Metadata   datatypes.JSON `json:"metadata" gorm:"type:jsonb;default:'{}'"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func (*Placement) TableName() string {
	return "placements"
}

// PlacementEvent is the append-only history of placement changes
type PlacementEvent struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time       time.Time `json:"time" gorm:"index:idx_placementevent_time"`
	PropertyID string    `json:"propertyId" gorm:"size:64;index:idx_placementevent_property"`
	PanoramaID string    `json:"panoramaId" gorm:"size:64"`
	Action     string    `json:"action" gorm:"size:8"`
	Yaw        float64   `json:"markerYaw"`
	Pitch      float64   `json:"markerPitch"`
}

func (*PlacementEvent) TableName() string {
	return "placement_events"
}
