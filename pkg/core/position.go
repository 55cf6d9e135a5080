// pkg/core/position.go
package core

import (
	"fmt"
	"math"
)

// SphericalPosition is a point on the unit sphere in the panorama's local frame.
// Yaw is in [-π, π] and Pitch in [-π/2, π/2], both in radians.
type SphericalPosition struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// Origin is the sphere front-center. It is a valid position, not a null value.
var Origin = SphericalPosition{}

// NewPosition returns a position without validating the range.
func NewPosition(yaw, pitch float64) SphericalPosition {
	return SphericalPosition{Yaw: yaw, Pitch: pitch}
}

// WithYaw returns a copy with a different yaw.
func (p SphericalPosition) WithYaw(yaw float64) SphericalPosition {
	p.Yaw = yaw
	return p
}

// WithPitch returns a copy with a different pitch.
func (p SphericalPosition) WithPitch(pitch float64) SphericalPosition {
	p.Pitch = pitch
	return p
}

// InRange reports whether both components are finite and inside their ranges.
func (p SphericalPosition) InRange() bool {
	if math.IsNaN(p.Yaw) || math.IsNaN(p.Pitch) {
		return false
	}
	return p.Yaw >= -math.Pi && p.Yaw <= math.Pi &&
		p.Pitch >= -math.Pi/2 && p.Pitch <= math.Pi/2
}

// Degrees returns yaw and pitch converted to degrees.
func (p SphericalPosition) Degrees() (yaw, pitch float64) {
	return p.Yaw * 180 / math.Pi, p.Pitch * 180 / math.Pi
}

func (p SphericalPosition) String() string {
	return fmt.Sprintf("yaw=%.4f pitch=%.4f", p.Yaw, p.Pitch)
}

// PositionChange is delivered to change handlers. Cleared is set when the draft
// marker was deleted, in which case Position is Origin.
type PositionChange struct {
	Position SphericalPosition `json:"position"`
	Cleared  bool              `json:"cleared"`
}
