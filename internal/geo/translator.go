package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/estate360/positioner/internal/engine"
	"github.com/estate360/positioner/pkg/core"
)

// ErrInvalidCoordinate is returned when the engine reports a non-finite or
// malformed coordinate. It is never coerced to Origin, which is a valid position.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

const (
	// MaxYaw bounds yaw to [-MaxYaw, MaxYaw].
	MaxYaw = math.Pi
	// MaxPitch bounds pitch to [-MaxPitch, MaxPitch].
	MaxPitch = math.Pi / 2
)

// WrapYaw maps yaw into [-π, π]. Values already in range are returned as-is,
// and WrapYaw(WrapYaw(x)) == WrapYaw(x).
func WrapYaw(yaw float64) float64 {
	if yaw >= -MaxYaw && yaw <= MaxYaw {
		return yaw
	}
	return math.Remainder(yaw, 2*math.Pi)
}

// ClampPitch limits pitch to [-π/2, π/2].
func ClampPitch(pitch float64) float64 {
	return math.Max(-MaxPitch, math.Min(MaxPitch, pitch))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Normalize validates and normalizes a raw yaw/pitch pair.
func Normalize(yaw, pitch float64) (core.SphericalPosition, error) {
	if !finite(yaw) || !finite(pitch) {
		return core.SphericalPosition{}, fmt.Errorf("%w: yaw=%v pitch=%v", ErrInvalidCoordinate, yaw, pitch)
	}
	return core.NewPosition(WrapYaw(yaw), ClampPitch(pitch)), nil
}

// FromClick translates a click event into a position. Events that are not
// clicks or carry no payload are rejected.
func FromClick(ev engine.Event) (core.SphericalPosition, error) {
	if ev.Name != engine.EventClick {
		return core.SphericalPosition{}, fmt.Errorf("%w: %q is not a click event", ErrInvalidCoordinate, ev.Name)
	}
	if ev.Click == nil {
		return core.SphericalPosition{}, fmt.Errorf("%w: click event without payload", ErrInvalidCoordinate)
	}
	return Normalize(ev.Click.Yaw, ev.Click.Pitch)
}

// FromCameraOrientation translates the current camera orientation into a position.
func FromCameraOrientation(cam engine.CameraReader) (core.SphericalPosition, error) {
	if cam == nil {
		return core.SphericalPosition{}, fmt.Errorf("%w: no camera", ErrInvalidCoordinate)
	}
	o := cam.CameraOrientation()
	return Normalize(o.Yaw, o.Pitch)
}

// ToOrientation converts a position to the engine's orientation shape.
func ToOrientation(p core.SphericalPosition) engine.Orientation {
	return engine.Orientation{Yaw: p.Yaw, Pitch: p.Pitch}
}

// ParsePosition parses "yaw,pitch" in radians. A "deg" suffix on either
// component reads it as degrees.
func ParsePosition(s string) (core.SphericalPosition, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return core.SphericalPosition{}, fmt.Errorf("%w: expected \"yaw,pitch\", got %q", ErrInvalidCoordinate, s)
	}
	yaw, err := parseAngle(parts[0])
	if err != nil {
		return core.SphericalPosition{}, err
	}
	pitch, err := parseAngle(parts[1])
	if err != nil {
		return core.SphericalPosition{}, err
	}
	return Normalize(yaw, pitch)
}

func parseAngle(s string) (float64, error) {
	s = strings.TrimSpace(s)
	degrees := strings.HasSuffix(s, "deg")
	s = strings.TrimSuffix(s, "deg")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCoordinate, s)
	}
	if degrees {
		v = v * math.Pi / 180
	}
	return v, nil
}
