// Package surface projects positioner state onto what the operator sees.
// Render is a pure function: same input, same output.
package surface

import (
	"errors"
	"fmt"

	"github.com/estate360/positioner/internal/geo"
	"github.com/estate360/positioner/internal/viewer"
	"github.com/estate360/positioner/pkg/core"
)

// Input is everything the display depends on.
type Input struct {
	Ready     bool
	Mode      core.Mode
	HasMarker bool
	Position  core.SphericalPosition
	// Err is the last viewer failure, if any.
	Err error
	// Notice is the last interaction error, if any.
	Notice error
	// Degrees formats yaw and pitch in degrees instead of radians.
	Degrees bool
}

const (
	statusLoading     = "Loading panorama…"
	statusMissing     = "This neighborhood has no panorama yet."
	statusUnavailable = "The panorama viewer is unavailable."
	statusAwaiting    = "Click on the panorama to place the property."
	statusPlaced      = "Property placed."
	statusUnplaced    = "The property has no position on this panorama."

	noticeInvalidCoordinate = "That point could not be read. Try clicking again."
)

// Render returns the display for in.
func Render(in Input) core.DisplayState {
	switch {
	case errors.Is(in.Err, viewer.ErrMissingPanorama):
		return core.DisplayState{Kind: core.DisplayMissingPanorama, Status: statusMissing}
	case in.Err != nil:
		return core.DisplayState{Kind: core.DisplayUnavailable, Status: statusUnavailable}
	case !in.Ready || in.Mode == core.ModeIdle:
		return core.DisplayState{Kind: core.DisplayLoading, Status: statusLoading}
	}

	ds := core.DisplayState{
		Controls: core.Controls{
			RequestPlacement: in.Mode == core.ModeReady,
			CancelPlacement:  in.Mode == core.ModeAwaitingClick,
			PlaceAtCenter:    true,
			Delete:           in.HasMarker,
		},
	}
	if errors.Is(in.Notice, geo.ErrInvalidCoordinate) {
		ds.Notice = noticeInvalidCoordinate
	}

	switch {
	case in.Mode == core.ModeAwaitingClick:
		ds.Kind = core.DisplayAwaitingPlacement
		ds.Status = statusAwaiting
	case in.HasMarker:
		ds.Kind = core.DisplayPlaced
		ds.Status = statusPlaced
		ds.Yaw, ds.Pitch = FormatPosition(in.Position, in.Degrees)
	default:
		ds.Kind = core.DisplayUnplaced
		ds.Status = statusUnplaced
	}
	return ds
}

// FormatPosition renders yaw and pitch for display.
func FormatPosition(p core.SphericalPosition, degrees bool) (yaw, pitch string) {
	if degrees {
		y, pt := p.Degrees()
		return fmt.Sprintf("%.1f°", y), fmt.Sprintf("%.1f°", pt)
	}
	return fmt.Sprintf("%.4f", p.Yaw), fmt.Sprintf("%.4f", p.Pitch)
}
