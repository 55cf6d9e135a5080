package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/estate360/positioner/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Capture locations are stored as EPSG:3857 points so SQLite, which has no
// spatial awareness, can still round-trip them through WKB.

// ErrInvalidLocation is returned for capture locations outside WGS84 bounds.
var ErrInvalidLocation = errors.New("invalid capture location")

// maxMercatorLatitude is the latitude limit of EPSG:3857.
const maxMercatorLatitude = 85.05112878

// Coords3857From4326 projects a WGS84 longitude/latitude into web mercator.
func Coords3857From4326(longitude, latitude float64) (geom.Point, error) {
	if !finite(longitude) || !finite(latitude) ||
		math.Abs(longitude) > 180 || math.Abs(latitude) > maxMercatorLatitude {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidLocation
	}
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	pt, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Type: geom.DimXY,
	})
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	return pt, nil
}

// LocationPoint returns the projected capture point of a panorama, or an empty
// point when the location is unknown or invalid.
func LocationPoint(loc *core.GeoLocation) geom.Point {
	if loc == nil {
		return geom.NewEmptyPoint(geom.DimXY)
	}
	pt, err := Coords3857From4326(loc.Longitude, loc.Latitude)
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY)
	}
	return pt
}

// Direction returns the unit view vector of a position. X points right, Y
// forward at yaw 0 and Z up. A non-finite position gives an empty point.
func Direction(p core.SphericalPosition) geom.Point {
	cp := math.Cos(p.Pitch)
	pt, err := geom.NewPoint(geom.Coordinates{
		XY: geom.XY{
			X: cp * math.Sin(p.Yaw),
			Y: cp * math.Cos(p.Yaw),
		},
		Z:    math.Sin(p.Pitch),
		Type: geom.DimXYZ,
	})
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXYZ)
	}
	return pt
}
