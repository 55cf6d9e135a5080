package geo

import (
	"math"
	"testing"

	"github.com/estate360/positioner/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoords3857From4326_Origin(t *testing.T) {
	pt, err := Coords3857From4326(0, 0)
	require.NoError(t, err)

	c, ok := pt.Coordinates()
	require.True(t, ok)
	assert.InDelta(t, 0, c.X, 1e-6)
	assert.InDelta(t, 0, c.Y, 1e-6)
}

func TestCoords3857From4326_Projects(t *testing.T) {
	pt, err := Coords3857From4326(180, 0)
	require.NoError(t, err)

	c, ok := pt.Coordinates()
	require.True(t, ok)
	assert.InDelta(t, 20037508.34, c.X, 1)
}

func TestCoords3857From4326_Invalid(t *testing.T) {
	for _, ll := range [][2]float64{{0, 89}, {181, 0}, {math.NaN(), 0}} {
		pt, err := Coords3857From4326(ll[0], ll[1])
		assert.ErrorIs(t, err, ErrInvalidLocation)
		assert.True(t, pt.IsEmpty())
	}
}

func TestLocationPoint(t *testing.T) {
	assert.True(t, LocationPoint(nil).IsEmpty())
	assert.True(t, LocationPoint(&core.GeoLocation{Latitude: 95}).IsEmpty())
	assert.False(t, LocationPoint(&core.GeoLocation{Longitude: 2.35, Latitude: 48.85}).IsEmpty())
}

func TestDirection_UnitVector(t *testing.T) {
	for _, p := range []core.SphericalPosition{
		core.Origin,
		core.NewPosition(0.5, -0.1),
		core.NewPosition(-math.Pi, math.Pi/2),
	} {
		c, ok := Direction(p).Coordinates()
		require.True(t, ok)
		length := math.Sqrt(c.X*c.X + c.Y*c.Y + c.Z*c.Z)
		assert.InDelta(t, 1, length, 1e-12, "position %v", p)
	}

	c, _ := Direction(core.Origin).Coordinates()
	assert.InDelta(t, 1, c.Y, 1e-12)
	assert.InDelta(t, 0, c.Z, 1e-12)
}

func TestDirection_NonFiniteIsEmpty(t *testing.T) {
	pt := Direction(core.NewPosition(math.NaN(), 0))
	assert.True(t, pt.IsEmpty())
	assert.Equal(t, "XYZ", pt.CoordinatesType().String())
}
