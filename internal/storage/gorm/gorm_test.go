package gormstorage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/estate360/positioner/internal/database"
	"github.com/estate360/positioner/internal/model"
	"github.com/estate360/positioner/internal/model/convert"
	"github.com/estate360/positioner/internal/storage"
	"github.com/estate360/positioner/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Backend)(nil)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.GetSqliteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	b := New(Dependencies{DB: db, Metadata: map[string]string{"tag": "survey"}})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func placement(prop, pano string, yaw float64) *core.Placement {
	return &core.Placement{
		PropertyID: prop,
		PanoramaID: pano,
		Position:   core.NewPosition(yaw, -0.2),
		UpdatedAt:  time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestSavePlacement_Upserts(t *testing.T) {
	b := newBackend(t)

	require.NoError(t, b.SavePlacement(placement("a", "pano-1", 1)))
	require.NoError(t, b.SavePlacement(placement("a", "pano-1", 2)))

	got, ok, err := b.GetPlacement("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.0, got.Position.Yaw)
	assert.Equal(t, -0.2, got.Position.Pitch)

	var row model.Placement
	require.NoError(t, b.DB().Where("property_id = ?", "a").First(&row).Error)
	assert.Equal(t, map[string]string{"tag": "survey"}, convert.PlacementMetadata(row))

	var events int64
	require.NoError(t, b.DB().Model(&model.PlacementEvent{}).Count(&events).Error)
	assert.Equal(t, int64(2), events)
}

func TestListPlacements(t *testing.T) {
	b := newBackend(t)

	require.NoError(t, b.SavePlacement(placement("b", "pano-1", 1)))
	require.NoError(t, b.SavePlacement(placement("a", "pano-1", 1)))
	require.NoError(t, b.SavePlacement(placement("c", "pano-2", 1)))

	got, err := b.ListPlacements("pano-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].PropertyID)
	assert.Equal(t, "b", got[1].PropertyID)
}

func TestDeletePlacement(t *testing.T) {
	b := newBackend(t)

	require.NoError(t, b.SavePlacement(placement("a", "pano-1", 1)))
	require.NoError(t, b.DeletePlacement(placement("a", "pano-1", 0)))
	require.NoError(t, b.DeletePlacement(placement("ghost", "pano-1", 0)))

	_, ok, err := b.GetPlacement("a")
	require.NoError(t, err)
	assert.False(t, ok)

	var clears int64
	require.NoError(t, b.DB().Model(&model.PlacementEvent{}).
		Where("action = ?", model.ActionClear).Count(&clears).Error)
	assert.Equal(t, int64(2), clears)
}

func TestSavePanorama_Upserts(t *testing.T) {
	b := newBackend(t)

	pano := &core.PanoramaResource{ID: "pano-1", ImageURL: "a.jpg", Caption: "First"}
	require.NoError(t, b.SavePanorama(pano))
	pano.Caption = "Second"
	pano.Location = &core.GeoLocation{Longitude: 10, Latitude: 50}
	require.NoError(t, b.SavePanorama(pano))

	var row model.Panorama
	require.NoError(t, b.DB().First(&row, "id = ?", "pano-1").Error)
	assert.Equal(t, "Second", row.Caption)
	assert.False(t, row.Location.IsEmpty())
}

func TestEventSink(t *testing.T) {
	db, err := database.GetSqliteDB("")
	require.NoError(t, err)

	var sunk []model.PlacementEvent
	b := New(Dependencies{DB: db, EventSink: func(e model.PlacementEvent) { sunk = append(sunk, e) }})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.SavePlacement(placement("a", "pano-1", 1)))
	require.NoError(t, b.DeletePlacement(placement("a", "pano-1", 0)))

	require.Len(t, sunk, 2)
	assert.Equal(t, model.ActionSet, sunk[0].Action)
	assert.Equal(t, model.ActionClear, sunk[1].Action)

	var events int64
	require.NoError(t, b.DB().Model(&model.PlacementEvent{}).Count(&events).Error)
	assert.Zero(t, events)
}
