package marker

import (
	"testing"

	"github.com/estate360/positioner/internal/engine/enginetest"
	"github.com/estate360/positioner/internal/geo"
	"github.com/estate360/positioner/internal/viewer"
	"github.com/estate360/positioner/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	eng     *enginetest.Engine
	mgr     *viewer.Manager
	session *viewer.Session
	changes []core.PositionChange
	ctrl    *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{eng: enginetest.New()}
	f.mgr = viewer.NewManager(f.eng, nil)
	f.ctrl = NewController(DefaultDraftSpec, func(c core.PositionChange) {
		f.changes = append(f.changes, c)
	}, nil)
	f.session = f.open(t, core.PanoramaResource{ID: "N1", ImageURL: "/img/n1.jpg"})
	return f
}

func (f *fixture) open(t *testing.T, res core.PanoramaResource) *viewer.Session {
	t.Helper()
	s, err := f.mgr.Open(res, nil)
	require.NoError(t, err)
	f.eng.Last().FireReady()
	require.True(t, s.Ready())
	return s
}

func TestSetDraft_ReplacesMarker(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.SetDraft(f.session, core.NewPosition(0.1, 0.1)))
	require.NoError(t, f.ctrl.SetDraft(f.session, core.NewPosition(-0.4, 0.3)))

	markers := f.eng.Last().Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, core.DraftMarkerID, markers[0].ID)
	assert.Equal(t, -0.4, markers[0].Position.Yaw)
	assert.Equal(t, DefaultDraftSpec, markers[0].Spec)

	require.Len(t, f.changes, 2)
	assert.Equal(t, core.NewPosition(-0.4, 0.3), f.changes[1].Position)
	assert.False(t, f.changes[1].Cleared)

	d, ok := f.ctrl.Draft()
	require.True(t, ok)
	assert.True(t, d.Placed)
	assert.Equal(t, core.NewPosition(-0.4, 0.3), d.Position)
}

func TestSetDraft_RejectsOutOfRange(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.SetDraft(f.session, core.NewPosition(4, 0))
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)
	assert.Empty(t, f.eng.Last().Markers())
	assert.Empty(t, f.changes)
}

func TestSetDraft_ClosedSession(t *testing.T) {
	f := newFixture(t)
	f.mgr.Close(f.session)

	err := f.ctrl.SetDraft(f.session, core.Origin)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Empty(t, f.changes)
	assert.Empty(t, f.eng.Last().Misuse())

	assert.ErrorIs(t, f.ctrl.SetDraft(nil, core.Origin), ErrSessionClosed)
}

func TestSetDraft_NotReady(t *testing.T) {
	f := newFixture(t)
	pending, err := f.mgr.Open(core.PanoramaResource{ID: "N2", ImageURL: "/img/n2.jpg"}, nil)
	require.NoError(t, err)

	err = f.ctrl.SetDraft(pending, core.Origin)
	assert.ErrorIs(t, err, viewer.ErrNotReady)
	_, ok := f.ctrl.Draft()
	assert.False(t, ok)
}

func TestSeedInitial_Silent(t *testing.T) {
	f := newFixture(t)
	pos := core.NewPosition(1.0, 0.2)

	require.NoError(t, f.ctrl.SeedInitial(f.session, &pos))

	markers := f.eng.Last().Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, 1.0, markers[0].Position.Yaw)
	assert.Equal(t, 0.2, markers[0].Position.Pitch)
	assert.Empty(t, f.changes)
}

func TestSeedInitial_OncePerSession(t *testing.T) {
	f := newFixture(t)
	a := core.NewPosition(1.0, 0.2)
	b := core.NewPosition(-1.0, 0.0)

	require.NoError(t, f.ctrl.SeedInitial(f.session, &a))
	require.NoError(t, f.ctrl.SeedInitial(f.session, &b))

	d, _ := f.ctrl.Draft()
	assert.Equal(t, a, d.Position)

	// a new session can be seeded again
	s2 := f.open(t, core.PanoramaResource{ID: "N2", ImageURL: "/img/n2.jpg"})
	require.NoError(t, f.ctrl.SeedInitial(s2, &b))
	d, _ = f.ctrl.Draft()
	assert.Equal(t, b, d.Position)
	assert.Empty(t, f.changes)
}

func TestSeedInitial_NilIsNoop(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.SeedInitial(f.session, nil))
	assert.Empty(t, f.eng.Last().Markers())
}

func TestClearDraft(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetDraft(f.session, core.NewPosition(0.5, -0.1)))

	require.NoError(t, f.ctrl.ClearDraft(f.session))

	assert.Empty(t, f.eng.Last().Markers())
	require.Len(t, f.changes, 2)
	assert.Equal(t, core.PositionChange{Position: core.Origin, Cleared: true}, f.changes[1])
	_, ok := f.ctrl.Draft()
	assert.False(t, ok)

	assert.ErrorIs(t, f.ctrl.ClearDraft(f.session), ErrNoDraft)
	assert.Len(t, f.changes, 2)
}

func TestDraftStateFollowsSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetDraft(f.session, core.NewPosition(0.5, -0.1)))

	s2 := f.open(t, core.PanoramaResource{ID: "N2", ImageURL: "/img/n2.jpg"})
	assert.ErrorIs(t, f.ctrl.ClearDraft(s2), ErrNoDraft)

	f.ctrl.Reset()
	_, ok := f.ctrl.Draft()
	assert.False(t, ok)
}

func TestLayer_ShowReplaces(t *testing.T) {
	f := newFixture(t)
	layer := NewLayer(DefaultLayerSpec, nil)

	n, err := layer.Show(f.session, []core.PropertyMarker{
		{PropertyID: "1", Title: "Loft", Position: core.NewPosition(0.2, 0)},
		{PropertyID: "2", Position: core.NewPosition(-0.2, 0.1)},
		{PropertyID: "bad", Position: core.NewPosition(9, 9)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"property:1", "property:2"}, f.eng.Last().MarkerIDs())

	for _, m := range f.eng.Last().Markers() {
		if m.ID == "property:1" {
			assert.Equal(t, "Loft", m.Spec.Tooltip)
		}
	}

	n, err = layer.Show(f.session, []core.PropertyMarker{{PropertyID: "3", Position: core.Origin}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"property:3"}, f.eng.Last().MarkerIDs())
	require.Len(t, layer.Markers(), 1)
	assert.Equal(t, "3", layer.Markers()[0].PropertyID)
}

func TestLayer_DraftIndependent(t *testing.T) {
	f := newFixture(t)
	layer := NewLayer(DefaultLayerSpec, nil)

	_, err := layer.Show(f.session, []core.PropertyMarker{{PropertyID: "1", Position: core.Origin}})
	require.NoError(t, err)
	require.NoError(t, f.ctrl.SetDraft(f.session, core.NewPosition(0.3, 0)))
	require.NoError(t, f.ctrl.SetDraft(f.session, core.NewPosition(0.4, 0)))
	require.NoError(t, f.ctrl.ClearDraft(f.session))

	assert.Equal(t, []string{"property:1"}, f.eng.Last().MarkerIDs())

	layer.Clear(f.session)
	assert.Empty(t, f.eng.Last().MarkerIDs())
}

func TestLayer_ClosedSession(t *testing.T) {
	f := newFixture(t)
	layer := NewLayer(DefaultLayerSpec, nil)
	f.mgr.Close(f.session)

	_, err := layer.Show(f.session, []core.PropertyMarker{{PropertyID: "1"}})
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Empty(t, layer.Markers())
}
