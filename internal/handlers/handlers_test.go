package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/estate360/positioner/internal/config"
	"github.com/estate360/positioner/internal/dispatcher"
	"github.com/estate360/positioner/internal/engine/headless"
	"github.com/estate360/positioner/internal/logging"
	"github.com/estate360/positioner/internal/positioner"
	"github.com/estate360/positioner/internal/storage/memory"
	"github.com/estate360/positioner/internal/worker"
	"github.com/estate360/positioner/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	panoramas map[string]core.PanoramaResource
	props     map[string][]core.PropertyMarker
	listErr   error
}

func (f *fakeDirectory) FetchPanorama(_ context.Context, id string) (core.PanoramaResource, error) {
	res, ok := f.panoramas[id]
	if !ok {
		return core.PanoramaResource{}, errors.New("not found")
	}
	return res, nil
}

func (f *fakeDirectory) ListProperties(_ context.Context, panoramaID string) ([]core.PropertyMarker, error) {
	return f.props[panoramaID], f.listErr
}

type fixture struct {
	svc     *Service
	worker  *worker.Manager
	backend *memory.Backend
	logs    *logRecorder
}

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (l *logRecorder) write(command, data, level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+command+" "+data)
}

func (l *logRecorder) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

func newFixture(t *testing.T, dir Directory, opts ...positioner.Option) *fixture {
	t.Helper()
	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, backend.Init())

	w := worker.NewManager(worker.Dependencies{}, backend)
	d, err := dispatcher.New[worker.Job]("worker", logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)
	w.RegisterHandlers(d)

	eng := headless.New(headless.LoaderFunc(func(context.Context, string) error { return nil }))
	svc := NewService(Dependencies{
		Engine:     eng,
		Dispatcher: d,
		Worker:     w,
		Directory:  dir,
		Options:    opts,
		Degrees:    true,
	})
	logs := &logRecorder{}
	svc.writeLogFunc = logs.write

	t.Cleanup(func() {
		svc.Close()
		_ = d.Close()
	})
	return &fixture{svc: svc, worker: w, backend: backend, logs: logs}
}

func (f *fixture) run(t *testing.T, line string) string {
	t.Helper()
	out, err := f.svc.Execute(line)
	require.NoError(t, err, line)
	return out
}

func (f *fixture) waitFor(t *testing.T, kind core.DisplayKind) {
	t.Helper()
	require.Eventually(t, func() bool {
		out, err := f.svc.Execute("status")
		return err == nil && strings.HasPrefix(out, "["+string(kind)+"]")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestExecute_Empty(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.svc.Execute("   ")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestExecute_UnknownCommand(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Execute("jump")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestExecute_Quit(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Execute("quit")
	assert.ErrorIs(t, err, ErrQuit)
}

func TestExecute_UnterminatedQuote(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Execute(`open p-1 N1 /img/n1.jpg "Harbor`)
	assert.Error(t, err)
}

func TestCommandsWithoutSession(t *testing.T) {
	f := newFixture(t, nil)
	for _, line := range []string{"status", "center", "request", "cancel", "delete", "place 0.1,0.2", "click 0.1,0.2", "camera 0,0"} {
		_, err := f.svc.Execute(line)
		assert.ErrorIs(t, err, ErrNoSession, line)
	}
}

func TestUsageErrors(t *testing.T) {
	f := newFixture(t, nil)
	for _, line := range []string{"open", "open p-1", "open p-1 N1", "place", "click", "camera 1 2"} {
		_, err := f.svc.Execute(line)
		assert.ErrorIs(t, err, ErrUsage, line)
	}
}

func TestPlaceAndDelete_ReachStorage(t *testing.T) {
	f := newFixture(t, nil)

	out := f.run(t, `open p-1 N1 /img/n1.jpg "Harbor view"`)
	assert.Contains(t, out, "opened N1 for p-1")
	f.waitFor(t, core.DisplayUnplaced)

	out = f.run(t, "place 90deg,0")
	assert.True(t, strings.HasPrefix(out, "[placed]"), out)
	assert.Contains(t, out, "yaw 90.0°")

	require.Eventually(t, func() bool { return f.worker.Saved() == 1 }, time.Second, 5*time.Millisecond)
	stored, err := f.backend.ListPlacements("N1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "p-1", stored[0].PropertyID)

	out = f.run(t, "delete")
	assert.True(t, strings.HasPrefix(out, "[unplaced]"), out)
	require.Eventually(t, func() bool { return f.worker.Cleared() == 1 }, time.Second, 5*time.Millisecond)
	stored, err = f.backend.ListPlacements("N1")
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.True(t, f.logs.contains("Opened panorama N1 for property p-1"))
}

func TestClickPlacement(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t, "open p-1 N1 /img/n1.jpg")
	f.waitFor(t, core.DisplayUnplaced)

	out := f.run(t, "request")
	assert.True(t, strings.HasPrefix(out, "[awaiting-placement]"), out)

	assert.Equal(t, "click sent", f.run(t, "click 0.5,0.1"))
	f.waitFor(t, core.DisplayPlaced)
	require.Eventually(t, func() bool { return f.worker.Saved() == 1 }, time.Second, 5*time.Millisecond)
}

// holdHandler blocks the first record with the given message until release
// is closed.
type holdHandler struct {
	msg     string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newHoldHandler(msg string) *holdHandler {
	return &holdHandler{msg: msg, entered: make(chan struct{}), release: make(chan struct{})}
}

func (h *holdHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *holdHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Message == h.msg {
		h.once.Do(func() {
			close(h.entered)
			<-h.release
		})
	}
	return nil
}

func (h *holdHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *holdHandler) WithGroup(string) slog.Handler      { return h }

func TestClickInFlightDuringOpen_SavedWhereMade(t *testing.T) {
	hold := newHoldHandler("draft placed")
	f := newFixture(t, nil, positioner.WithLogger(slog.New(hold)))
	f.run(t, "open p-1 N1 /img/n1.jpg")
	f.waitFor(t, core.DisplayUnplaced)
	f.run(t, "request")
	assert.Equal(t, "click sent", f.run(t, "click 0.5,0.1"))

	select {
	case <-hold.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("click never reached the draft")
	}

	opened := make(chan error, 1)
	go func() {
		_, err := f.svc.Execute("open p-2 N2 /img/n2.jpg")
		opened <- err
	}()
	time.Sleep(50 * time.Millisecond)
	close(hold.release)
	require.NoError(t, <-opened)

	require.Eventually(t, func() bool { return f.worker.Saved() == 1 }, 2*time.Second, 5*time.Millisecond)
	onN1, err := f.backend.ListPlacements("N1")
	require.NoError(t, err)
	require.Len(t, onN1, 1)
	assert.Equal(t, "p-1", onN1[0].PropertyID)
	assert.InDelta(t, 0.5, onN1[0].Position.Yaw, 1e-9)
	assert.InDelta(t, 0.1, onN1[0].Position.Pitch, 1e-9)

	onN2, err := f.backend.ListPlacements("N2")
	require.NoError(t, err)
	assert.Empty(t, onN2)
	_, ok := f.worker.Cache().Get("p-2")
	assert.False(t, ok)
}

func TestCameraAndCenter(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t, "open p-1 N1 /img/n1.jpg")
	f.waitFor(t, core.DisplayUnplaced)

	assert.Equal(t, "camera at yaw 45.0° pitch 10.0°", f.run(t, "camera 45deg,10deg"))
	out := f.run(t, "center")
	assert.Contains(t, out, "yaw 45.0° pitch 10.0°")
}

func TestCancelOutsidePlacementMode(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t, "open p-1 N1 /img/n1.jpg")
	f.waitFor(t, core.DisplayUnplaced)

	_, err := f.svc.Execute("cancel")
	assert.Error(t, err)
}

func TestReopenSeedsStoredPosition(t *testing.T) {
	f := newFixture(t, nil)
	f.run(t, "open p-1 N1 /img/n1.jpg")
	f.waitFor(t, core.DisplayUnplaced)
	f.run(t, "place 30deg,0")
	require.Eventually(t, func() bool { return f.worker.Saved() == 1 }, time.Second, 5*time.Millisecond)

	f.run(t, "open p-2 N1 /img/n1.jpg")
	f.waitFor(t, core.DisplayUnplaced)
	assert.Contains(t, f.run(t, "props"), "p-1")

	f.run(t, "open p-1 N1 /img/n1.jpg")
	f.waitFor(t, core.DisplayPlaced)
	assert.Contains(t, f.run(t, "status"), "yaw 30.0°")
	assert.Equal(t, "no other properties", f.run(t, "props"))
	// Seeding the stored position does not save it again.
	assert.Equal(t, 1, f.worker.Saved())
}

func TestOpenFromDirectory(t *testing.T) {
	dir := &fakeDirectory{
		panoramas: map[string]core.PanoramaResource{
			"hood-1": {ID: "N1", ImageURL: "/img/n1.jpg", Caption: "Harbor"},
		},
		props: map[string][]core.PropertyMarker{
			"N1": {
				{PropertyID: "p-9", Title: "Lighthouse", Position: core.NewPosition(1, 0)},
				{PropertyID: "p-1", Title: "Self", Position: core.NewPosition(2, 0)},
			},
		},
	}
	f := newFixture(t, dir)

	out := f.run(t, "open p-1 hood-1")
	assert.Contains(t, out, "opened N1 for p-1 (1 other properties)")
	props := f.run(t, "props")
	assert.Contains(t, props, "p-9\tLighthouse")
	assert.NotContains(t, props, "Self")

	_, err := f.svc.Execute("open p-1 missing")
	assert.Error(t, err)
	assert.True(t, f.logs.contains("Error fetching panorama for missing"))
}

func TestOpenFromDirectory_ListFailureIsLogged(t *testing.T) {
	dir := &fakeDirectory{
		panoramas: map[string]core.PanoramaResource{"hood-1": {ID: "N1", ImageURL: "/img/n1.jpg"}},
		listErr:   errors.New("boom"),
	}
	f := newFixture(t, dir)

	f.run(t, "open p-1 hood-1")
	assert.True(t, f.logs.contains("Error listing properties of N1"))
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, "saved 0, cleared 0, failed 0", f.run(t, "stats"))

	svc := NewService(Dependencies{})
	out, err := svc.Execute("stats")
	require.NoError(t, err)
	assert.Equal(t, "no worker", out)
}

func TestLogAttrs(t *testing.T) {
	f := newFixture(t, nil)
	assert.Nil(t, f.svc.LogAttrs())

	f.run(t, "open p-1 N1 /img/n1.jpg")
	attrs := f.svc.LogAttrs()
	require.Len(t, attrs, 2)
	assert.Equal(t, "p-1", attrs[0].Value.String())
	assert.Equal(t, "N1", attrs[1].Value.String())
}

func TestDisplay(t *testing.T) {
	f := newFixture(t, nil)
	_, ok := f.svc.Display()
	assert.False(t, ok)

	f.run(t, "open p-1 N1 /img/n1.jpg")
	f.waitFor(t, core.DisplayUnplaced)
	ds, ok := f.svc.Display()
	require.True(t, ok)
	assert.Equal(t, core.DisplayUnplaced, ds.Kind)
}

func TestFormatDisplay(t *testing.T) {
	ds := core.DisplayState{
		Kind:   core.DisplayPlaced,
		Status: "Property placed.",
		Yaw:    "1.00",
		Pitch:  "0.00",
		Notice: "careful",
		Controls: core.Controls{
			RequestPlacement: true,
			PlaceAtCenter:    true,
			Delete:           true,
		},
	}
	assert.Equal(t, "[placed] Property placed. | yaw 1.00 pitch 0.00 | careful | request center delete", FormatDisplay(ds))
	assert.Equal(t, "[loading] Loading", FormatDisplay(core.DisplayState{Kind: core.DisplayLoading, Status: "Loading"}))
}
