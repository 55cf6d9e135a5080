// Package positioner is the caller-facing facade: it opens the panorama,
// runs the placement interaction and reports every draft change.
package positioner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/estate360/positioner/internal/bridge"
	"github.com/estate360/positioner/internal/engine"
	"github.com/estate360/positioner/internal/geo"
	"github.com/estate360/positioner/internal/marker"
	"github.com/estate360/positioner/internal/mode"
	"github.com/estate360/positioner/internal/surface"
	"github.com/estate360/positioner/internal/viewer"
	"github.com/estate360/positioner/pkg/core"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("positioner closed")

// Positioner serializes engine callbacks and caller operations behind one
// mutex. Caller callbacks always run after the mutex is released.
type Positioner struct {
	logger     *slog.Logger
	onPosition func(core.SphericalPosition)
	onChange   func(core.PositionChange)
	onDisplay  func(core.DisplayState)
	degrees    bool

	viewers *viewer.Manager
	markers *marker.Controller
	layer   *marker.Layer
	modes   *mode.Machine
	bridge  *bridge.Bridge

	mu          sync.Mutex
	resource    core.PanoramaResource
	initial     *core.SphericalPosition
	session     *viewer.Session
	props       []core.PropertyMarker
	err         error
	notice      error
	closed      bool
	pending     []func()
	lastDisplay core.DisplayState
}

// New opens res on eng. initial, when non-nil, is drawn once the engine is
// ready without calling onPositionChange. A deleted marker is reported to
// onPositionChange as the origin.
func New(eng engine.Engine, res core.PanoramaResource, initial *core.SphericalPosition,
	onPositionChange func(core.SphericalPosition), opts ...Option) *Positioner {
	cfg := settings{
		logger:    slog.Default(),
		ctx:       context.Background(),
		viewerCfg: viewer.Config{Container: "panorama-viewer"},
		draftSpec: marker.DefaultDraftSpec,
		layerSpec: marker.DefaultLayerSpec,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.dispLogger == nil {
		cfg.dispLogger = slogDispatcherLogger{cfg.logger}
	}

	p := &Positioner{
		logger:     cfg.logger,
		onPosition: onPositionChange,
		onChange:   cfg.onChange,
		onDisplay:  cfg.onDisplay,
		degrees:    cfg.degrees,
		modes:      mode.New(),
		layer:      marker.NewLayer(cfg.layerSpec, cfg.logger),
	}
	p.viewers = viewer.NewManager(eng, cfg.logger,
		viewer.WithContext(cfg.ctx), viewer.WithConfig(cfg.viewerCfg))
	p.markers = marker.NewController(cfg.draftSpec, p.queueChange, cfg.logger)
	p.bridge = bridge.New(p.modes, cfg.dispLogger)

	_ = p.do(func() error {
		p.resource = res
		p.initial = copyPosition(initial)
		p.openLocked()
		return nil
	})
	return p
}

func copyPosition(pos *core.SphericalPosition) *core.SphericalPosition {
	if pos == nil {
		return nil
	}
	c := *pos
	return &c
}

// do runs fn under the lock, then delivers queued caller callbacks and a
// display update if the display changed.
func (p *Positioner) do(fn func() error) error {
	p.mu.Lock()
	err := fn()
	pending := p.pending
	p.pending = nil
	if p.onDisplay != nil {
		if ds := p.renderLocked(); ds != p.lastDisplay {
			p.lastDisplay = ds
			onDisplay := p.onDisplay
			pending = append(pending, func() { onDisplay(ds) })
		}
	}
	p.mu.Unlock()

	for _, f := range pending {
		f()
	}
	return err
}

// queueChange is the marker controller's notifier; it runs under p.mu.
func (p *Positioner) queueChange(c core.PositionChange) {
	c.PanoramaID = p.resource.ID
	if p.onPosition != nil {
		fn := p.onPosition
		pos := c.Position
		p.pending = append(p.pending, func() { fn(pos) })
	}
	if p.onChange != nil {
		fn := p.onChange
		p.pending = append(p.pending, func() { fn(c) })
	}
}

// teardownLocked detaches the bridge before the session is closed.
func (p *Positioner) teardownLocked() {
	p.bridge.Detach()
	if p.session != nil {
		p.viewers.Close(p.session)
		p.session = nil
	}
	p.modes.Reset()
	p.markers.Reset()
	p.layer.Reset()
	p.err = nil
	p.notice = nil
}

func (p *Positioner) openLocked() {
	p.teardownLocked()

	s, err := p.viewers.Open(p.resource, p.handleReady, viewer.OnFailure(p.handleFailure))
	if err != nil {
		p.err = err
		p.logger.Warn("panorama unavailable", "panorama", p.resource.ID, "error", err)
		return
	}
	p.session = s
	if err := p.bridge.Attach(s, bridge.Handlers{Click: p.handleClick}); err != nil {
		p.err = err
		p.logger.Error("attaching event bridge failed", "session", s.ID(), "error", err)
	}
}

func (p *Positioner) liveLocked(s *viewer.Session) bool {
	return !p.closed && s != nil && s == p.session
}

func (p *Positioner) handleReady(s *viewer.Session) {
	_ = p.do(func() error {
		if !p.liveLocked(s) {
			p.logger.Debug(viewer.ErrStaleEvent.Error(), "event", "ready", "session", s.ID())
			return nil
		}
		p.modes.Ready()
		if err := p.markers.SeedInitial(s, p.initial); err != nil {
			p.logger.Warn("seeding initial position failed", "session", s.ID(), "error", err)
		}
		if len(p.props) > 0 {
			if _, err := p.layer.Show(s, p.props); err != nil {
				p.logger.Warn("showing properties failed", "session", s.ID(), "error", err)
			}
		}
		return nil
	})
}

func (p *Positioner) handleFailure(s *viewer.Session, err error) {
	_ = p.do(func() error {
		if !p.liveLocked(s) {
			return nil
		}
		p.err = err
		p.modes.Reset()
		p.markers.Reset()
		return nil
	})
}

func (p *Positioner) handleClick(s *viewer.Session, pos core.SphericalPosition, clickErr error) {
	_ = p.do(func() error {
		if !p.liveLocked(s) {
			p.logger.Debug(viewer.ErrStaleEvent.Error(), "event", "click", "session", s.ID())
			return nil
		}
		if !p.modes.ConsumeClick() {
			return nil
		}
		if clickErr != nil {
			p.notice = clickErr
			p.logger.Warn("click ignored", "session", s.ID(), "error", clickErr)
			return nil
		}
		if err := p.markers.SetDraft(s, pos); err != nil {
			p.notice = err
			return nil
		}
		p.notice = nil
		return nil
	})
}

func (p *Positioner) readyLocked(op string) error {
	if p.closed {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	if p.err != nil {
		return fmt.Errorf("%s: %w", op, p.err)
	}
	if p.session == nil || p.modes.Mode() == core.ModeIdle {
		return fmt.Errorf("%s: %w", op, mode.ErrNotReady)
	}
	return nil
}

// RequestPlacementMode makes the next click on the sphere place the marker.
func (p *Positioner) RequestPlacementMode() error {
	return p.do(func() error {
		if err := p.readyLocked("request placement"); err != nil {
			return err
		}
		p.notice = nil
		return p.modes.RequestPlacement()
	})
}

// CancelPlacementMode leaves placement mode without placing.
func (p *Positioner) CancelPlacementMode() error {
	return p.do(func() error {
		if err := p.readyLocked("cancel placement"); err != nil {
			return err
		}
		return p.modes.CancelPlacement()
	})
}

// PlaceAtCenter places the marker where the camera points. The mode is
// unchanged.
func (p *Positioner) PlaceAtCenter() error {
	return p.do(func() error {
		if err := p.readyLocked("place at center"); err != nil {
			return err
		}
		if err := p.modes.CanPlaceAtCenter(); err != nil {
			return err
		}
		pos, err := geo.FromCameraOrientation(p.session)
		if err != nil {
			p.notice = err
			return fmt.Errorf("place at center: %w", err)
		}
		if err := p.markers.SetDraft(p.session, pos); err != nil {
			return err
		}
		p.notice = nil
		return nil
	})
}

// PlaceAt places the marker at pos directly, as if the operator had clicked
// there in placement mode. The mode is unchanged.
func (p *Positioner) PlaceAt(pos core.SphericalPosition) error {
	return p.do(func() error {
		if err := p.readyLocked("place"); err != nil {
			return err
		}
		norm, err := geo.Normalize(pos.Yaw, pos.Pitch)
		if err != nil {
			p.notice = err
			return err
		}
		return p.markers.SetDraft(p.session, norm)
	})
}

// DeleteMarker removes the draft marker.
func (p *Positioner) DeleteMarker() error {
	return p.do(func() error {
		if err := p.readyLocked("delete marker"); err != nil {
			return err
		}
		return p.markers.ClearDraft(p.session)
	})
}

// SetPanorama switches to res. The same panorama id keeps the current
// session unless it failed; a different id closes it first.
func (p *Positioner) SetPanorama(res core.PanoramaResource, initial *core.SphericalPosition) error {
	return p.do(func() error {
		if p.closed {
			return ErrClosed
		}
		if p.session != nil && p.err == nil && res.ID == p.resource.ID && res.ImageURL != "" {
			p.resource = res
			return nil
		}
		p.resource = res
		p.initial = copyPosition(initial)
		p.openLocked()
		return p.err
	})
}

// ShowProperties draws saved property markers next to the draft. They are
// redrawn whenever a session for the same panorama becomes ready.
func (p *Positioner) ShowProperties(props []core.PropertyMarker) error {
	return p.do(func() error {
		if p.closed {
			return ErrClosed
		}
		p.props = append([]core.PropertyMarker(nil), props...)
		if p.session == nil || !p.session.Ready() {
			return nil
		}
		_, err := p.layer.Show(p.session, p.props)
		return err
	})
}

// Display returns what the operator currently sees.
func (p *Positioner) Display() core.DisplayState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderLocked()
}

func (p *Positioner) renderLocked() core.DisplayState {
	draft, has := p.markers.Draft()
	return surface.Render(surface.Input{
		Ready:     p.session != nil && p.session.Ready(),
		Mode:      p.modes.Mode(),
		HasMarker: has,
		Position:  draft.Position,
		Err:       p.err,
		Notice:    p.notice,
		Degrees:   p.degrees,
	})
}

// Position returns the draft position, if a marker is placed.
func (p *Positioner) Position() (core.SphericalPosition, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.markers.Draft()
	return d.Position, ok
}

// Mode returns the positioning mode.
func (p *Positioner) Mode() core.Mode {
	return p.modes.Mode()
}

// Panorama returns the resource being shown.
func (p *Positioner) Panorama() core.PanoramaResource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resource
}

// LogAttrs describes the positioner for log records.
func (p *Positioner) LogAttrs() []slog.Attr {
	if !p.mu.TryLock() {
		return []slog.Attr{slog.String("mode", p.modes.Mode().String())}
	}
	defer p.mu.Unlock()
	return []slog.Attr{
		slog.String("panorama", p.resource.ID),
		slog.String("mode", p.modes.Mode().String()),
	}
}

// Close detaches from the engine and destroys the session. It is idempotent.
func (p *Positioner) Close() {
	_ = p.do(func() error {
		if p.closed {
			return nil
		}
		p.teardownLocked()
		p.closed = true
		return nil
	})
}
