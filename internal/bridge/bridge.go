// Package bridge turns engine events of the live viewer session into
// positioning callbacks and guarantees none of them fire after Detach.
package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/estate360/positioner/internal/dispatcher"
	"github.com/estate360/positioner/internal/engine"
	"github.com/estate360/positioner/internal/geo"
	"github.com/estate360/positioner/internal/viewer"
	"github.com/estate360/positioner/pkg/core"
)

const (
	cmdReady = ":ENGINE:READY:"
	cmdClick = ":ENGINE:CLICK:"
)

// ModeReader reports the positioning mode at the time an event is handled.
type ModeReader interface {
	Mode() core.Mode
}

// Handlers receive translated events. Either may be nil.
type Handlers struct {
	// Ready runs when the engine reports ready for the attached session.
	Ready func(s *viewer.Session)
	// Click runs for clicks while a placement is awaited. err wraps
	// geo.ErrInvalidCoordinate for malformed or non-finite clicks.
	Click func(s *viewer.Session, pos core.SphericalPosition, err error)
}

// Bridge holds at most one attachment at a time.
type Bridge struct {
	modes  ModeReader
	logger dispatcher.Logger

	mu  sync.Mutex
	att *attachment
}

type attachment struct {
	session  *viewer.Session
	handlers Handlers
	alive    atomic.Bool
	armed    atomic.Bool
	cancels  []func()
	disp     *dispatcher.Dispatcher[engine.Event]
}

// New returns a bridge. modes may be nil, in which case every click after
// ready is forwarded.
func New(modes ModeReader, logger dispatcher.Logger) *Bridge {
	return &Bridge{modes: modes, logger: logger}
}

// Attach subscribes to ready and click events of s, detaching any previous
// session first. Clicks are dropped until s is ready.
func (b *Bridge) Attach(s *viewer.Session, h Handlers) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detachLocked()

	disp, err := dispatcher.New[engine.Event]("bridge", b.logger)
	if err != nil {
		return fmt.Errorf("attach %s: %w", s, err)
	}
	a := &attachment{session: s, handlers: h, disp: disp}
	a.alive.Store(true)

	disp.Register(cmdReady, func(e dispatcher.Event[engine.Event]) (any, error) {
		return nil, b.onReady(a)
	}, dispatcher.Logged())
	disp.Register(cmdClick, func(e dispatcher.Event[engine.Event]) (any, error) {
		return nil, b.onClick(a, e.Data)
	}, dispatcher.Logged())

	routes := []struct {
		name engine.EventName
		cmd  string
	}{
		{engine.EventReady, cmdReady},
		{engine.EventClick, cmdClick},
	}
	for _, r := range routes {
		cmd := r.cmd
		cancel, err := s.Subscribe(r.name, func(ev engine.Event) { b.deliver(a, cmd, ev) })
		if err != nil {
			a.close()
			return fmt.Errorf("attach %s: %w", s, err)
		}
		a.cancels = append(a.cancels, cancel)
	}

	if s.Ready() {
		a.armed.Store(true)
	}
	b.att = a
	b.logger.Debug("bridge attached", "session", s.ID(), "panorama", s.PanoramaID())
	return nil
}

// Detach cancels the current attachment. Events the engine already queued for
// it are discarded when they arrive. Safe to call repeatedly.
func (b *Bridge) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detachLocked()
}

func (b *Bridge) detachLocked() {
	if b.att == nil {
		return
	}
	a := b.att
	b.att = nil
	a.close()
	b.logger.Debug("bridge detached", "session", a.session.ID())
}

func (a *attachment) close() {
	a.alive.Store(false)
	for _, cancel := range a.cancels {
		cancel()
	}
	a.cancels = nil
	_ = a.disp.Close()
}

// Attached returns the attached session, or nil.
func (b *Bridge) Attached() *viewer.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.att == nil {
		return nil
	}
	return b.att.session
}

func (b *Bridge) deliver(a *attachment, cmd string, ev engine.Event) {
	if !a.alive.Load() {
		b.logger.Debug(viewer.ErrStaleEvent.Error(), "event", ev.Name, "session", a.session.ID())
		return
	}
	if _, err := a.disp.Dispatch(dispatcher.NewEvent(cmd, ev)); err != nil {
		b.logger.Debug("event not handled", "event", ev.Name, "session", a.session.ID(), "error", err)
	}
}

func (b *Bridge) onReady(a *attachment) error {
	if !a.alive.Load() {
		b.logger.Debug(viewer.ErrStaleEvent.Error(), "event", engine.EventReady, "session", a.session.ID())
		return nil
	}
	if a.armed.Swap(true) {
		return nil
	}
	if a.handlers.Ready != nil {
		a.handlers.Ready(a.session)
	}
	return nil
}

func (b *Bridge) onClick(a *attachment, ev engine.Event) error {
	if !a.alive.Load() {
		b.logger.Debug(viewer.ErrStaleEvent.Error(), "event", ev.Name, "session", a.session.ID())
		return nil
	}
	if !a.armed.Load() {
		b.logger.Debug("click before ready dropped", "session", a.session.ID())
		return nil
	}
	if b.modes != nil && b.modes.Mode() != core.ModeAwaitingClick {
		return nil
	}
	pos, err := geo.FromClick(ev)
	if a.handlers.Click != nil {
		a.handlers.Click(a.session, pos, err)
	}
	return nil
}
