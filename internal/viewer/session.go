package viewer

import (
	"fmt"
	"math"

	"github.com/estate360/positioner/internal/engine"
	"github.com/estate360/positioner/pkg/core"
)

type subscription struct {
	name engine.EventName
	id   engine.ListenerID
}

// Session is one engine instance bound to one panorama. Only the manager,
// the marker controller and the event bridge use it; nothing else holds the
// engine handle.
type Session struct {
	id         string
	generation uint64
	panoramaID string
	imageURL   string
	mgr        *Manager
	handle     engine.Handle

	// guarded by mgr.mu
	ready     bool
	closed    bool
	err       error
	subs      []subscription
	onReady   ReadyFunc
	onFailure FailureFunc
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// PanoramaID returns the id of the panorama the session shows.
func (s *Session) PanoramaID() string { return s.panoramaID }

// ImageURL returns the image the engine was created with.
func (s *Session) ImageURL() string { return s.imageURL }

func (s *Session) Ready() bool {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	return s.ready && !s.closed
}

func (s *Session) Closed() bool {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	return s.closed
}

// Err returns the engine error reported for the session, if any.
func (s *Session) Err() error {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	return s.err
}

func (s *Session) subscribeLocked(name engine.EventName, fn engine.Listener) engine.ListenerID {
	id := s.handle.AddEventListener(name, fn)
	s.subs = append(s.subs, subscription{name: name, id: id})
	return id
}

// Subscribe registers fn for name on the engine. The returned cancel func is
// idempotent; Close removes any subscription still registered.
func (s *Session) Subscribe(name engine.EventName, fn engine.Listener) (cancel func(), err error) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("subscribe %s: %w", name, ErrSessionClosed)
	}
	id := s.subscribeLocked(name, fn)
	return func() { s.unsubscribe(name, id) }, nil
}

func (s *Session) unsubscribe(name engine.EventName, id engine.ListenerID) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	if s.closed {
		return
	}
	for i, sub := range s.subs {
		if sub.name == name && sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			s.handle.RemoveEventListener(name, id)
			return
		}
	}
}

func (s *Session) usableLocked(op string) error {
	if s.closed {
		return fmt.Errorf("%s: %w", op, ErrSessionClosed)
	}
	if !s.ready {
		return fmt.Errorf("%s: %w", op, ErrNotReady)
	}
	return nil
}

// AddMarker draws a marker. The session must be ready.
func (s *Session) AddMarker(id string, pos core.SphericalPosition, spec core.RenderSpec) error {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	if err := s.usableLocked("add marker"); err != nil {
		return err
	}
	return s.handle.AddMarker(id, engine.Orientation{Yaw: pos.Yaw, Pitch: pos.Pitch}, spec)
}

// RemoveMarker removes a marker. The session must be ready.
func (s *Session) RemoveMarker(id string) error {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	if err := s.usableLocked("remove marker"); err != nil {
		return err
	}
	return s.handle.RemoveMarker(id)
}

// Markers returns the markers drawn by the engine, or nil once closed.
func (s *Session) Markers() []engine.MarkerInfo {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.handle.Markers()
}

// HasMarker reports whether the engine currently draws a marker with id.
func (s *Session) HasMarker(id string) bool {
	for _, m := range s.Markers() {
		if m.ID == id {
			return true
		}
	}
	return false
}

// CameraOrientation returns the engine camera. Once closed both angles are
// NaN, which translates to an invalid coordinate rather than the origin.
// Session therefore satisfies engine.CameraReader.
func (s *Session) CameraOrientation() engine.Orientation {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	if s.closed {
		return engine.Orientation{Yaw: math.NaN(), Pitch: math.NaN()}
	}
	return s.handle.CameraOrientation()
}

func (s *Session) String() string {
	return s.panoramaID + "/" + s.id
}
