// Package enginetest provides a deterministic in-memory engine for tests.
// Events are delivered only when the test fires them.
package enginetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/estate360/positioner/internal/engine"
	"github.com/estate360/positioner/internal/queue"
	"github.com/estate360/positioner/pkg/core"
)

// Engine records every Create call.
type Engine struct {
	mu        sync.Mutex
	handles   []*Handle
	CreateErr error
}

var _ engine.Engine = (*Engine)(nil)

// New returns an empty fake engine.
func New() *Engine {
	return &Engine{}
}

// Create returns a new fake handle, or CreateErr when set.
func (e *Engine) Create(_ context.Context, container, imageURL string, opts engine.Options) (engine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}
	h := &Handle{
		Container: container,
		ImageURL:  imageURL,
		Opts:      opts,
		listeners: make(map[engine.EventName]map[engine.ListenerID]engine.Listener),
		pending:   queue.New[queuedEvent](),
	}
	e.handles = append(e.handles, h)
	return h, nil
}

// Handles returns every handle created so far, oldest first.
func (e *Engine) Handles() []*Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Handle, len(e.handles))
	copy(out, e.handles)
	return out
}

// CreateCount returns the number of successful Create calls.
func (e *Engine) CreateCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

// Last returns the most recently created handle, or nil.
func (e *Engine) Last() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.handles) == 0 {
		return nil
	}
	return e.handles[len(e.handles)-1]
}

// Live returns the handles that have not been destroyed.
func (e *Engine) Live() []*Handle {
	var live []*Handle
	for _, h := range e.Handles() {
		if !h.Destroyed() {
			live = append(live, h)
		}
	}
	return live
}

type queuedEvent struct {
	ev        engine.Event
	listeners []engine.Listener
}

// Handle is a fake engine instance. Calls made after Destroy are recorded as
// misuse instead of panicking so tests can assert none happened.
type Handle struct {
	Container string
	ImageURL  string
	Opts      engine.Options

	mu        sync.Mutex
	nextID    engine.ListenerID
	listeners map[engine.EventName]map[engine.ListenerID]engine.Listener
	markers   []engine.MarkerInfo
	camera    engine.Orientation
	destroyed bool
	misuse    []string
	pending   *queue.Queue[queuedEvent]
}

var _ engine.Handle = (*Handle)(nil)

func (h *Handle) checkLive(op string) bool {
	if h.destroyed {
		h.misuse = append(h.misuse, op)
		return false
	}
	return true
}

func (h *Handle) AddEventListener(name engine.EventName, fn engine.Listener) engine.ListenerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.checkLive("AddEventListener") {
		return 0
	}
	h.nextID++
	if h.listeners[name] == nil {
		h.listeners[name] = make(map[engine.ListenerID]engine.Listener)
	}
	h.listeners[name][h.nextID] = fn
	return h.nextID
}

func (h *Handle) RemoveEventListener(name engine.EventName, id engine.ListenerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.checkLive("RemoveEventListener") {
		return
	}
	delete(h.listeners[name], id)
}

func (h *Handle) CameraOrientation() engine.Orientation {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkLive("CameraOrientation")
	return h.camera
}

func (h *Handle) AddMarker(id string, pos engine.Orientation, spec core.RenderSpec) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.checkLive("AddMarker") {
		return fmt.Errorf("handle destroyed")
	}
	for _, m := range h.markers {
		if m.ID == id {
			return fmt.Errorf("marker %q already exists", id)
		}
	}
	h.markers = append(h.markers, engine.MarkerInfo{ID: id, Position: pos, Spec: spec})
	return nil
}

func (h *Handle) RemoveMarker(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.checkLive("RemoveMarker") {
		return fmt.Errorf("handle destroyed")
	}
	for i, m := range h.markers {
		if m.ID == id {
			h.markers = append(h.markers[:i], h.markers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("marker %q not found", id)
}

func (h *Handle) Markers() []engine.MarkerInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkLive("Markers")
	out := make([]engine.MarkerInfo, len(h.markers))
	copy(out, h.markers)
	return out
}

func (h *Handle) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		h.misuse = append(h.misuse, "Destroy")
		return
	}
	h.destroyed = true
	h.markers = nil
	h.listeners = make(map[engine.EventName]map[engine.ListenerID]engine.Listener)
}

// SetCamera sets the orientation reported by CameraOrientation.
func (h *Handle) SetCamera(yaw, pitch float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.camera = engine.Orientation{Yaw: yaw, Pitch: pitch}
}

// Fire delivers ev synchronously to the listeners registered right now.
// Nothing is delivered once the handle is destroyed.
func (h *Handle) Fire(ev engine.Event) {
	for _, fn := range h.snapshot(ev.Name) {
		fn(ev)
	}
}

// FireReady fires EventReady.
func (h *Handle) FireReady() { h.Fire(engine.ReadyEvent()) }

// FireClick fires EventClick.
func (h *Handle) FireClick(yaw, pitch float64) { h.Fire(engine.ClickEvent(yaw, pitch)) }

// FireError fires EventError.
func (h *Handle) FireError(err error) { h.Fire(engine.ErrorEvent(err)) }

// Enqueue captures the current listeners for ev without delivering it. Flush
// later delivers to those listeners even if they were removed or the handle
// destroyed in between, the way real engines deliver already-queued events.
func (h *Handle) Enqueue(ev engine.Event) {
	h.pending.Push(queuedEvent{ev: ev, listeners: h.snapshot(ev.Name)})
}

// Flush delivers every queued event.
func (h *Handle) Flush() {
	for _, q := range h.pending.Drain() {
		for _, fn := range q.listeners {
			fn(q.ev)
		}
	}
}

func (h *Handle) snapshot(name engine.EventName) []engine.Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]engine.ListenerID, 0, len(h.listeners[name]))
	for id := range h.listeners[name] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]engine.Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.listeners[name][id])
	}
	return fns
}

// ListenerCount returns the number of listeners registered for name.
func (h *Handle) ListenerCount(name engine.EventName) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[name])
}

// Destroyed reports whether Destroy was called.
func (h *Handle) Destroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

// Misuse lists the operations attempted on the handle after Destroy.
func (h *Handle) Misuse() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.misuse))
	copy(out, h.misuse)
	return out
}

// MarkerIDs returns the ids of the markers currently drawn.
func (h *Handle) MarkerIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.markers))
	for _, m := range h.markers {
		ids = append(ids, m.ID)
	}
	return ids
}
