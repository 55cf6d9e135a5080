// Package headless is an engine that keeps the scene in memory. It verifies the
// panorama image through a Loader, reports ready or error asynchronously, and
// accepts simulated clicks and camera moves from a driver such as the console.
package headless

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/estate360/positioner/internal/channel"
	"github.com/estate360/positioner/internal/engine"
	"github.com/estate360/positioner/pkg/core"
)

// ErrDestroyed is returned by marker operations on a destroyed handle.
var ErrDestroyed = errors.New("engine handle destroyed")

// Loader fetches or verifies a panorama image.
type Loader interface {
	ProbeImage(ctx context.Context, imageURL string) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, imageURL string) error

func (f LoaderFunc) ProbeImage(ctx context.Context, imageURL string) error {
	return f(ctx, imageURL)
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventBuffer sets the per-handle event queue size.
func WithEventBuffer(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.bufferSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine creates headless handles.
type Engine struct {
	loader     Loader
	logger     *slog.Logger
	bufferSize int

	mu      sync.Mutex
	current *Handle
}

var _ engine.Engine = (*Engine)(nil)

// New returns an engine. A nil loader makes every image load succeed.
func New(loader Loader, opts ...Option) *Engine {
	e := &Engine{
		loader:     loader,
		logger:     slog.Default(),
		bufferSize: 64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create starts loading imageURL and returns immediately.
func (e *Engine) Create(ctx context.Context, container, imageURL string, opts engine.Options) (engine.Handle, error) {
	if imageURL == "" {
		return nil, fmt.Errorf("create %s: empty image url", container)
	}

	loadCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		container: container,
		imageURL:  imageURL,
		opts:      opts,
		logger:    e.logger.With("container", container),
		listeners: make(map[engine.EventName]map[engine.ListenerID]engine.Listener),
		events:    channel.New[delivery](e.bufferSize),
		cancel:    cancel,
		pumpDone:  make(chan struct{}),
	}
	go h.pump()
	go h.load(loadCtx, e.loader)

	e.mu.Lock()
	e.current = h
	e.mu.Unlock()
	return h, nil
}

// Current returns the most recently created handle that is still alive.
func (e *Engine) Current() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.current.Destroyed() {
		return nil
	}
	return e.current
}

// delivery is a queued event. A non-zero target restricts it to one listener.
type delivery struct {
	ev     engine.Event
	target engine.ListenerID
}

// Handle is one headless viewer. Ready is sticky: a ready listener added after
// the image loaded still receives one ready event.
type Handle struct {
	container string
	imageURL  string
	opts      engine.Options
	logger    *slog.Logger

	mu        sync.Mutex
	nextID    engine.ListenerID
	listeners map[engine.EventName]map[engine.ListenerID]engine.Listener
	markers   []engine.MarkerInfo
	camera    engine.Orientation
	loaded    bool
	destroyed bool

	events   channel.Channel[delivery]
	cancel   context.CancelFunc
	pumpDone chan struct{}
}

var _ engine.Handle = (*Handle)(nil)

func (h *Handle) load(ctx context.Context, loader Loader) {
	var err error
	if loader != nil {
		err = loader.ProbeImage(ctx, h.imageURL)
	}
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		h.logger.Warn("panorama load failed", "image", h.imageURL, "error", err)
		h.emit(engine.ErrorEvent(fmt.Errorf("load %s: %w", h.imageURL, err)))
		return
	}
	h.logger.Debug("panorama loaded", "image", h.imageURL)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return
	}
	h.loaded = true
	h.enqueueLocked(delivery{ev: engine.ReadyEvent()})
}

func (h *Handle) emit(ev engine.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enqueueLocked(delivery{ev: ev})
}

func (h *Handle) enqueueLocked(d delivery) bool {
	ev := d.ev
	if h.destroyed {
		return false
	}
	if !h.events.TrySend(d) {
		h.logger.Warn("event queue full, dropping event", "event", ev.Name)
		return false
	}
	return true
}

func (h *Handle) pump() {
	defer close(h.pumpDone)
	for d := range h.events.Receive() {
		if d.target != 0 {
			if fn := h.listener(d.ev.Name, d.target); fn != nil {
				fn(d.ev)
			}
			continue
		}
		for _, fn := range h.snapshot(d.ev.Name) {
			fn(d.ev)
		}
	}
}

func (h *Handle) listener(name engine.EventName, id engine.ListenerID) engine.Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listeners[name][id]
}

func (h *Handle) snapshot(name engine.EventName) []engine.Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	fns := make([]engine.Listener, 0, len(h.listeners[name]))
	for id := engine.ListenerID(1); id <= h.nextID; id++ {
		if fn, ok := h.listeners[name][id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

func (h *Handle) AddEventListener(name engine.EventName, fn engine.Listener) engine.ListenerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return 0
	}
	h.nextID++
	if h.listeners[name] == nil {
		h.listeners[name] = make(map[engine.ListenerID]engine.Listener)
	}
	h.listeners[name][h.nextID] = fn
	if name == engine.EventReady && h.loaded {
		h.enqueueLocked(delivery{ev: engine.ReadyEvent(), target: h.nextID})
	}
	return h.nextID
}

func (h *Handle) RemoveEventListener(name engine.EventName, id engine.ListenerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners[name], id)
}

func (h *Handle) CameraOrientation() engine.Orientation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.camera
}

func (h *Handle) AddMarker(id string, pos engine.Orientation, spec core.RenderSpec) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return ErrDestroyed
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
	if h.destroyed {
		return ErrDestroyed
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
	out := make([]engine.MarkerInfo, len(h.markers))
	copy(out, h.markers)
	return out
}

// Destroy cancels a pending load, drops listeners and markers, and stops the
// event pump. Events still queued are discarded.
func (h *Handle) Destroy() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.destroyed = true
	h.listeners = make(map[engine.EventName]map[engine.ListenerID]engine.Listener)
	h.markers = nil
	h.events.Close()
	h.mu.Unlock()

	h.cancel()
}

// Destroyed reports whether Destroy was called.
func (h *Handle) Destroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

// Loaded reports whether the image finished loading.
func (h *Handle) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded
}

// ImageURL returns the image being shown.
func (h *Handle) ImageURL() string {
	return h.imageURL
}

// LookAt moves the camera. The orientation is stored as given, unnormalized.
func (h *Handle) LookAt(yaw, pitch float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.camera = engine.Orientation{Yaw: yaw, Pitch: pitch}
}

// Click simulates a click on the sphere. Clicks before load are ignored, as a
// real viewer has nothing to click on yet.
func (h *Handle) Click(yaw, pitch float64) bool {
	if !h.Loaded() {
		return false
	}
	return h.emit(engine.ClickEvent(yaw, pitch))
}

// Wait blocks until the event pump stopped after Destroy, or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.pumpDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
