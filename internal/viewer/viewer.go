// Package viewer owns the rendering-engine session of the panorama being
// shown. At most one session is live at a time; opening a different panorama
// tears the previous one down before the engine is asked for a new one.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/estate360/positioner/internal/engine"
	"github.com/estate360/positioner/pkg/core"
	"github.com/google/uuid"
)

var (
	// ErrMissingPanorama is returned by Open for a resource without an image.
	ErrMissingPanorama = errors.New("missing panorama")
	// ErrEngineCreate wraps engine failures before the session became ready.
	ErrEngineCreate = errors.New("engine create failed")
	// ErrStaleEvent marks an event that arrived for a superseded session.
	ErrStaleEvent = errors.New("stale event ignored")
	// ErrSessionClosed is returned by session operations after Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrNotReady is returned by marker operations before the session is ready.
	ErrNotReady = errors.New("session not ready")
)

// ReadyFunc is called once when a session's engine reports ready.
type ReadyFunc func(*Session)

// FailureFunc is called when the engine reports an error for a live session.
type FailureFunc func(*Session, error)

// OpenOption configures one Open call.
type OpenOption func(*openConfig)

type openConfig struct {
	onFailure FailureFunc
}

// OnFailure registers a callback for engine errors. The error wraps
// ErrEngineCreate when it happened before ready.
func OnFailure(fn FailureFunc) OpenOption {
	return func(c *openConfig) {
		c.onFailure = fn
	}
}

// Config holds what the manager passes to the engine on every Create.
type Config struct {
	Container string
	Options   engine.Options
}

// Option configures a Manager.
type Option func(*Manager)

// WithContext sets the context passed to the engine's Create.
func WithContext(ctx context.Context) Option {
	return func(m *Manager) {
		m.ctx = ctx
	}
}

// WithConfig sets the container name and engine options.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

// Manager creates, tracks and destroys viewer sessions.
type Manager struct {
	eng    engine.Engine
	cfg    Config
	ctx    context.Context
	logger *slog.Logger

	mu         sync.Mutex
	current    *Session
	generation uint64
}

// NewManager returns a manager creating sessions on eng.
func NewManager(eng engine.Engine, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		eng:    eng,
		cfg:    Config{Container: "panorama-viewer"},
		ctx:    context.Background(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open returns a session for res. A live session for the same panorama id is
// returned as-is: if it is still pending, onReady replaces the callback given
// to the earlier Open. Any other live session is closed first. A session whose
// engine failed is replaced by a fresh one.
func (m *Manager) Open(res core.PanoramaResource, onReady ReadyFunc, opts ...OpenOption) (*Session, error) {
	cfg := openConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.current; cur != nil && cur.panoramaID == res.ID && res.ImageURL != "" && cur.err == nil {
		if !cur.ready {
			cur.onReady = onReady
			cur.onFailure = cfg.onFailure
			m.logger.Debug("open superseded pending callback", "session", cur.id, "panorama", res.ID)
		}
		return cur, nil
	}

	if m.current != nil {
		m.closeLocked(m.current)
	}

	if res.ImageURL == "" {
		m.logger.Warn("panorama has no image", "panorama", res.ID)
		return nil, fmt.Errorf("%w: %q", ErrMissingPanorama, res.ID)
	}

	m.generation++
	s := &Session{
		id:         uuid.NewString(),
		generation: m.generation,
		panoramaID: res.ID,
		imageURL:   res.ImageURL,
		mgr:        m,
		onReady:    onReady,
		onFailure:  cfg.onFailure,
	}

	engineOpts := m.cfg.Options
	if engineOpts.Caption == "" {
		engineOpts.Caption = res.Caption
	}
	h, err := m.eng.Create(m.ctx, m.cfg.Container, res.ImageURL, engineOpts)
	if err != nil {
		m.logger.Error("engine create failed", "panorama", res.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrEngineCreate, err)
	}
	s.handle = h
	s.subscribeLocked(engine.EventReady, func(engine.Event) { m.handleReady(s) })
	s.subscribeLocked(engine.EventError, func(ev engine.Event) { m.handleError(s, ev.Err) })

	m.current = s
	m.logger.Info("viewer session opened", "session", s.id, "panorama", res.ID, "image", res.ImageURL)
	return s, nil
}

// Close destroys the session's engine handle and drops every listener it
// registered. It is a no-op for nil or already closed sessions.
func (m *Manager) Close(s *Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(s)
}

func (m *Manager) closeLocked(s *Session) {
	if s.closed {
		return
	}
	s.closed = true
	for _, sub := range s.subs {
		s.handle.RemoveEventListener(sub.name, sub.id)
	}
	s.subs = nil
	s.handle.Destroy()
	if m.current == s {
		m.current = nil
	}
	m.logger.Info("viewer session closed", "session", s.id, "panorama", s.panoramaID)
}

// Current returns the live session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// staleLocked reports whether an event for s must be ignored.
func (m *Manager) staleLocked(s *Session) bool {
	return s.closed || m.current != s || s.generation != m.generation
}

func (m *Manager) handleReady(s *Session) {
	m.mu.Lock()
	if m.staleLocked(s) {
		m.mu.Unlock()
		m.logger.Debug(ErrStaleEvent.Error(), "event", engine.EventReady, "session", s.id, "panorama", s.panoramaID)
		return
	}
	if s.ready || s.err != nil {
		m.mu.Unlock()
		return
	}
	s.ready = true
	cb := s.onReady
	m.mu.Unlock()

	m.logger.Info("viewer session ready", "session", s.id, "panorama", s.panoramaID)
	if cb != nil {
		cb(s)
	}
}

func (m *Manager) handleError(s *Session, cause error) {
	if cause == nil {
		cause = errors.New("unknown engine error")
	}
	m.mu.Lock()
	if m.staleLocked(s) {
		m.mu.Unlock()
		m.logger.Debug(ErrStaleEvent.Error(), "event", engine.EventError, "session", s.id, "error", cause)
		return
	}
	err := cause
	if !s.ready {
		err = fmt.Errorf("%w: %w", ErrEngineCreate, cause)
	}
	if s.err == nil {
		s.err = err
	}
	cb := s.onFailure
	m.mu.Unlock()

	m.logger.Error("viewer engine error", "session", s.id, "panorama", s.panoramaID, "error", err)
	if cb != nil {
		cb(s, err)
	}
}
