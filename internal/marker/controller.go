// Package marker owns the draft marker of the live viewer session and the
// read-only layer of already-placed property markers.
package marker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/estate360/positioner/internal/geo"
	"github.com/estate360/positioner/internal/viewer"
	"github.com/estate360/positioner/pkg/core"
)

var (
	// ErrSessionClosed is returned for operations on a closed or missing session.
	ErrSessionClosed = viewer.ErrSessionClosed
	// ErrNoDraft is returned by ClearDraft when there is nothing to clear.
	ErrNoDraft = errors.New("no draft marker")
)

// NotifyFunc receives every user-visible draft change.
type NotifyFunc func(core.PositionChange)

// DefaultDraftSpec is how the draft marker is drawn unless configured otherwise.
var DefaultDraftSpec = core.RenderSpec{
	Image:   "pin-red.png",
	Size:    32,
	Tooltip: "New position",
	Anchor:  "bottom center",
}

// Controller adds, replaces and removes the single draft marker.
type Controller struct {
	spec   core.RenderSpec
	notify NotifyFunc
	logger *slog.Logger

	mu      sync.Mutex
	session *viewer.Session
	draft   *core.DraftMarker
	seeded  bool
}

// NewController returns a controller drawing the draft with spec. notify may
// be nil.
func NewController(spec core.RenderSpec, notify NotifyFunc, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{spec: spec, notify: notify, logger: logger}
}

// bindLocked forgets draft state that belongs to another session.
func (c *Controller) bindLocked(s *viewer.Session) error {
	if s == nil || s.Closed() {
		c.resetLocked()
		return ErrSessionClosed
	}
	if c.session != s {
		c.resetLocked()
		c.session = s
	}
	return nil
}

func (c *Controller) resetLocked() {
	c.session = nil
	c.draft = nil
	c.seeded = false
}

// SetDraft moves the draft marker to pos, replacing any existing one, and
// notifies the caller.
func (c *Controller) SetDraft(s *viewer.Session, pos core.SphericalPosition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.placeLocked(s, pos); err != nil {
		return err
	}
	if c.notify != nil {
		c.notify(core.PositionChange{Position: pos})
	}
	return nil
}

// SeedInitial draws the caller's stored position once per session without
// notifying. A nil position or a second call for the same session is a no-op.
func (c *Controller) SeedInitial(s *viewer.Session, pos *core.SphericalPosition) error {
	if pos == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.bindLocked(s); err != nil {
		return err
	}
	if c.seeded {
		c.logger.Debug("draft already seeded", "session", s.ID())
		return nil
	}
	c.seeded = true
	return c.placeLocked(s, *pos)
}

func (c *Controller) placeLocked(s *viewer.Session, pos core.SphericalPosition) error {
	if err := c.bindLocked(s); err != nil {
		return fmt.Errorf("set draft: %w", err)
	}
	if !pos.InRange() {
		return fmt.Errorf("set draft: %w: %v", geo.ErrInvalidCoordinate, pos)
	}

	if s.HasMarker(core.DraftMarkerID) {
		if err := s.RemoveMarker(core.DraftMarkerID); err != nil {
			c.logger.Warn("removing previous draft failed", "session", s.ID(), "error", err)
		}
	}
	if err := s.AddMarker(core.DraftMarkerID, pos, c.spec); err != nil {
		c.draft = nil
		c.logger.Error("drawing draft failed", "session", s.ID(), "position", pos, "error", err)
		return fmt.Errorf("set draft: %w", err)
	}

	c.draft = &core.DraftMarker{ID: core.DraftMarkerID, Position: pos, Placed: true}
	c.logger.Debug("draft placed", "session", s.ID(), "yaw", pos.Yaw, "pitch", pos.Pitch)
	return nil
}

// ClearDraft removes the draft marker and notifies the caller with a cleared
// change at the origin.
func (c *Controller) ClearDraft(s *viewer.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.bindLocked(s); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	if c.draft == nil && !s.HasMarker(core.DraftMarkerID) {
		return ErrNoDraft
	}
	if s.HasMarker(core.DraftMarkerID) {
		if err := s.RemoveMarker(core.DraftMarkerID); err != nil {
			c.logger.Error("removing draft failed", "session", s.ID(), "error", err)
			return fmt.Errorf("clear draft: %w", err)
		}
	}
	c.draft = nil
	c.logger.Debug("draft cleared", "session", s.ID())
	if c.notify != nil {
		c.notify(core.PositionChange{Position: core.Origin, Cleared: true})
	}
	return nil
}

// Draft returns the current draft marker.
func (c *Controller) Draft() (core.DraftMarker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return core.DraftMarker{}, false
	}
	return *c.draft, true
}

// Reset drops all state; used when the session closes.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}
