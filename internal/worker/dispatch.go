package worker

import (
	"context"
	"fmt"

	"github.com/estate360/positioner/internal/dispatcher"
	"github.com/estate360/positioner/pkg/core"
)

// Commands handled by the worker. Saves and clears share one command so a
// delete never overtakes the save it follows.
const (
	CommandOpenPanorama = ":PANORAMA:OPEN:"
	CommandPlacement    = ":PLACEMENT:"
)

// RegisterHandlers registers all placement handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher[Job]) {
	// Panorama open - sync (caller needs the stored markers back)
	d.Register(CommandOpenPanorama, m.handleOpenPanorama, dispatcher.Logged())

	// Placement changes - buffered
	d.Register(CommandPlacement, m.handlePlacement, dispatcher.Buffered(256), dispatcher.Logged())
}

// SetEvent builds the event that saves a placement.
func SetEvent(p core.Placement) dispatcher.Event[Job] {
	return dispatcher.NewEvent(CommandPlacement, Job{Placement: p})
}

// ClearEvent builds the event that deletes a placement.
func ClearEvent(p core.Placement) dispatcher.Event[Job] {
	return dispatcher.NewEvent(CommandPlacement, Job{Placement: p, Clear: true})
}

// OpenEvent builds the event that registers a panorama.
func OpenEvent(r core.PanoramaResource) dispatcher.Event[Job] {
	return dispatcher.NewEvent(CommandOpenPanorama, Job{Panorama: &r})
}

// handlePlacement runs on the buffer goroutine, so failures are logged here.
func (m *Manager) handlePlacement(e dispatcher.Event[Job]) (any, error) {
	var err error
	if e.Data.Clear {
		_, err = m.handleClearPlacement(e)
	} else {
		_, err = m.handleSetPlacement(e)
	}
	if err != nil {
		m.failed.Inc()
		m.deps.Logger.Error("Placement not persisted",
			"property", e.Data.Placement.PropertyID, "clear", e.Data.Clear, "error", err)
	}
	return nil, err
}

// handleOpenPanorama stores the panorama, warms the cache from storage and
// returns the property markers already placed on it.
func (m *Manager) handleOpenPanorama(e dispatcher.Event[Job]) (any, error) {
	pano := e.Data.Panorama
	if pano == nil || pano.ID == "" {
		return nil, fmt.Errorf("open panorama: missing panorama")
	}

	if err := m.backend.SavePanorama(pano); err != nil {
		return nil, fmt.Errorf("open panorama: %w", err)
	}

	stored, err := m.backend.ListPlacements(pano.ID)
	if err != nil {
		return nil, fmt.Errorf("open panorama: %w", err)
	}
	for _, p := range stored {
		m.deps.Cache.Put(p)
	}

	return m.deps.Cache.OnPanorama(pano.ID), nil
}

func validPlacement(p core.Placement) error {
	if p.PropertyID == "" {
		return fmt.Errorf("%w: missing property id", ErrInvalidPlacement)
	}
	if !p.Position.InRange() {
		return fmt.Errorf("%w: %s", ErrInvalidPlacement, p.Position)
	}
	return nil
}

func (m *Manager) handleSetPlacement(e dispatcher.Event[Job]) (any, error) {
	p := e.Data.Placement
	if err := validPlacement(p); err != nil {
		return nil, err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = e.Timestamp
	}

	if err := m.backend.SavePlacement(&p); err != nil {
		return nil, fmt.Errorf("failed to save placement: %w", err)
	}
	m.deps.Cache.Put(p)
	m.saved.Inc()

	if m.deps.Influx != nil {
		if err := m.deps.Influx.WritePlacement(p); err != nil {
			m.deps.Logger.Warn("Failed to write placement telemetry", "property", p.PropertyID, "error", err)
		}
	}

	if m.deps.Remote != nil {
		ctx, cancel := context.WithTimeout(m.deps.Context, remoteTimeout)
		defer cancel()
		if err := m.deps.Remote.PutPlacement(ctx, p); err != nil {
			m.deps.Logger.Warn("Failed to publish placement", "property", p.PropertyID, "error", err)
		}
	}

	return nil, nil
}

func (m *Manager) handleClearPlacement(e dispatcher.Event[Job]) (any, error) {
	p := e.Data.Placement
	if p.PropertyID == "" {
		return nil, fmt.Errorf("%w: missing property id", ErrInvalidPlacement)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = e.Timestamp
	}

	if err := m.backend.DeletePlacement(&p); err != nil {
		return nil, fmt.Errorf("failed to delete placement: %w", err)
	}
	m.deps.Cache.Remove(p.PropertyID)
	m.cleared.Inc()

	if m.deps.Influx != nil {
		if err := m.deps.Influx.WriteClear(p); err != nil {
			m.deps.Logger.Warn("Failed to write clear telemetry", "property", p.PropertyID, "error", err)
		}
	}
	return nil, nil
}
