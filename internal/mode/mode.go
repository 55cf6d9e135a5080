// Package mode tracks the positioning interaction state of one viewer session.
package mode

import (
	"errors"
	"fmt"
	"sync"

	"github.com/estate360/positioner/pkg/core"
)

var (
	// ErrNotReady is returned when an interaction needs a ready session.
	ErrNotReady = errors.New("viewer not ready")
	// ErrInvalidTransition is returned for a transition the current mode forbids.
	ErrInvalidTransition = errors.New("invalid mode transition")
)

// Machine is the positioning state machine:
//
//	Idle --ready--> Ready <--request/cancel--> AwaitingClick --click--> Ready
//
// Reset returns to Idle from anywhere. The zero value is an idle machine.
type Machine struct {
	mu   sync.Mutex
	mode core.Mode
}

func New() *Machine {
	return &Machine{}
}

// Mode returns the current mode.
func (m *Machine) Mode() core.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Ready moves Idle to Ready. It is a no-op once the session is ready.
func (m *Machine) Ready() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == core.ModeIdle {
		m.mode = core.ModeReady
	}
}

// RequestPlacement enters AwaitingClick. Requesting again while already
// awaiting a click is allowed and changes nothing.
func (m *Machine) RequestPlacement() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.mode {
	case core.ModeIdle:
		return fmt.Errorf("request placement: %w", ErrNotReady)
	case core.ModeReady, core.ModeAwaitingClick:
		m.mode = core.ModeAwaitingClick
		return nil
	default:
		return fmt.Errorf("request placement from %s: %w", m.mode, ErrInvalidTransition)
	}
}

// CancelPlacement leaves AwaitingClick without placing anything.
func (m *Machine) CancelPlacement() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.mode {
	case core.ModeIdle:
		return fmt.Errorf("cancel placement: %w", ErrNotReady)
	case core.ModeAwaitingClick:
		m.mode = core.ModeReady
		return nil
	default:
		return fmt.Errorf("cancel placement from %s: %w", m.mode, ErrInvalidTransition)
	}
}

// ConsumeClick reports whether a click should place the draft. A click
// while awaiting returns to Ready whatever the click's coordinate turns out to
// be; clicks in any other mode are ignored.
func (m *Machine) ConsumeClick() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != core.ModeAwaitingClick {
		return false
	}
	m.mode = core.ModeReady
	return true
}

// CanPlaceAtCenter reports whether center placement is allowed. It never
// changes the mode.
func (m *Machine) CanPlaceAtCenter() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == core.ModeIdle {
		return fmt.Errorf("place at center: %w", ErrNotReady)
	}
	return nil
}

// Reset returns to Idle; used when the session closes.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = core.ModeIdle
}
