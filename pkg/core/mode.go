// pkg/core/mode.go
package core

// Mode is the positioning interaction state.
type Mode int

const (
	// ModeIdle means no session or the session is not ready.
	ModeIdle Mode = iota
	// ModeReady means the session is ready and no interaction is pending.
	ModeReady
	// ModeAwaitingClick means the next click on the sphere places the draft marker.
	ModeAwaitingClick
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeReady:
		return "ready"
	case ModeAwaitingClick:
		return "awaiting-click"
	default:
		return "unknown"
	}
}
