// Package engine defines the rendering-engine capabilities the positioner
// consumes. The engine draws the sphere and reports camera orientation and
// clicks; it is never owned by the positioner.
package engine

import (
	"context"

	"github.com/estate360/positioner/pkg/core"
)

// EventName identifies an engine event stream.
type EventName string

const (
	EventReady EventName = "ready"
	EventClick EventName = "click"
	EventError EventName = "error"
)

// ClickPayload is the engine's report of a click on the sphere. The engine has
// already projected the screen point to yaw/pitch.
type ClickPayload struct {
	Yaw   float64
	Pitch float64
}

// Event is a typed engine event. Click is set only for EventClick and Err only
// for EventError.
type Event struct {
	Name  EventName
	Click *ClickPayload
	Err   error
}

// ReadyEvent returns an EventReady.
func ReadyEvent() Event {
	return Event{Name: EventReady}
}

// ClickEvent returns an EventClick carrying yaw and pitch.
func ClickEvent(yaw, pitch float64) Event {
	return Event{Name: EventClick, Click: &ClickPayload{Yaw: yaw, Pitch: pitch}}
}

// ErrorEvent returns an EventError.
func ErrorEvent(err error) Event {
	return Event{Name: EventError, Err: err}
}

// Listener receives engine events.
type Listener func(Event)

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

// Orientation is the raw camera orientation reported by the engine.
type Orientation struct {
	Yaw   float64
	Pitch float64
}

// MarkerInfo describes a marker currently drawn by the engine.
type MarkerInfo struct {
	ID       string
	Position Orientation
	Spec     core.RenderSpec
}

// Options are passed to Create.
type Options struct {
	Caption     string
	DefaultZoom float64
	Navbar      []string
}

// CameraReader reports the current camera orientation.
type CameraReader interface {
	CameraOrientation() Orientation
}

// Handle is one live engine instance. Calling any method other than Destroy on
// a destroyed handle is undefined.
type Handle interface {
	CameraReader

	AddEventListener(name EventName, fn Listener) ListenerID
	RemoveEventListener(name EventName, id ListenerID)

	AddMarker(id string, pos Orientation, spec core.RenderSpec) error
	RemoveMarker(id string) error
	Markers() []MarkerInfo

	Destroy()
}

// Engine creates handles. Load failures are reported through EventError on
// the returned handle, not through Create's error.
type Engine interface {
	Create(ctx context.Context, container, imageURL string, opts Options) (Handle, error)
}
