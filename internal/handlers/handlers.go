// Package handlers turns operator console commands into positioner
// operations and forwards every draft change to the placement worker.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/estate360/positioner/internal/dispatcher"
	"github.com/estate360/positioner/internal/engine/headless"
	"github.com/estate360/positioner/internal/geo"
	"github.com/estate360/positioner/internal/logging"
	"github.com/estate360/positioner/internal/positioner"
	"github.com/estate360/positioner/internal/surface"
	"github.com/estate360/positioner/internal/util"
	"github.com/estate360/positioner/internal/worker"
	"github.com/estate360/positioner/pkg/core"
)

var (
	// ErrQuit is returned by the quit command.
	ErrQuit = errors.New("quit")
	// ErrUnknownCommand is returned for a command the console does not know.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUsage is returned when a command got the wrong arguments.
	ErrUsage = errors.New("usage")
	// ErrNoSession is returned by commands that need an open panorama.
	ErrNoSession = errors.New("no panorama open")
)

// Directory resolves panoramas and the properties placed on them.
type Directory interface {
	FetchPanorama(ctx context.Context, neighborhoodID string) (core.PanoramaResource, error)
	ListProperties(ctx context.Context, panoramaID string) ([]core.PropertyMarker, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Engine     *headless.Engine
	Dispatcher *dispatcher.Dispatcher[worker.Job]
	Worker     *worker.Manager
	Directory  Directory // optional
	LogManager *logging.SlogManager
	Context    context.Context
	Options    []positioner.Option
	Degrees    bool
}

// target is the property and panorama being edited.
type target struct {
	propertyID string
	panoramaID string
}

// Service executes console commands against one positioner at a time.
type Service struct {
	deps         Dependencies
	writeLogFunc func(command, data, level string)

	target atomic.Pointer[target]

	mu    sync.Mutex
	pos   *positioner.Positioner
	props []core.PropertyMarker
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	s := &Service{deps: deps}
	s.writeLogFunc = func(command, data, level string) {
		if deps.LogManager != nil {
			deps.LogManager.WriteLog(command, data, level)
		}
	}
	return s
}

func (s *Service) writeLog(command, data, level string) {
	s.writeLogFunc(command, data, level)
}

// LogAttrs describes the open positioner for log records.
func (s *Service) LogAttrs() []slog.Attr {
	t := s.target.Load()
	if t == nil {
		return nil
	}
	return []slog.Attr{slog.String("property", t.propertyID), slog.String("panorama", t.panoramaID)}
}

// Execute runs one console line and returns the text to show the operator.
func (s *Service) Execute(line string) (string, error) {
	args, err := util.SplitArgs(line)
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		return "", nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]

	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd {
	case "open":
		return s.open(args)
	case "place":
		return s.place(args)
	case "click":
		return s.click(args)
	case "camera":
		return s.camera(args)
	case "center":
		return s.withPositioner(func(p *positioner.Positioner) error { return p.PlaceAtCenter() })
	case "request":
		return s.withPositioner(func(p *positioner.Positioner) error { return p.RequestPlacementMode() })
	case "cancel":
		return s.withPositioner(func(p *positioner.Positioner) error { return p.CancelPlacementMode() })
	case "delete":
		return s.withPositioner(func(p *positioner.Positioner) error { return p.DeleteMarker() })
	case "status":
		return s.status()
	case "props":
		return s.listProps(), nil
	case "stats":
		return s.stats(), nil
	case "help":
		return helpText, nil
	case "quit", "exit":
		return "", ErrQuit
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
}

const helpText = `commands:
  open <property> <neighborhood>                    fetch the panorama from the API
  open <property> <panorama> <imageUrl> [caption]   open a panorama directly
  request | cancel                                  enter or leave placement mode
  click <yaw,pitch>                                 click the viewer
  camera <yaw,pitch>                                point the camera
  center                                            place the marker at the camera
  place <yaw,pitch>                                 place the marker exactly
  delete                                            remove the marker
  status | props | stats | help | quit
angles are radians, append "deg" for degrees`

// open starts a positioner for a property. A different property starts from
// scratch, the same property just switches panorama.
func (s *Service) open(args []string) (string, error) {
	functionName := "open"
	var res core.PanoramaResource
	switch {
	case len(args) == 2:
		if s.deps.Directory == nil {
			return "", fmt.Errorf("%w: open <property> <panorama> <imageUrl> [caption]", ErrUsage)
		}
		var err error
		res, err = s.deps.Directory.FetchPanorama(s.deps.Context, args[1])
		if err != nil {
			s.writeLog(functionName, fmt.Sprintf(`Error fetching panorama for %s: %v`, args[1], err), "ERROR")
			return "", err
		}
	case len(args) >= 3:
		res = core.PanoramaResource{ID: args[1], ImageURL: args[2], Caption: util.JoinArgs(args[3:])}
	default:
		return "", fmt.Errorf("%w: open <property> <neighborhood> | open <property> <panorama> <imageUrl> [caption]", ErrUsage)
	}
	propertyID := args[0]

	stored, err := s.registerPanorama(res)
	if err != nil {
		s.writeLog(functionName, fmt.Sprintf(`Error registering panorama %s: %v`, res.ID, err), "ERROR")
		return "", err
	}
	props := s.collectProperties(res.ID, propertyID, stored)

	var initial *core.SphericalPosition
	if s.deps.Worker != nil {
		if p, ok := s.deps.Worker.Cache().Get(propertyID); ok && p.PanoramaID == res.ID {
			initial = &p.Position
		}
	}

	prev := s.target.Load()
	if s.pos != nil && prev != nil && prev.propertyID == propertyID {
		err = s.pos.SetPanorama(res, initial)
	} else {
		if s.pos != nil {
			s.pos.Close()
		}
		opts := append([]positioner.Option{
			positioner.WithChangeHandler(func(c core.PositionChange) { s.onChange(propertyID, c) }),
			positioner.WithContext(s.deps.Context),
			positioner.WithDegrees(s.deps.Degrees),
		}, s.deps.Options...)
		s.pos = positioner.New(s.deps.Engine, res, initial, nil, opts...)
	}
	s.target.Store(&target{propertyID: propertyID, panoramaID: res.ID})
	if err != nil {
		return "", err
	}

	s.props = props
	if err := s.pos.ShowProperties(props); err != nil {
		return "", err
	}
	s.writeLog(functionName, fmt.Sprintf(`Opened panorama %s for property %s`, res.ID, propertyID), "INFO")
	return fmt.Sprintf("opened %s for %s (%d other properties)", res.ID, propertyID, len(props)), nil
}

// registerPanorama stores the panorama and returns what was already placed
// on it. Without a worker nothing is stored.
func (s *Service) registerPanorama(res core.PanoramaResource) ([]core.PropertyMarker, error) {
	if s.deps.Dispatcher == nil {
		return nil, nil
	}
	out, err := s.deps.Dispatcher.Dispatch(worker.OpenEvent(res))
	if err != nil {
		return nil, err
	}
	markers, _ := out.([]core.PropertyMarker)
	return markers, nil
}

// collectProperties merges stored and remote markers, leaving out the property
// being edited since it is drawn as the draft.
func (s *Service) collectProperties(panoramaID, editing string, stored []core.PropertyMarker) []core.PropertyMarker {
	byID := make(map[string]core.PropertyMarker, len(stored))
	if s.deps.Directory != nil {
		remote, err := s.deps.Directory.ListProperties(s.deps.Context, panoramaID)
		if err != nil {
			s.writeLog("open", fmt.Sprintf(`Error listing properties of %s: %v`, panoramaID, err), "WARN")
		}
		for _, m := range remote {
			byID[m.PropertyID] = m
		}
	}
	// Local placements are newer than what the API reports.
	for _, m := range stored {
		if prev, ok := byID[m.PropertyID]; ok && m.Title == "" {
			m.Title = prev.Title
		}
		byID[m.PropertyID] = m
	}
	delete(byID, editing)

	out := make([]core.PropertyMarker, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PropertyID < out[j].PropertyID })
	return out
}

// onChange forwards a draft change of propertyID to the worker. The change
// carries the panorama it was made on, so a change still in flight when
// another panorama opens is saved where it happened.
func (s *Service) onChange(propertyID string, change core.PositionChange) {
	if s.deps.Dispatcher == nil {
		return
	}
	p := core.Placement{
		PropertyID: propertyID,
		PanoramaID: change.PanoramaID,
		Position:   change.Position,
		UpdatedAt:  time.Now(),
	}
	e := worker.SetEvent(p)
	if change.Cleared {
		e = worker.ClearEvent(p)
	}
	if _, err := s.deps.Dispatcher.Dispatch(e); err != nil {
		s.writeLog("change", fmt.Sprintf(`Error queueing placement of %s: %v`, propertyID, err), "ERROR")
	}
}

func (s *Service) withPositioner(fn func(p *positioner.Positioner) error) (string, error) {
	if s.pos == nil {
		return "", ErrNoSession
	}
	if err := fn(s.pos); err != nil {
		return "", err
	}
	return FormatDisplay(s.pos.Display()), nil
}

func (s *Service) place(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: place <yaw,pitch>", ErrUsage)
	}
	pos, err := geo.ParsePosition(args[0])
	if err != nil {
		return "", err
	}
	return s.withPositioner(func(p *positioner.Positioner) error { return p.PlaceAt(pos) })
}

// handle returns the live headless viewer of the open positioner.
func (s *Service) handle() (*headless.Handle, error) {
	if s.pos == nil {
		return nil, ErrNoSession
	}
	h := s.deps.Engine.Current()
	if h == nil {
		return nil, ErrNoSession
	}
	return h, nil
}

func (s *Service) click(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: click <yaw,pitch>", ErrUsage)
	}
	pos, err := geo.ParsePosition(args[0])
	if err != nil {
		return "", err
	}
	h, err := s.handle()
	if err != nil {
		return "", err
	}
	if !h.Click(pos.Yaw, pos.Pitch) {
		return "click ignored, viewer not loaded", nil
	}
	return "click sent", nil
}

func (s *Service) camera(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: camera <yaw,pitch>", ErrUsage)
	}
	pos, err := geo.ParsePosition(args[0])
	if err != nil {
		return "", err
	}
	h, err := s.handle()
	if err != nil {
		return "", err
	}
	h.LookAt(pos.Yaw, pos.Pitch)
	yaw, pitch := surface.FormatPosition(pos, s.deps.Degrees)
	return fmt.Sprintf("camera at yaw %s pitch %s", yaw, pitch), nil
}

func (s *Service) status() (string, error) {
	if s.pos == nil {
		return "", ErrNoSession
	}
	return FormatDisplay(s.pos.Display()), nil
}

func (s *Service) listProps() string {
	if len(s.props) == 0 {
		return "no other properties"
	}
	var b strings.Builder
	for i, m := range s.props {
		if i > 0 {
			b.WriteByte('\n')
		}
		yaw, pitch := surface.FormatPosition(m.Position, s.deps.Degrees)
		fmt.Fprintf(&b, "%s\t%s\tyaw %s pitch %s", m.PropertyID, m.Title, yaw, pitch)
	}
	return b.String()
}

func (s *Service) stats() string {
	if s.deps.Worker == nil {
		return "no worker"
	}
	return fmt.Sprintf("saved %d, cleared %d, failed %d",
		s.deps.Worker.Saved(), s.deps.Worker.Cleared(), s.deps.Worker.Failed())
}

// FormatDisplay renders a display state on one line.
func FormatDisplay(ds core.DisplayState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", ds.Kind, ds.Status)
	if ds.Yaw != "" || ds.Pitch != "" {
		fmt.Fprintf(&b, " | yaw %s pitch %s", ds.Yaw, ds.Pitch)
	}
	if ds.Notice != "" {
		fmt.Fprintf(&b, " | %s", ds.Notice)
	}
	var controls []string
	if ds.Controls.RequestPlacement {
		controls = append(controls, "request")
	}
	if ds.Controls.CancelPlacement {
		controls = append(controls, "cancel")
	}
	if ds.Controls.PlaceAtCenter {
		controls = append(controls, "center")
	}
	if ds.Controls.Delete {
		controls = append(controls, "delete")
	}
	if len(controls) > 0 {
		fmt.Fprintf(&b, " | %s", strings.Join(controls, " "))
	}
	return b.String()
}

// Display returns what the operator sees, if a panorama is open.
func (s *Service) Display() (core.DisplayState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos == nil {
		return core.DisplayState{}, false
	}
	return s.pos.Display(), true
}

// Close releases the open positioner.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos != nil {
		s.pos.Close()
		s.pos = nil
	}
	s.target.Store(nil)
}
