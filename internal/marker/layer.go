package marker

import (
	"fmt"
	"log/slog"

	"github.com/estate360/positioner/internal/cache"
	"github.com/estate360/positioner/internal/viewer"
	"github.com/estate360/positioner/pkg/core"
)

// DefaultLayerSpec draws saved property markers.
var DefaultLayerSpec = core.RenderSpec{
	Image:  "pin-blue.png",
	Size:   24,
	Anchor: "bottom center",
}

// Layer draws the read-only markers of properties already placed on the
// panorama. It never touches the draft marker.
type Layer struct {
	spec   core.RenderSpec
	drawn  *cache.MarkerCache
	logger *slog.Logger
}

func NewLayer(spec core.RenderSpec, logger *slog.Logger) *Layer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Layer{spec: spec, drawn: cache.NewMarkerCache(), logger: logger}
}

// MarkerID returns the engine marker id of a property.
func MarkerID(propertyID string) string {
	return core.PropertyMarkerPrefix + propertyID
}

// Show replaces the drawn property markers with props. Properties with an
// out-of-range position are skipped. It returns the number drawn.
func (l *Layer) Show(s *viewer.Session, props []core.PropertyMarker) (int, error) {
	if s == nil || s.Closed() {
		l.drawn.Reset()
		return 0, fmt.Errorf("show properties: %w", ErrSessionClosed)
	}
	l.clear(s)

	drawn := 0
	for _, p := range props {
		if p.PropertyID == "" || !p.Position.InRange() {
			l.logger.Warn("skipping property marker", "property", p.PropertyID, "position", p.Position)
			continue
		}
		spec := l.spec
		if p.Title != "" {
			spec.Tooltip = p.Title
		}
		id := MarkerID(p.PropertyID)
		if _, dup := l.drawn.Get(id); dup {
			continue
		}
		if err := s.AddMarker(id, p.Position, spec); err != nil {
			l.logger.Error("drawing property marker failed", "property", p.PropertyID, "error", err)
			continue
		}
		l.drawn.Set(id, p)
		drawn++
	}
	return drawn, nil
}

// Clear removes every property marker from s.
func (l *Layer) Clear(s *viewer.Session) {
	if s == nil || s.Closed() {
		l.drawn.Reset()
		return
	}
	l.clear(s)
}

func (l *Layer) clear(s *viewer.Session) {
	for _, id := range l.drawn.IDs() {
		if s.HasMarker(id) {
			if err := s.RemoveMarker(id); err != nil {
				l.logger.Warn("removing property marker failed", "marker", id, "error", err)
			}
		}
		l.drawn.Delete(id)
	}
}

// Markers returns the property markers currently drawn.
func (l *Layer) Markers() []core.PropertyMarker {
	ids := l.drawn.IDs()
	out := make([]core.PropertyMarker, 0, len(ids))
	for _, id := range ids {
		if p, ok := l.drawn.Get(id); ok {
			out = append(out, p)
		}
	}
	return out
}

// Reset forgets drawn markers without touching the engine; used once the
// session is gone.
func (l *Layer) Reset() {
	l.drawn.Reset()
}
