package positioner

import (
	"context"
	"log/slog"

	"github.com/estate360/positioner/internal/dispatcher"
	"github.com/estate360/positioner/internal/viewer"
	"github.com/estate360/positioner/pkg/core"
)

// Option configures a Positioner.
type Option func(*settings)

type settings struct {
	logger     *slog.Logger
	dispLogger dispatcher.Logger
	ctx        context.Context
	viewerCfg  viewer.Config
	draftSpec  core.RenderSpec
	layerSpec  core.RenderSpec
	onChange   func(core.PositionChange)
	onDisplay  func(core.DisplayState)
	degrees    bool
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDispatcherLogger sets the logger of the event bridge's dispatcher.
func WithDispatcherLogger(l dispatcher.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.dispLogger = l
		}
	}
}

// WithContext sets the context engines are created with.
func WithContext(ctx context.Context) Option {
	return func(s *settings) {
		s.ctx = ctx
	}
}

// WithViewerConfig sets the engine container and options.
func WithViewerConfig(cfg viewer.Config) Option {
	return func(s *settings) {
		s.viewerCfg = cfg
	}
}

// WithDraftSpec sets how the draft marker is drawn.
func WithDraftSpec(spec core.RenderSpec) Option {
	return func(s *settings) {
		s.draftSpec = spec
	}
}

// WithLayerSpec sets how saved property markers are drawn.
func WithLayerSpec(spec core.RenderSpec) Option {
	return func(s *settings) {
		s.layerSpec = spec
	}
}

// WithChangeHandler receives every draft change, with deletions flagged as
// Cleared instead of reported as the origin.
func WithChangeHandler(fn func(core.PositionChange)) Option {
	return func(s *settings) {
		s.onChange = fn
	}
}

// WithDisplayHandler receives the display state whenever it changes.
func WithDisplayHandler(fn func(core.DisplayState)) Option {
	return func(s *settings) {
		s.onDisplay = fn
	}
}

// WithDegrees formats displayed coordinates in degrees.
func WithDegrees(on bool) Option {
	return func(s *settings) {
		s.degrees = on
	}
}

// slogDispatcherLogger lets a slog.Logger serve as dispatcher.Logger.
type slogDispatcherLogger struct {
	l *slog.Logger
}

func (s slogDispatcherLogger) Debug(msg string, kv ...any) { s.l.Debug(msg, kv...) }
func (s slogDispatcherLogger) Info(msg string, kv ...any)  { s.l.Info(msg, kv...) }
func (s slogDispatcherLogger) Error(msg string, kv ...any) { s.l.Error(msg, kv...) }
