package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// console is where records go when no log file is configured.
var console io.Writer = os.Stdout

// ServiceName tags records sent through the OTel bridge.
const ServiceName = "panorama-positioner"

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger *slog.Logger

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// SetupOption adds an output or decoration to Setup.
type SetupOption func(*setupConfig)

type setupConfig struct {
	graylog  io.Writer
	provider ContextProvider
}

// WithGraylog ships every record as JSON to w, usually a GELF writer.
func WithGraylog(w io.Writer) SetupOption {
	return func(c *setupConfig) {
		c.graylog = w
	}
}

// WithContextProvider appends the provider's attributes to every record.
func WithContextProvider(p ContextProvider) SetupOption {
	return func(c *setupConfig) {
		c.provider = p
	}
}

// NewGraylogWriter opens a UDP GELF writer to addr (host:port).
func NewGraylogWriter(addr string) (io.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create gelf writer: %w", err)
	}
	w.Facility = ServiceName
	return w, nil
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system with file and optional OTel output.
// Console output is used only when file is nil.
// If provider is nil, OTel logging is disabled.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, opts ...SetupOption) {
	cfg := setupConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	lvl := parseLevel(level)
	m.logProvider = provider

	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler

	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(console, handlerOpts))
	}

	if cfg.graylog != nil {
		handlers = append(handlers, slog.NewJSONHandler(cfg.graylog, handlerOpts))
	}

	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider)))
	}

	var h slog.Handler = NewMultiHandler(handlers...)
	if cfg.provider != nil {
		h = NewContextHandler(h, cfg.provider)
	}

	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", level)
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// WriteLog writes a log entry for a console command at the given level.
func (m *SlogManager) WriteLog(command, data, level string) {
	if m.logger == nil {
		return
	}

	switch parseLevel(level) {
	case slog.LevelDebug:
		m.logger.Debug(data, "command", command)
	case slog.LevelWarn:
		m.logger.Warn(data, "command", command)
	case slog.LevelError:
		m.logger.Error(data, "command", command)
	default:
		m.logger.Info(data, "command", command)
	}
}
