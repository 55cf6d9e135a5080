package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// useConsole points console output at a buffer for the test.
func useConsole(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := console
	console = &buf
	t.Cleanup(func() { console = orig })
	return &buf
}

// recordingExporter keeps the bodies of exported OTel records.
type recordingExporter struct {
	mu     sync.Mutex
	bodies []string
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.bodies = append(e.bodies, r.Body().AsString())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func (e *recordingExporter) has(body string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, b := range e.bodies {
		if b == body {
			return true
		}
	}
	return false
}

// jsonLines decodes one JSON object per line.
func jsonLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), sc.Text())
		out = append(out, m)
	}
	return out
}

func TestSetup_ConsoleOnlyWithoutFile(t *testing.T) {
	tests := []struct {
		name        string
		withFile    bool
		wantConsole bool
	}{
		{"file configured", true, false},
		{"no file", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := useConsole(t)
			var file bytes.Buffer

			m := NewSlogManager()
			if tt.withFile {
				m.Setup(&file, "info", nil)
			} else {
				m.Setup(nil, "info", nil)
			}
			m.Logger().Info("panorama opened", "panorama", "N1")

			assert.Equal(t, tt.wantConsole, strings.Contains(out.String(), "panorama opened"))
			assert.Equal(t, tt.withFile, strings.Contains(file.String(), "panorama opened"))
		})
	}
}

func TestSetup_GraylogCarriesContextAttrs(t *testing.T) {
	var file, gelf bytes.Buffer
	property := "p-1"

	m := NewSlogManager()
	m.Setup(&file, "info", nil,
		WithGraylog(&gelf),
		WithContextProvider(func() []slog.Attr {
			return []slog.Attr{slog.String("property", property), slog.String("mode", "")}
		}),
	)
	m.Logger().Warn("click ignored", "panorama", "N1")

	property = "p-2"
	m.Logger().Info("draft placed")

	lines := jsonLines(t, &gelf)
	require.Len(t, lines, 3, "initialized, click ignored, draft placed")

	assert.Equal(t, "click ignored", lines[1]["msg"])
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "N1", lines[1]["panorama"])
	assert.Equal(t, "p-1", lines[1]["property"])
	assert.NotContains(t, lines[1], "mode", "empty context values are left out")
	assert.True(t, strings.HasSuffix(lines[1]["time"].(string), "Z"), "times are UTC")

	assert.Equal(t, "p-2", lines[2]["property"], "context is read per record")
	assert.Contains(t, file.String(), "property=p-2")
}

func TestSetup_LevelAppliesToEverySink(t *testing.T) {
	var file, gelf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "warn", nil, WithGraylog(&gelf))

	m.Logger().Info("camera moved")
	m.Logger().Warn("panorama unavailable")

	for name, buf := range map[string]*bytes.Buffer{"file": &file, "graylog": &gelf} {
		assert.NotContains(t, buf.String(), "camera moved", name)
		assert.Contains(t, buf.String(), "panorama unavailable", name)
	}
}

func TestSetup_OTelBridge(t *testing.T) {
	exp := &recordingExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	var file bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "info", provider)
	m.Logger().Info("placement saved", "property", "p-1")

	require.NoError(t, m.Flush(context.Background()))
	assert.True(t, exp.has("placement saved"))
	assert.True(t, exp.has("Logging initialized"))
	assert.Contains(t, file.String(), "placement saved")
}

func TestWriteLog(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"DEBUG", "level=DEBUG"},
		{"INFO", "level=INFO"},
		{"warn", "level=WARN"},
		{"ERROR", "level=ERROR"},
		{"TRACE", "level=INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var file bytes.Buffer
			m := NewSlogManager()
			m.Setup(&file, "debug", nil)

			m.WriteLog("open", "Opened panorama N1 for property p-1", tt.level)

			last := lastLine(file.String())
			assert.Contains(t, last, tt.want)
			assert.Contains(t, last, "command=open")
			assert.Contains(t, last, `msg="Opened panorama N1 for property p-1"`)
		})
	}
}

func TestManager_BeforeSetup(t *testing.T) {
	m := NewSlogManager()
	assert.Equal(t, slog.Default(), m.Logger())
	assert.NoError(t, m.Flush(context.Background()))
	assert.NotPanics(t, func() { m.WriteLog("open", "ignored", "INFO") })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("Warn"))
	assert.Equal(t, slog.LevelError, parseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestNewGraylogWriter(t *testing.T) {
	w, err := NewGraylogWriter("127.0.0.1:12201")
	require.NoError(t, err)
	assert.NotNil(t, w)

	_, err = NewGraylogWriter("not an address")
	assert.Error(t, err)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
