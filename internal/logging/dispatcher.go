package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// badKey holds a trailing value that has no key, as log/slog does.
const badKey = "!BADKEY"

// DispatcherLogger writes dispatcher and worker records through zerolog.
type DispatcherLogger struct {
	logger zerolog.Logger
}

// NewDispatcherLogger wraps logger.
func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	emit(l.logger.Debug(), msg, keysAndValues)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	emit(l.logger.Info(), msg, keysAndValues)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	emit(l.logger.Error(), msg, keysAndValues)
}

// emit keeps the caller's field order. A nil event means the level is off.
func emit(e *zerolog.Event, msg string, keysAndValues []any) {
	if e == nil {
		return
	}
	e.Fields(toFields(keysAndValues)).Msg(msg)
}

// toFields normalizes alternating keys and values into zerolog's slice form.
// Non-string keys are formatted.
func toFields(keysAndValues []any) []any {
	fields := make([]any, 0, len(keysAndValues)+1)
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 == len(keysAndValues) {
			fields = append(fields, badKey, keysAndValues[i])
			break
		}
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields = append(fields, key, keysAndValues[i+1])
	}
	return fields
}
