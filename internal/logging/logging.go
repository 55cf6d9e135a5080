package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// sessionLayout names log files by session start, sortable by name.
const sessionLayout = "20060102_150405"

// LogFilePath returns logsDir/<name>.<session start>.log.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", name, sessionStart.Format(sessionLayout)))
}

// OpenLogFile creates the directory of path and opens path for appending.
// A file left by an earlier run with the same name is kept as path.old.
func OpenLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".old"); err != nil {
			return nil, fmt.Errorf("failed to rotate log file: %w", err)
		}
	}
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
}
