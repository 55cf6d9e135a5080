// Package monitor periodically writes a status snapshot of the running
// positioner so operators can watch a session from outside the console.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/estate360/positioner/internal/logging"
	"github.com/estate360/positioner/internal/worker"
	"github.com/estate360/positioner/pkg/core"
)

// DefaultInterval is how often the status file is rewritten.
const DefaultInterval = time.Second

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager    *logging.SlogManager
	WorkerManager *worker.Manager
	// Display reports what the operator sees. Optional.
	Display func() (core.DisplayState, bool)
	// Pending reports history rows not yet written. Optional.
	Pending    func() int
	StatusPath string
	Interval   time.Duration
}

// Status is one snapshot written to the status file.
type Status struct {
	Time    time.Time          `json:"time"`
	Saved   int                `json:"saved"`
	Cleared int                `json:"cleared"`
	Failed  int                `json:"failed"`
	Pending int                `json:"pending"`
	Display *core.DisplayState `json:"display,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current program status
func (s *Service) GetProgramStatus() Status {
	st := Status{Time: time.Now()}
	if w := s.deps.WorkerManager; w != nil {
		st.Saved = w.Saved()
		st.Cleared = w.Cleared()
		st.Failed = w.Failed()
	}
	if s.deps.Pending != nil {
		st.Pending = s.deps.Pending()
	}
	if s.deps.Display != nil {
		if ds, ok := s.deps.Display(); ok {
			st.Display = &ds
		}
	}
	return st
}

// WriteStatus replaces the status file with the current snapshot.
func (s *Service) WriteStatus() error {
	data, err := json.MarshalIndent(s.GetProgramStatus(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	tmp := s.deps.StatusPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	return os.Rename(tmp, s.deps.StatusPath)
}

func (s *Service) logger() *slog.Logger {
	if s.deps.LogManager != nil {
		return s.deps.LogManager.Logger()
	}
	return slog.Default()
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	if s.deps.StatusPath == "" {
		return fmt.Errorf("status path not set")
	}
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.logger()
		logger.Debug("Starting status monitor goroutine", "path", s.deps.StatusPath)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor after one last write.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
