package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/smoothsync/internal/engine"
	"github.com/OCAP2/smoothsync/internal/logging"
)

// DefaultInterval is how often the status file is rewritten.
const DefaultInterval = time.Second

// Source is anything that reports engine counters, normally *engine.Engine.
type Source interface {
	ObjectID() string
	Stats() engine.Stats
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Sources    []Source
	LogManager *logging.SlogManager
	// StatusPath is rewritten with the latest status on every interval.
	// Empty disables the file.
	StatusPath string
	Interval   time.Duration
}

// ObjectStatus is one engine's counters at a point in time.
type ObjectStatus struct {
	ObjectID              string  `json:"objectId"`
	Mode                  string  `json:"mode"`
	Sent                  uint64  `json:"sent"`
	BytesSent             uint64  `json:"bytesSent"`
	Received              uint64  `json:"received"`
	Stale                 uint64  `json:"stale"`
	Malformed             uint64  `json:"malformed"`
	ExtrapolationFailures uint64  `json:"extrapolationFailures"`
	InboxDropped          uint64  `json:"inboxDropped"`
	HistoryDepth          int     `json:"historyDepth"`
	StaleRatio            float64 `json:"staleRatio"`
}

// Status is a snapshot of every monitored engine.
type Status struct {
	Time    time.Time      `json:"time"`
	Objects []ObjectStatus `json:"objects"`
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

// GetStatus collects the current counters of every source.
func (s *Service) GetStatus() Status {
	st := Status{Time: time.Now().UTC()}
	for _, src := range s.deps.Sources {
		stats := src.Stats()
		o := ObjectStatus{
			ObjectID:              src.ObjectID(),
			Mode:                  stats.Mode.String(),
			Sent:                  stats.Sent,
			BytesSent:             stats.BytesSent,
			Received:              stats.Received,
			Stale:                 stats.Stale,
			Malformed:             stats.Malformed,
			ExtrapolationFailures: stats.ExtrapolationFailures,
			InboxDropped:          stats.InboxDropped,
			HistoryDepth:          stats.HistoryDepth,
		}
		if total := stats.Received + stats.Stale; total > 0 {
			o.StaleRatio = float64(stats.Stale) / float64(total)
		}
		st.Objects = append(st.Objects, o)
	}
	return st
}

// WriteStatus replaces the status file with the current status.
func (s *Service) WriteStatus() error {
	if s.deps.StatusPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	tmp := s.deps.StatusPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing status: %w", err)
	}
	return os.Rename(tmp, s.deps.StatusPath)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
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

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "path", s.deps.StatusPath, "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
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

// Stop stops the status monitor and writes a final status.
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
	if err := s.WriteStatus(); err != nil {
		s.deps.LogManager.Logger().Error("Error writing status file", "error", err)
	}
}
