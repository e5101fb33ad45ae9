// Package core hosts the connection monitor behind a Start/Stop lifecycle.
package core

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/conn-monitor/internal/config"
	"github.com/user/conn-monitor/internal/connmon"
	"github.com/user/conn-monitor/internal/elevate"
	"github.com/user/conn-monitor/internal/history"
	"github.com/user/conn-monitor/internal/logger"
)

// ErrHistoryDisabled is returned by History when no history path is configured.
var ErrHistoryDisabled = errors.New("history is disabled")

// State represents the service state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Options tune how the service logs.
type Options struct {
	Debug         bool      // force debug level regardless of config
	Echo          io.Writer // copy log lines here (foreground runs)
	CaptureStderr bool      // send stderr to the log file (service runs)
}

// Service is the connection monitor service.
type Service struct {
	mu            sync.RWMutex
	state         State
	configManager *config.Manager
	monitor       *connmon.Monitor
	history       *history.Store
}

// NewService loads the configuration, opens the log and builds the monitor.
// Any error here is fatal for the host.
func NewService(configPath string, opts Options) (*Service, error) {
	configManager := config.NewManager(configPath)
	if err := configManager.Load(); err != nil {
		// The log location comes from the config; fall back to the default
		// file so the failure is still recorded.
		if logErr := logger.Init(logger.Options{Echo: opts.Echo}); logErr == nil {
			logger.Error("unexpected error: failed to load config %s: %v", configPath, err)
			logger.Close()
		}
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configManager.Get()

	level, _ := logger.ParseLevel(cfg.Log.Level)
	if opts.Debug {
		level = logger.LevelDebug
	}
	if err := logger.Init(logger.Options{
		Path:          resolvePath(configPath, cfg.Log.Path),
		Level:         level,
		Echo:          opts.Echo,
		CaptureStderr: opts.CaptureStderr,
	}); err != nil {
		return nil, err
	}

	logger.Info("Connection monitor initializing, config %s", configPath)
	if !elevate.IsAdmin() {
		logger.Warning("Not running elevated: owners of some connections may be unresolved")
	}

	source, err := connmon.NewSystemSource(logger.Default)
	if err != nil {
		logger.Error("unexpected error: %v", err)
		logger.Close()
		return nil, fmt.Errorf("failed to create connection source: %w", err)
	}

	s := &Service{
		state:         StateIdle,
		configManager: configManager,
	}

	var sinks []connmon.ReportSink
	if cfg.History.Path != "" {
		path := resolvePath(configPath, cfg.History.Path)
		store, err := history.Open(path, cfg.History.Retention())
		if err != nil {
			logger.Error("unexpected error: %v", err)
			logger.Close()
			return nil, err
		}
		logger.Info("Recording report history to %s", path)
		s.history = store
		sinks = append(sinks, store)
	}

	s.monitor = connmon.NewMonitor(source, cfg.Monitor.Settings(), logger.Default, sinks...)
	return s, nil
}

// resolvePath makes p relative to the config file's directory.
func resolvePath(configPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

// Start starts the monitor.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.monitor.Start(); err != nil {
		logger.Error("unexpected error: %v", err)
		return err
	}
	s.state = StateRunning
	logger.Info("Connection monitor started")
	return nil
}

// RunOnce runs a single monitor cycle in the calling goroutine.
func (s *Service) RunOnce() {
	s.monitor.RunOnce()
}

// Stop stops the monitor, waiting for a cycle in progress, and releases the
// history database and the log file.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return nil
	}
	s.monitor.Stop()
	s.state = StateStopped

	var err error
	if s.history != nil {
		if err = s.history.Close(); err != nil {
			logger.Error("Failed to close history: %v", err)
		}
	}

	logger.Info("Connection monitor stopped")
	logger.Close()
	return err
}

// GetState returns the current state.
func (s *Service) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// GetConfig returns the loaded configuration.
func (s *Service) GetConfig() *config.Config {
	return s.configManager.Get()
}

// Cycles returns the number of completed monitor cycles.
func (s *Service) Cycles() uint64 {
	return s.monitor.Cycles()
}

// History returns the totals recorded during the last window.
func (s *Service) History(window time.Duration) ([]history.TotalRecord, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.Totals(time.Now().Add(-window))
}
