package config

import (
	"fmt"

	"github.com/user/conn-monitor/internal/connmon"
	"github.com/user/conn-monitor/internal/logger"
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Version < 1 {
		return fmt.Errorf("version must be 1 or greater, got %d", c.Version)
	}

	if err := c.Monitor.Validate(); err != nil {
		return fmt.Errorf("monitor config: %w", err)
	}

	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	if err := c.History.Validate(); err != nil {
		return fmt.Errorf("history config: %w", err)
	}

	return nil
}

// Validate validates monitor configuration.
func (m *Monitor) Validate() error {
	if m.MinimumConnectionCount < 1 {
		return fmt.Errorf("minimum_connection_count is required and must be a positive integer")
	}
	if m.IntervalSeconds < 1 {
		return fmt.Errorf("interval_seconds is required and must be a positive integer")
	}
	seen := make(map[connmon.Protocol]bool)
	for _, name := range m.Protocols {
		p, err := connmon.ParseProtocol(name)
		if err != nil {
			return fmt.Errorf("protocols: %w", err)
		}
		if seen[p] {
			return fmt.Errorf("protocols: %s listed twice", p)
		}
		seen[p] = true
	}
	return nil
}

// Validate validates log configuration.
func (l *Log) Validate() error {
	_, err := logger.ParseLevel(l.Level)
	return err
}

// Validate validates history configuration.
func (h *History) Validate() error {
	if h.RetentionDays < 0 {
		return fmt.Errorf("retention_days cannot be negative")
	}
	return nil
}
