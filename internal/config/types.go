// Package config handles connection monitor configuration loading, saving, and validation.
package config

import (
	"time"

	"github.com/user/conn-monitor/internal/connmon"
)

// Config represents the main configuration structure.
type Config struct {
	Version int     `yaml:"version"`
	Monitor Monitor `yaml:"monitor"`
	Log     Log     `yaml:"log"`
	History History `yaml:"history"`
}

// Monitor configures the snapshot cycle.
type Monitor struct {
	MinimumConnectionCount int      `yaml:"minimum_connection_count"`
	IntervalSeconds        int      `yaml:"interval_seconds"`
	Protocols              []string `yaml:"protocols,omitempty"` // tcp, udp; empty means tcp
}

// Log configures the log file.
type Log struct {
	Path  string `yaml:"path,omitempty"` // empty = conn-monitor.log in the default directory
	Level string `yaml:"level"`          // debug | info
}

// History configures the optional sqlite report history.
type History struct {
	Path          string `yaml:"path,omitempty"` // empty disables history
	RetentionDays int    `yaml:"retention_days"` // 0 keeps everything
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Monitor: Monitor{
			MinimumConnectionCount: 10,
			IntervalSeconds:        60,
			Protocols:              []string{"tcp"},
		},
		Log: Log{
			Level: "info",
		},
		History: History{
			RetentionDays: 30,
		},
	}
}

// Settings converts the monitor section into connmon settings. The config
// must have been validated.
func (m *Monitor) Settings() connmon.Settings {
	protos := m.Protocols
	if len(protos) == 0 {
		protos = []string{"tcp"}
	}

	s := connmon.Settings{
		MinimumConnectionCount: m.MinimumConnectionCount,
		Interval:               time.Duration(m.IntervalSeconds) * time.Second,
	}
	for _, name := range protos {
		if p, err := connmon.ParseProtocol(name); err == nil {
			s.Protocols = append(s.Protocols, p)
		}
	}
	return s
}

// Retention returns the history retention as a duration, 0 for unlimited.
func (h *History) Retention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}
