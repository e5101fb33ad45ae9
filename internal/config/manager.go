package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrConfigCreated is returned by Load when the file was missing and a
// default one was written in its place. The thresholds in it are
// placeholders, so the caller must not start on them.
var ErrConfigCreated = errors.New("default config written, review it and restart")

// Manager handles configuration operations.
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
}

// NewManager creates a new configuration manager.
func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
	}
}

// Path returns the configuration file path.
func (m *Manager) Path() string {
	return m.configPath
}

// Load reads and validates configuration from file. A missing file is
// created with the default configuration and ErrConfigCreated is returned;
// Get stays nil until a real file has been loaded.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			m.config = DefaultConfig()
			err := m.saveUnsafe()
			m.config = nil
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: %s", ErrConfigCreated, m.configPath)
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return err
	}

	m.config = cfg
	return nil
}

// Parse decodes and validates a yaml configuration. Unknown keys are
// rejected so a misspelled setting does not silently fall back to zero.
// An absent version key means version 1.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Version: 1}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config: file is empty")
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Save writes configuration to file.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUnsafe()
}

func (m *Manager) saveUnsafe() error {
	if m.config == nil {
		return fmt.Errorf("no configuration to save")
	}

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}
