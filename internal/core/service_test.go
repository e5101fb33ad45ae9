package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/conn-monitor/internal/config"
	"github.com/user/conn-monitor/internal/logger"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestResolvePath(t *testing.T) {
	cfg := filepath.Join("/etc", "conn-monitor", "config.yaml")

	assert.Equal(t, "", resolvePath(cfg, ""))
	assert.Equal(t, filepath.Join("/etc", "conn-monitor", "history.db"), resolvePath(cfg, "history.db"))

	abs := filepath.Join(t.TempDir(), "x.log")
	assert.Equal(t, abs, resolvePath(cfg, abs))
}

func TestService_RunOnceWithHistory(t *testing.T) {
	path := writeConfig(t, `version: 1
monitor:
  minimum_connection_count: 1
  interval_seconds: 60
  protocols: [tcp, udp]
log:
  path: monitor.log
  level: debug
history:
  path: history.db
`)

	s, err := NewService(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.GetState())
	assert.Equal(t, 1, s.GetConfig().Monitor.MinimumConnectionCount)

	s.RunOnce()
	assert.Equal(t, uint64(1), s.Cycles())

	_, err = s.History(time.Hour)
	assert.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Equal(t, StateRunning, s.GetState())
	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.GetState())
	require.NoError(t, s.Stop())

	data, err := os.ReadFile(filepath.Join(filepath.Dir(path), "monitor.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "TCP totals")
	assert.Contains(t, string(data), "UDP totals")
	assert.Contains(t, string(data), "Connection monitor stopped")
	assert.FileExists(t, filepath.Join(filepath.Dir(path), "history.db"))
}

func TestService_HistoryDisabled(t *testing.T) {
	path := writeConfig(t, "version: 1\nmonitor:\n  minimum_connection_count: 3\n  interval_seconds: 5\nlog:\n  path: monitor.log\n")

	s, err := NewService(path, Options{})
	require.NoError(t, err)
	defer s.Stop()

	_, err = s.History(time.Hour)
	assert.ErrorIs(t, err, ErrHistoryDisabled)
}

func TestNewService_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "version: 1\nmonitor:\n  interval_seconds: 5\n")

	_, err := NewService(path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimum_connection_count")
}

func TestNewService_MissingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := NewService(path, Options{})
	require.ErrorIs(t, err, config.ErrConfigCreated)
	assert.FileExists(t, path, "a default file is written for the operator to review")

	// The reviewed file is accepted on the next start.
	s, err := NewService(path, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Stop())
}

func TestNewService_HistoryFailureClosesLog(t *testing.T) {
	path := writeConfig(t, `version: 1
monitor:
  minimum_connection_count: 3
  interval_seconds: 5
log:
  path: monitor.log
history:
  path: blocker/history.db
`)
	dir := filepath.Dir(path)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blocker"), nil, 0644))

	_, err := NewService(path, Options{})
	require.Error(t, err)

	logger.Info("written after the failed start")

	data, err := os.ReadFile(filepath.Join(dir, "monitor.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "unexpected error")
	assert.NotContains(t, string(data), "written after the failed start")
}
