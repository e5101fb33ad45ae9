package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"": LevelInfo, "info": LevelInfo, "DEBUG": LevelDebug, " debug ": LevelDebug} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestInit_WritesFileAndEcho(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "conn-monitor.log")
	var echoed bytes.Buffer
	require.NoError(t, Init(Options{Path: path, Level: LevelInfo, Echo: &echoed}))
	t.Cleanup(Close)

	Info("TCP totals:\n%s", "chrome443=12")
	Debug("hidden %d", 1)
	Default.Error("boom")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "INFO: TCP totals:\nchrome443=12\n")
	assert.Contains(t, text, "ERROR: boom")
	assert.NotContains(t, text, "hidden")
	assert.Equal(t, text, echoed.String())
	assert.Equal(t, path, GetLogPath())
}

func TestDebugLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	require.NoError(t, Init(Options{Path: path, Level: LevelDebug}))
	t.Cleanup(Close)

	Default.Debug("chrome=1.1.1.1:443 %s", "ESTABLISHED")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DEBUG: chrome=1.1.1.1:443 ESTABLISHED")
}

func TestSafeGo_RecoversPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panic.log")
	require.NoError(t, Init(Options{Path: path}))
	t.Cleanup(Close)

	done := make(chan struct{})
	SafeGo("worker", func() {
		defer close(done)
		panic("bad row")
	})
	<-done

	require.Eventually(t, func() bool {
		data, _ := os.ReadFile(path)
		return bytes.Contains(data, []byte("PANIC in worker: bad row"))
	}, time.Second, 10*time.Millisecond)
}
