//go:build darwin

package logger

import (
	"os"
	"path/filepath"
)

// getLogDir returns ~/Library/Logs/Connection Monitor, falling back to the
// executable's directory.
func getLogDir() string {
	home, err := os.UserHomeDir()
	if err == nil {
		dir := filepath.Join(home, "Library", "Logs", "Connection Monitor")
		if err := os.MkdirAll(dir, 0755); err == nil {
			return dir
		}
	}

	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
