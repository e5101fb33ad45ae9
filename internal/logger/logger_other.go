//go:build !darwin

package logger

import (
	"os"
	"path/filepath"
)

// getLogDir returns the log directory next to the executable. Services
// start in the system directory, so the working directory is not used.
func getLogDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
