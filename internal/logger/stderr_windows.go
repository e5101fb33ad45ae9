//go:build windows

package logger

import (
	"os"

	"golang.org/x/sys/windows"
)

// redirectStderr redirects stderr to the log file so panics are captured.
func redirectStderr(f *os.File) error {
	if err := windows.SetStdHandle(windows.STD_ERROR_HANDLE, windows.Handle(f.Fd())); err != nil {
		return err
	}
	os.Stderr = f
	return nil
}
