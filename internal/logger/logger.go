// Package logger provides centralized logging for the connection monitor
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Level selects which messages are written.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
)

// ParseLevel parses "debug" or "info". Empty means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Options configure Init.
type Options struct {
	Path          string    // log file; empty means conn-monitor.log in the default directory
	Level         Level     // minimum level written
	Echo          io.Writer // optional copy of every line, e.g. stdout in foreground runs
	CaptureStderr bool      // redirect stderr into the log file so panics are kept
}

var (
	logFile  *os.File
	logMutex sync.Mutex
	logPath  string
	logLevel = LevelInfo
	echo     io.Writer
)

// DefaultPath returns the log file used when Options.Path is empty.
func DefaultPath() string {
	return filepath.Join(getLogDir(), "conn-monitor.log")
}

// Init opens the log file.
func Init(opts Options) error {
	logMutex.Lock()
	defer logMutex.Unlock()

	path := opts.Path
	if path == "" {
		path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	logPath = path
	logLevel = opts.Level
	echo = opts.Echo

	if opts.CaptureStderr {
		if err := redirectStderr(f); err != nil {
			return fmt.Errorf("failed to redirect stderr: %w", err)
		}
	}

	return nil
}

// Close closes the log file
func Close() {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Log writes a log message. Multi-line messages are written as one entry.
func Log(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%s] %s\n", timestamp, message)

	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile != nil {
		logFile.WriteString(line)
		logFile.Sync()
	}
	if echo != nil {
		io.WriteString(echo, line)
	}
}

func enabled(l Level) bool {
	logMutex.Lock()
	defer logMutex.Unlock()
	return l >= logLevel
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	Log("INFO: "+format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	Log("ERROR: "+format, args...)
}

// Debug logs a debug message when the level allows it
func Debug(format string, args ...interface{}) {
	if enabled(LevelDebug) {
		Log("DEBUG: "+format, args...)
	}
}

// Warning logs a warning message
func Warning(format string, args ...interface{}) {
	Log("WARN: "+format, args...)
}

// GetLogPath returns the path to the log file
func GetLogPath() string {
	logMutex.Lock()
	defer logMutex.Unlock()
	return logPath
}

// Recover should be deferred at the top of every goroutine to catch panics.
// Usage: go func() { defer logger.Recover("myGoroutine"); ... }()
func Recover(name string) {
	if r := recover(); r != nil {
		Error("PANIC in %s: %v\n%s", name, r, debug.Stack())
	}
}

// SafeGo launches a goroutine with panic recovery.
func SafeGo(name string, fn func()) {
	go func() {
		defer Recover(name)
		fn()
	}()
}

// Sink adapts the package functions to logger interfaces taking
// Info/Debug/Error methods.
type Sink struct{}

// Default is the package-level log sink.
var Default Sink

func (Sink) Info(format string, args ...interface{})  { Info(format, args...) }
func (Sink) Debug(format string, args ...interface{}) { Debug(format, args...) }
func (Sink) Error(format string, args ...interface{}) { Error(format, args...) }
