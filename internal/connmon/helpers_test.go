package connmon

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"
)

type logEntry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: fmt.Sprintf(format, args...)})
}

func (l *recordingLogger) Info(format string, args ...interface{})  { l.add("info", format, args...) }
func (l *recordingLogger) Debug(format string, args ...interface{}) { l.add("debug", format, args...) }
func (l *recordingLogger) Error(format string, args ...interface{}) { l.add("error", format, args...) }

func (l *recordingLogger) at(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e.msg)
		}
	}
	return out
}

type fakeLister struct {
	procs []ProcessInfo
	err   error
	calls int
}

func (f *fakeLister) ListProcesses(context.Context) ([]ProcessInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.procs, nil
}

var errListFailed = errors.New("process list unavailable")

func ap(s string) netip.AddrPort {
	return netip.MustParseAddrPort(s)
}

func tcp(local, remote string, state ConnState, pid uint32, name string) Connection {
	return Connection{
		Protocol:    ProtocolTCP,
		LocalAddr:   ap(local),
		RemoteAddr:  ap(remote),
		State:       state,
		PID:         pid,
		ProcessName: name,
	}
}

// conns builds n established connections from name to remote, on distinct
// local ports starting at base.
func conns(name string, pid uint32, remote string, n int, base uint16) []Connection {
	out := make([]Connection, n)
	for i := range out {
		out[i] = tcp(fmt.Sprintf("10.0.0.1:%d", base+uint16(i)), remote, StateEstablished, pid, name)
	}
	return out
}

func joined(lines []string) string {
	return strings.Join(lines, "\n")
}
