package connmon

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("monitor already started")
	ErrStopped        = errors.New("monitor stopped")
)

// ReportSink receives every report the monitor produces, after it is logged.
type ReportSink interface {
	Record(at time.Time, proto Protocol, report Report) error
}

// Settings control the monitor cycle.
type Settings struct {
	MinimumConnectionCount int
	Interval               time.Duration
	Protocols              []Protocol
}

// Validate checks the settings before a monitor starts.
func (s Settings) Validate() error {
	if s.MinimumConnectionCount < 1 {
		return fmt.Errorf("minimum connection count must be positive, got %d", s.MinimumConnectionCount)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", s.Interval)
	}
	if len(s.Protocols) == 0 {
		return fmt.Errorf("at least one protocol is required")
	}
	for _, p := range s.Protocols {
		if _, err := layoutFor(p); err != nil {
			return err
		}
	}
	return nil
}

type monitorState int

const (
	stateIdle monitorState = iota
	stateRunning
	stateStopped
)

// Monitor runs snapshot cycles on a one-shot timer that is re-armed only
// after a cycle completes, so cycles never overlap. The next cycle starts
// Interval after the previous one ended.
type Monitor struct {
	mu      sync.Mutex // guards state and timer
	state   monitorState
	timer   *time.Timer
	cycleMu sync.Mutex // held for the whole of a cycle
	stopped atomic.Bool
	cycles  atomic.Uint64

	source   Source
	settings Settings
	log      Logger
	sinks    []ReportSink
	now      func() time.Time
}

// NewMonitor creates an idle monitor.
func NewMonitor(source Source, settings Settings, log Logger, sinks ...ReportSink) *Monitor {
	return &Monitor{
		source:   source,
		settings: settings,
		log:      log,
		sinks:    sinks,
		now:      time.Now,
	}
}

// Start validates the settings and arms the first cycle.
func (m *Monitor) Start() error {
	if err := m.settings.Validate(); err != nil {
		return fmt.Errorf("invalid monitor settings: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrStopped
	}
	m.state = stateRunning

	m.log.Info("Start MinimumConnectionCount=%d MonitorInterval=%s Protocols=%v",
		m.settings.MinimumConnectionCount, m.settings.Interval, m.settings.Protocols)

	m.timer = time.AfterFunc(m.settings.Interval, m.fire)
	return nil
}

// Stop prevents further cycles. A cycle already running is allowed to
// finish; Stop returns after it has.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state == stateStopped {
		m.mu.Unlock()
		return
	}
	m.state = stateStopped
	m.stopped.Store(true)
	if m.timer != nil {
		m.timer.Stop()
	}
	m.mu.Unlock()

	// Wait for an in-flight cycle.
	m.cycleMu.Lock()
	m.cycleMu.Unlock() //nolint:staticcheck

	m.log.Info("Stop after %d cycles", m.Cycles())
}

// Cycles returns the number of completed cycles.
func (m *Monitor) Cycles() uint64 {
	return m.cycles.Load()
}

// RunOnce runs a single cycle synchronously.
func (m *Monitor) RunOnce() {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	m.runCycle()
}

func (m *Monitor) fire() {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	if m.stopped.Load() {
		return
	}
	m.runCycle()
	m.rearm()
}

func (m *Monitor) rearm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped.Load() || m.timer == nil {
		return
	}
	m.timer.Reset(m.settings.Interval)
}

func (m *Monitor) runCycle() {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Timer error: cycle panic: %v\n%s", r, debug.Stack())
		}
		m.cycles.Add(1)
	}()

	for _, proto := range m.settings.Protocols {
		conns := m.source.Snapshot(proto)
		report := Aggregate(conns, m.settings.MinimumConnectionCount)

		m.log.Info("%s totals (%d connections, %d processes at or above %d):\n%s",
			proto, len(conns), len(report.Groups), m.settings.MinimumConnectionCount, report.TotalsText())
		m.log.Debug("%s connections:\n%s", proto, report.DetailText())

		at := m.now()
		for _, sink := range m.sinks {
			if err := sink.Record(at, proto, report); err != nil {
				m.log.Error("Timer error: failed to record %s report: %v", proto, err)
			}
		}
	}
}
