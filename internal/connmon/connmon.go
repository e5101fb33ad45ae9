// Package connmon samples the system TCP/UDP connection tables, attributes
// every connection to its owning process and reports processes that hold an
// unusual number of connections.
//
// Files:
// - types.go: Protocol, ConnState, Connection
// - layout.go: owner-pid table byte layout and decoder
// - reader.go: size-negotiated table reader
// - process.go: pid to process name resolution
// - aggregate.go: grouping, thresholds and report views
// - monitor.go: periodic, non-overlapping cycle scheduler
// - connmon_<os>.go: platform connection sources
package connmon

// Source returns a point-in-time snapshot of one connection table.
// Implementations never fail: problems are logged and yield an empty or
// partial snapshot.
type Source interface {
	Snapshot(proto Protocol) []Connection
}

// Logger is the log sink the monitor writes to.
type Logger interface {
	Info(format string, args ...interface{})
	Debug(format string, args ...interface{})
	Error(format string, args ...interface{})
}
