package connmon

import (
	"fmt"
	"strings"
)

// UnresolvedProcess is the group key for connections whose owner could not
// be named.
const UnresolvedProcess = "<unresolved>"

// Group holds the connections of one process, ordered by endpoint port.
type Group struct {
	Process string
	Conns   []Connection
}

// PortCount is the number of connections a process holds to one port.
type PortCount struct {
	Port  uint16
	Count int
}

// ProcessTotals lists the ports of one process that exceed the threshold.
type ProcessTotals struct {
	Process string
	Ports   []PortCount
}

// Report is the result of aggregating one snapshot.
type Report struct {
	Groups []Group         // processes with at least the minimum connection count
	Totals []ProcessTotals // ports with strictly more than the minimum, per process
}

// Aggregate groups conns by process and applies minimumConnectionCount
// twice: a process is reported when it holds at least that many
// connections, and one of its ports is totalled only when it holds strictly
// more.
func Aggregate(conns []Connection, minimumConnectionCount int) Report {
	byProcess := make(map[string][]Connection)
	for _, c := range conns {
		key := groupKey(c)
		byProcess[key] = append(byProcess[key], c)
	}

	var report Report
	for name, members := range byProcess {
		if len(members) < minimumConnectionCount {
			continue
		}
		report.Groups = append(report.Groups, Group{Process: name, Conns: members})
	}
	sortGroups(report.Groups)

	for i := range report.Groups {
		g := &report.Groups[i]
		if ports := portTotals(g.Conns, minimumConnectionCount); len(ports) > 0 {
			report.Totals = append(report.Totals, ProcessTotals{Process: g.Process, Ports: ports})
		}
		sortByEndpointPort(g.Conns)
	}

	return report
}

// portTotals counts connections per endpoint port in first-seen order and
// keeps the ports above the threshold.
func portTotals(conns []Connection, minimumConnectionCount int) []PortCount {
	index := make(map[uint16]int)
	var counts []PortCount
	for _, c := range conns {
		port := c.Endpoint().Port()
		i, ok := index[port]
		if !ok {
			i = len(counts)
			index[port] = i
			counts = append(counts, PortCount{Port: port})
		}
		counts[i].Count++
	}

	kept := counts[:0]
	for _, pc := range counts {
		if pc.Count > minimumConnectionCount {
			kept = append(kept, pc)
		}
	}
	return kept
}

func groupKey(c Connection) string {
	if c.ProcessName == "" {
		return UnresolvedProcess
	}
	return c.ProcessName
}

// DetailLines renders one line per connection:
// name=remoteAddress:remotePort STATE.
func (r Report) DetailLines() []string {
	var lines []string
	for _, g := range r.Groups {
		for _, c := range g.Conns {
			ep := c.Endpoint()
			lines = append(lines, fmt.Sprintf("%s=%s:%d %s", g.Process, ep.Addr(), ep.Port(), c.State))
		}
	}
	return lines
}

// TotalsLines renders one line per process: name80=12, name443=7.
func (r Report) TotalsLines() []string {
	lines := make([]string, 0, len(r.Totals))
	for _, t := range r.Totals {
		name := compactName(t.Process)
		parts := make([]string, len(t.Ports))
		for i, pc := range t.Ports {
			parts[i] = fmt.Sprintf("%s%d=%d", name, pc.Port, pc.Count)
		}
		lines = append(lines, strings.Join(parts, ", "))
	}
	return lines
}

// DetailText joins DetailLines with newlines.
func (r Report) DetailText() string {
	return strings.Join(r.DetailLines(), "\n")
}

// TotalsText joins TotalsLines with newlines.
func (r Report) TotalsText() string {
	return strings.Join(r.TotalsLines(), "\n")
}

// compactName drops separators so a name and a port read as one token.
func compactName(name string) string {
	return strings.ReplaceAll(name, ".", "")
}

// Summarize returns the detail and totals views of a snapshot.
func Summarize(conns []Connection, minimumConnectionCount int) (detail, totals []string) {
	r := Aggregate(conns, minimumConnectionCount)
	return r.DetailLines(), r.TotalsLines()
}
