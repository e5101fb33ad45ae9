package connmon

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// processListTimeout bounds one enumeration of the live process list.
const processListTimeout = 10 * time.Second

// ProcessInfo is one entry of the live process list.
type ProcessInfo struct {
	PID  uint32
	Name string
}

// ProcessLister enumerates running processes.
type ProcessLister interface {
	ListProcesses(ctx context.Context) ([]ProcessInfo, error)
}

// Resolver maps a pid to a process name. ok is false when no such process
// exists, which is not an error.
type Resolver interface {
	Resolve(pid uint32) (name string, ok bool)
}

// ProcessTable is one capture of the live process list.
type ProcessTable map[uint32]string

// Resolve looks pid up in the captured list.
func (t ProcessTable) Resolve(pid uint32) (string, bool) {
	name, ok := t[pid]
	return name, ok && name != ""
}

// CaptureProcesses takes a snapshot of the process list.
func CaptureProcesses(ctx context.Context, lister ProcessLister) (ProcessTable, error) {
	procs, err := lister.ListProcesses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	table := make(ProcessTable, len(procs))
	for _, p := range procs {
		table[p.PID] = p.Name
	}
	return table, nil
}

// resolveNames captures the process list once and names every connection
// from it. A failed capture leaves all connections unresolved.
func resolveNames(conns []Connection, lister ProcessLister, log Logger) {
	if len(conns) == 0 || lister == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), processListTimeout)
	defer cancel()

	table, err := CaptureProcesses(ctx, lister)
	if err != nil {
		log.Error("Process name resolution skipped: %v", err)
		return
	}

	for i := range conns {
		if name, ok := table.Resolve(conns[i].PID); ok {
			conns[i].ProcessName = name
		}
	}
}

// SystemProcesses lists processes of the local host.
type SystemProcesses struct{}

// ListProcesses returns every process whose name could be read. Processes
// that exit while the list is walked are skipped.
func (SystemProcesses) ListProcesses(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		out = append(out, ProcessInfo{PID: uint32(p.Pid), Name: displayName(name)})
	}
	return out, nil
}

// displayName strips the executable suffix Windows reports with image names.
func displayName(name string) string {
	if runtime.GOOS == "windows" {
		return strings.TrimSuffix(name, ".exe")
	}
	return name
}
