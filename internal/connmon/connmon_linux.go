//go:build linux

package connmon

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// procSource reads /proc/net and attributes sockets to processes through
// the socket inodes in /proc/<pid>/fd.
type procSource struct {
	root  string
	procs ProcessLister
	log   Logger
}

// NewSystemSource returns the /proc based source for this host.
func NewSystemSource(log Logger) (Source, error) {
	return &procSource{root: "/proc", procs: SystemProcesses{}, log: log}, nil
}

func (s *procSource) Snapshot(proto Protocol) []Connection {
	var name string
	switch proto {
	case ProtocolTCP:
		name = "tcp"
	case ProtocolUDP:
		name = "udp"
	default:
		s.log.Error("%v", fmt.Errorf("%w: %q", ErrUnknownProtocol, proto))
		return nil
	}

	f, err := os.Open(filepath.Join(s.root, "net", name))
	if err != nil {
		s.log.Error("%s connection table: %v", proto, err)
		return nil
	}
	defer f.Close()

	conns, err := parseProcNet(f, proto, socketOwners(s.root))
	if err != nil {
		s.log.Error("%s connection table: %v", proto, err)
	}

	resolveNames(conns, s.procs, s.log)
	return dedupe(conns)
}

// linuxStates maps the kernel's TCP state numbers (include/net/tcp_states.h).
var linuxStates = map[uint64]ConnState{
	0x01: StateEstablished,
	0x02: StateSynSent,
	0x03: StateSynReceived,
	0x04: StateFinWait1,
	0x05: StateFinWait2,
	0x06: StateTimeWait,
	0x07: StateClosed,
	0x08: StateCloseWait,
	0x09: StateLastAck,
	0x0A: StateListen,
	0x0B: StateClosing,
	0x0C: StateSynReceived, // TCP_NEW_SYN_RECV
}

// parseProcNet parses a /proc/net/{tcp,udp} table. owners maps socket
// inodes to pids; sockets with no owner keep pid 0.
func parseProcNet(r io.Reader, proto Protocol, owners map[uint64]uint32) ([]Connection, error) {
	var conns []Connection
	scanner := bufio.NewScanner(r)
	scanner.Scan() // skip header

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}

		local, err := parseHexAddrPort(fields[1])
		if err != nil {
			continue
		}
		remote, err := parseHexAddrPort(fields[2])
		if err != nil {
			continue
		}
		inode, _ := strconv.ParseUint(fields[9], 10, 64)

		c := Connection{
			Protocol:   proto,
			LocalAddr:  local,
			RemoteAddr: netip.AddrPortFrom(netip.IPv4Unspecified(), 0),
			PID:        owners[inode],
		}
		if proto == ProtocolTCP {
			stateVal, _ := strconv.ParseUint(fields[3], 16, 8)
			c.RemoteAddr = remote
			c.State = linuxStates[stateVal]
		}
		conns = append(conns, c)
	}

	return conns, scanner.Err()
}

func parseHexAddrPort(s string) (netip.AddrPort, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return netip.AddrPort{}, fmt.Errorf("invalid format: %s", s)
	}

	ipBytes, err := hex.DecodeString(parts[0])
	if err != nil || len(ipBytes) != 4 {
		return netip.AddrPort{}, fmt.Errorf("invalid ip: %s", parts[0])
	}

	// Linux stores IP in little-endian
	ip := netip.AddrFrom4([4]byte{ipBytes[3], ipBytes[2], ipBytes[1], ipBytes[0]})

	portVal, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid port: %s", parts[1])
	}

	return netip.AddrPortFrom(ip, uint16(portVal)), nil
}

// socketOwners maps socket inodes to the pid holding them. Processes whose
// fd directory cannot be read (exited, or owned by another user without
// privileges) are skipped.
func socketOwners(root string) map[uint64]uint32 {
	owners := make(map[uint64]uint32)

	entries, err := os.ReadDir(root)
	if err != nil {
		return owners
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}

		fdPath := filepath.Join(root, e.Name(), "fd")
		fds, err := os.ReadDir(fdPath)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdPath, fd.Name()))
			if err != nil || !strings.HasPrefix(link, "socket:[") {
				continue
			}
			inode, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(link, "socket:["), "]"), 10, 64)
			if err != nil {
				continue
			}
			if _, seen := owners[inode]; !seen {
				owners[inode] = uint32(pid)
			}
		}
	}

	return owners
}
