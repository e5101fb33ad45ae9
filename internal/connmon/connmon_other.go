//go:build !windows && !linux

package connmon

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	gnet "github.com/shirou/gopsutil/v4/net"
)

const netQueryTimeout = 10 * time.Second

// netSource reads connections through gopsutil, which shells out to or
// queries the kernel as each Unix flavor requires.
type netSource struct {
	procs ProcessLister
	log   Logger
}

// NewSystemSource returns the gopsutil based source for this host.
func NewSystemSource(log Logger) (Source, error) {
	return &netSource{procs: SystemProcesses{}, log: log}, nil
}

func (s *netSource) Snapshot(proto Protocol) []Connection {
	var kind string
	switch proto {
	case ProtocolTCP:
		kind = "tcp4"
	case ProtocolUDP:
		kind = "udp4"
	default:
		s.log.Error("%v", fmt.Errorf("%w: %q", ErrUnknownProtocol, proto))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), netQueryTimeout)
	defer cancel()

	stats, err := gnet.ConnectionsWithContext(ctx, kind)
	if err != nil {
		s.log.Error("%s connection table: %v", proto, err)
		return nil
	}

	conns := make([]Connection, 0, len(stats))
	for _, st := range stats {
		local, err := statAddrPort(st.Laddr)
		if err != nil {
			continue
		}
		c := Connection{
			Protocol:   proto,
			LocalAddr:  local,
			RemoteAddr: netip.AddrPortFrom(netip.IPv4Unspecified(), 0),
			PID:        uint32(st.Pid),
		}
		if proto == ProtocolTCP {
			if remote, err := statAddrPort(st.Raddr); err == nil {
				c.RemoteAddr = remote
			}
			c.State = ParseState(st.Status)
		}
		conns = append(conns, c)
	}

	resolveNames(conns, s.procs, s.log)
	return dedupe(conns)
}

func statAddrPort(a gnet.Addr) (netip.AddrPort, error) {
	if a.IP == "" || a.IP == "*" {
		return netip.AddrPortFrom(netip.IPv4Unspecified(), uint16(a.Port)), nil
	}
	ip, err := netip.ParseAddr(a.IP)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(ip.Unmap(), uint16(a.Port)), nil
}
