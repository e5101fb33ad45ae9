package connmon

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// Protocol is the transport whose connection table is read.
type Protocol string

const (
	ProtocolTCP Protocol = "TCP"
	ProtocolUDP Protocol = "UDP"
)

// ErrUnknownProtocol is returned for a protocol other than TCP or UDP.
var ErrUnknownProtocol = errors.New("unknown protocol")

// ParseProtocol parses a case-insensitive protocol name.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TCP":
		return ProtocolTCP, nil
	case "UDP":
		return ProtocolUDP, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
}

// ConnState represents the state of a TCP connection (MIB_TCP_STATE codes).
type ConnState int

const (
	StateNone        ConnState = 0
	StateClosed      ConnState = 1
	StateListen      ConnState = 2
	StateSynSent     ConnState = 3
	StateSynReceived ConnState = 4
	StateEstablished ConnState = 5
	StateFinWait1    ConnState = 6
	StateFinWait2    ConnState = 7
	StateCloseWait   ConnState = 8
	StateClosing     ConnState = 9
	StateLastAck     ConnState = 10
	StateTimeWait    ConnState = 11
	StateDeleteTCB   ConnState = 12
)

var stateNames = map[ConnState]string{
	StateNone:        "NONE",
	StateClosed:      "CLOSED",
	StateListen:      "LISTENING",
	StateSynSent:     "SYN_SENT",
	StateSynReceived: "SYN_RCVD",
	StateEstablished: "ESTABLISHED",
	StateFinWait1:    "FIN_WAIT1",
	StateFinWait2:    "FIN_WAIT2",
	StateCloseWait:   "CLOSE_WAIT",
	StateClosing:     "CLOSING",
	StateLastAck:     "LAST_ACK",
	StateTimeWait:    "TIME_WAIT",
	StateDeleteTCB:   "DELETE_TCB",
}

// String returns a human-readable name for the connection state.
func (s ConnState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// ParseState maps the state spellings used by netstat, ss and gopsutil.
// Unrecognized text maps to StateNone.
func ParseState(s string) ConnState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ESTABLISHED":
		return StateEstablished
	case "SYN_SENT":
		return StateSynSent
	case "SYN_RECEIVED", "SYN_RECV", "SYN_RCVD":
		return StateSynReceived
	case "FIN_WAIT_1", "FIN_WAIT1":
		return StateFinWait1
	case "FIN_WAIT_2", "FIN_WAIT2":
		return StateFinWait2
	case "TIME_WAIT":
		return StateTimeWait
	case "CLOSE_WAIT":
		return StateCloseWait
	case "LAST_ACK":
		return StateLastAck
	case "CLOSING":
		return StateClosing
	case "LISTEN", "LISTENING":
		return StateListen
	case "CLOSED", "CLOSE":
		return StateClosed
	case "DELETE_TCB", "DELETE":
		return StateDeleteTCB
	default:
		return StateNone
	}
}

// Connection is one row of a connection table snapshot.
//
// The struct is comparable and its whole value is the identity used to
// collapse duplicate rows.
type Connection struct {
	Protocol    Protocol
	LocalAddr   netip.AddrPort
	RemoteAddr  netip.AddrPort // unspecified for UDP
	State       ConnState      // only meaningful for TCP
	PID         uint32
	ProcessName string // empty when the owner could not be resolved
}

// Endpoint returns the address a connection is counted against: the remote
// end for TCP and the bound local end for UDP, which has no peer.
func (c Connection) Endpoint() netip.AddrPort {
	if c.Protocol == ProtocolUDP {
		return c.LocalAddr
	}
	return c.RemoteAddr
}

// dedupe drops exact duplicates, keeping the first occurrence.
func dedupe(conns []Connection) []Connection {
	seen := make(map[Connection]struct{}, len(conns))
	out := conns[:0]
	for _, c := range conns {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
