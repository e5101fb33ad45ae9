//go:build windows

package connmon

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modIphlpapi             = windows.NewLazySystemDLL("iphlpapi.dll")
	procGetExtendedTcpTable = modIphlpapi.NewProc("GetExtendedTcpTable")
	procGetExtendedUdpTable = modIphlpapi.NewProc("GetExtendedUdpTable")
)

const (
	tcpTableOwnerPidAll = 5
	udpTableOwnerPid    = 1
	afInet              = 2
)

// MIB_TCPROW_OWNER_PID
type tcpRowOwnerPID struct {
	State      uint32
	LocalAddr  uint32
	LocalPort  [4]byte
	RemoteAddr uint32
	RemotePort [4]byte
	OwningPid  uint32
}

// MIB_TCPTABLE_OWNER_PID, declared with its one-row ANYSIZE_ARRAY.
type tcpTableOwnerPID struct {
	NumEntries uint32
	Table      [1]tcpRowOwnerPID
}

// MIB_UDPROW_OWNER_PID
type udpRowOwnerPID struct {
	LocalAddr uint32
	LocalPort [4]byte
	OwningPid uint32
}

// MIB_UDPTABLE_OWNER_PID
type udpTableOwnerPID struct {
	NumEntries uint32
	Table      [1]udpRowOwnerPID
}

// checkLayout compares the decoder's offsets with the native struct layout
// the compiler produces for this target.
func checkLayout() error {
	var tcp tcpTableOwnerPID
	var udp udpTableOwnerPID
	checks := []struct {
		name      string
		got, want int
	}{
		{"tcp first row", int(unsafe.Offsetof(tcp.Table)), tcpLayout.firstRow},
		{"tcp row size", int(unsafe.Sizeof(tcp.Table[0])), tcpLayout.stride},
		{"tcp remote port", int(unsafe.Offsetof(tcp.Table[0].RemotePort)), tcpLayout.remotePort},
		{"tcp owning pid", int(unsafe.Offsetof(tcp.Table[0].OwningPid)), tcpLayout.pid},
		{"udp first row", int(unsafe.Offsetof(udp.Table)), udpLayout.firstRow},
		{"udp row size", int(unsafe.Sizeof(udp.Table[0])), udpLayout.stride},
		{"udp owning pid", int(unsafe.Offsetof(udp.Table[0].OwningPid)), udpLayout.pid},
	}
	for _, c := range checks {
		if c.got != c.want {
			return fmt.Errorf("table layout v%d mismatch: %s is %d, decoder expects %d",
				LayoutVersion, c.name, c.got, c.want)
		}
	}
	return nil
}

// iphlpQuerier reads owner-pid tables through GetExtendedTcpTable and
// GetExtendedUdpTable.
type iphlpQuerier struct{}

func (iphlpQuerier) QuerySize(proto Protocol) (int, error) {
	proc, class, err := tableProc(proto)
	if err != nil {
		return 0, err
	}
	if err := proc.Find(); err != nil {
		return 0, err
	}

	var size uint32
	ret, _, _ := proc.Call(0, uintptr(unsafe.Pointer(&size)), 1, afInet, class, 0)
	if ret != 0 && ret != uintptr(windows.ERROR_INSUFFICIENT_BUFFER) {
		return 0, fmt.Errorf("%s size query failed: %d", proc.Name, ret)
	}
	return int(size), nil
}

func (iphlpQuerier) QueryFill(proto Protocol, buf []byte, size int) uint32 {
	proc, class, err := tableProc(proto)
	if err != nil || len(buf) < size || size == 0 {
		return uint32(windows.ERROR_INVALID_PARAMETER)
	}

	n := uint32(size)
	ret, _, _ := proc.Call(uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&n)), 1, afInet, class, 0)
	return uint32(ret)
}

func tableProc(proto Protocol) (*windows.LazyProc, uintptr, error) {
	switch proto {
	case ProtocolTCP:
		return procGetExtendedTcpTable, tcpTableOwnerPidAll, nil
	case ProtocolUDP:
		return procGetExtendedUdpTable, udpTableOwnerPid, nil
	}
	return nil, 0, fmt.Errorf("%w: %q", ErrUnknownProtocol, proto)
}

// NewSystemSource returns the IP helper table reader for this host.
func NewSystemSource(log Logger) (Source, error) {
	if err := checkLayout(); err != nil {
		return nil, err
	}
	return NewTableReader(iphlpQuerier{}, SystemProcesses{}, log), nil
}
