package connmon

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// ErrTruncatedTable is returned when a table claims more rows than its buffer holds.
var ErrTruncatedTable = errors.New("connection table truncated")

// LayoutVersion identifies the byte layout below. Bump it when a field moves.
const LayoutVersion = 1

// tableLayout describes an owner-pid table as returned by the IP helper API:
// a little-endian DWORD entry count followed by fixed-stride rows.
//
// Addresses are stored in network byte order. Ports occupy a DWORD whose low
// two bytes hold the port in network byte order; the upper two are unused.
type tableLayout struct {
	firstRow   int // offset of row 0, i.e. the padded width of the count field
	stride     int
	state      int // -1 when the table has no state column
	localAddr  int
	localPort  int
	remoteAddr int // -1 when the table has no remote end
	remotePort int
	pid        int
}

var (
	// MIB_TCPTABLE_OWNER_PID / MIB_TCPROW_OWNER_PID
	tcpLayout = tableLayout{
		firstRow:   4,
		stride:     24,
		state:      0,
		localAddr:  4,
		localPort:  8,
		remoteAddr: 12,
		remotePort: 16,
		pid:        20,
	}

	// MIB_UDPTABLE_OWNER_PID / MIB_UDPROW_OWNER_PID
	udpLayout = tableLayout{
		firstRow:   4,
		stride:     12,
		state:      -1,
		localAddr:  0,
		localPort:  4,
		remoteAddr: -1,
		remotePort: -1,
		pid:        8,
	}
)

func layoutFor(proto Protocol) (tableLayout, error) {
	switch proto {
	case ProtocolTCP:
		return tcpLayout, nil
	case ProtocolUDP:
		return udpLayout, nil
	}
	return tableLayout{}, fmt.Errorf("%w: %q", ErrUnknownProtocol, proto)
}

// TableSize returns the byte size of a table holding n rows.
func TableSize(proto Protocol, n int) (int, error) {
	l, err := layoutFor(proto)
	if err != nil {
		return 0, err
	}
	return l.firstRow + n*l.stride, nil
}

// DecodeTable decodes an owner-pid table buffer.
//
// Exactly as many rows as the count field announces are decoded; trailing
// bytes are ignored. If the buffer ends early the rows that fit are returned
// together with ErrTruncatedTable.
func DecodeTable(proto Protocol, buf []byte) ([]Connection, error) {
	l, err := layoutFor(proto)
	if err != nil {
		return nil, err
	}
	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: %d bytes, no entry count", ErrTruncatedTable, len(buf))
	}

	count := binary.LittleEndian.Uint32(buf[0:4])
	conns := make([]Connection, 0, min(int(count), (len(buf)-4)/l.stride+1))

	for i := uint32(0); i < count; i++ {
		off := l.firstRow + int(i)*l.stride
		if off+l.stride > len(buf) {
			return conns, fmt.Errorf("%w: row %d of %d needs %d bytes, have %d",
				ErrTruncatedTable, i, count, off+l.stride, len(buf))
		}
		conns = append(conns, l.decodeRow(proto, buf[off:off+l.stride]))
	}

	return conns, nil
}

func (l tableLayout) decodeRow(proto Protocol, row []byte) Connection {
	c := Connection{
		Protocol:   proto,
		LocalAddr:  netip.AddrPortFrom(addrAt(row, l.localAddr), portAt(row, l.localPort)),
		RemoteAddr: netip.AddrPortFrom(netip.IPv4Unspecified(), 0),
		PID:        binary.LittleEndian.Uint32(row[l.pid:]),
	}
	if l.state >= 0 {
		c.State = ConnState(binary.LittleEndian.Uint32(row[l.state:]))
	}
	if l.remoteAddr >= 0 {
		c.RemoteAddr = netip.AddrPortFrom(addrAt(row, l.remoteAddr), portAt(row, l.remotePort))
	}
	return c
}

func addrAt(row []byte, off int) netip.Addr {
	return netip.AddrFrom4([4]byte(row[off : off+4]))
}

// portAt swaps the two low bytes of a port DWORD into host order.
func portAt(row []byte, off int) uint16 {
	return uint16(row[off])<<8 | uint16(row[off+1])
}

// EncodeTable builds a table buffer in the same layout DecodeTable reads.
// ProcessName is not part of the layout and is dropped.
func EncodeTable(proto Protocol, conns []Connection) ([]byte, error) {
	l, err := layoutFor(proto)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, l.firstRow+len(conns)*l.stride)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(conns)))

	for i, c := range conns {
		row := buf[l.firstRow+i*l.stride:]
		putAddrPort(row, l.localAddr, l.localPort, c.LocalAddr)
		binary.LittleEndian.PutUint32(row[l.pid:], c.PID)
		if l.state >= 0 {
			binary.LittleEndian.PutUint32(row[l.state:], uint32(c.State))
		}
		if l.remoteAddr >= 0 {
			putAddrPort(row, l.remoteAddr, l.remotePort, c.RemoteAddr)
		}
	}

	return buf, nil
}

func putAddrPort(row []byte, addrOff, portOff int, ap netip.AddrPort) {
	a := ap.Addr().Unmap()
	if a.Is4() {
		b := a.As4()
		copy(row[addrOff:addrOff+4], b[:])
	}
	row[portOff] = byte(ap.Port() >> 8)
	row[portOff+1] = byte(ap.Port())
}
