//go:build linux

package connmon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const procNetTCP = `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 0100007F:0CEA 00000000:0000 0A 00000000:00000000 00:00000000 00000000   999        0 555 1 0000000000000000 100 0 0 10 0
   1: 0F02000A:C350 22D8B85D:01BB 01 00000000:00000000 02:000A7214 00000000  1000        0 556 2 0000000000000000 20 4 30 10 -1
   2: garbage
`

const procNetUDP = `   sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode ref pointer drops
  123: 00000000:14E9 00000000:0000 07 00000000:00000000 00:00000000 00000000   101        0 777 2 0000000000000000 0
`

func TestParseProcNet_TCP(t *testing.T) {
	got, err := parseProcNet(strings.NewReader(procNetTCP), ProtocolTCP, map[uint64]uint32{556: 4321})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, Connection{
		Protocol:   ProtocolTCP,
		LocalAddr:  ap("127.0.0.1:3306"),
		RemoteAddr: ap("0.0.0.0:0"),
		State:      StateListen,
	}, got[0])
	assert.Equal(t, Connection{
		Protocol:   ProtocolTCP,
		LocalAddr:  ap("10.0.2.15:50000"),
		RemoteAddr: ap("93.184.216.34:443"),
		State:      StateEstablished,
		PID:        4321,
	}, got[1])
}

func TestParseProcNet_UDP(t *testing.T) {
	got, err := parseProcNet(strings.NewReader(procNetUDP), ProtocolUDP, map[uint64]uint32{777: 9})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, ap("0.0.0.0:5353"), got[0].LocalAddr)
	assert.Equal(t, StateNone, got[0].State)
	assert.Equal(t, uint32(9), got[0].PID)
}

// fakeProc lays out a minimal /proc tree under t.TempDir.
func fakeProc(t *testing.T, sockets map[string][]string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "net"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "net", "tcp"), []byte(procNetTCP), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "net", "udp"), []byte(procNetUDP), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "self"), 0755))

	for pid, links := range sockets {
		fd := filepath.Join(root, pid, "fd")
		require.NoError(t, os.MkdirAll(fd, 0755))
		for i, link := range links {
			require.NoError(t, os.Symlink(link, filepath.Join(fd, string(rune('3'+i)))))
		}
	}
	return root
}

func TestSocketOwners(t *testing.T) {
	root := fakeProc(t, map[string][]string{
		"100": {"socket:[555]", "/dev/null", "pipe:[9]"},
		"200": {"socket:[556]", "socket:[777]"},
	})

	owners := socketOwners(root)

	assert.Equal(t, map[uint64]uint32{555: 100, 556: 200, 777: 200}, owners)
}

func TestProcSource_Snapshot(t *testing.T) {
	root := fakeProc(t, map[string][]string{
		"100": {"socket:[555]"},
		"200": {"socket:[556]"},
	})
	lister := &fakeLister{procs: []ProcessInfo{{PID: 100, Name: "mysqld"}}}
	log := &recordingLogger{}
	src := &procSource{root: root, procs: lister, log: log}

	got := src.Snapshot(ProtocolTCP)

	require.Len(t, got, 2)
	assert.Equal(t, "mysqld", got[0].ProcessName)
	assert.Equal(t, uint32(200), got[1].PID)
	assert.Empty(t, got[1].ProcessName)
	assert.Empty(t, log.at("error"))

	assert.Nil(t, src.Snapshot(Protocol("RAW")))
	assert.Len(t, log.at("error"), 1)
}

func TestProcSource_MissingTable(t *testing.T) {
	log := &recordingLogger{}
	src := &procSource{root: t.TempDir(), log: log}

	assert.Empty(t, src.Snapshot(ProtocolUDP))
	assert.Len(t, log.at("error"), 1)
}
