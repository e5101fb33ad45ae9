package connmon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureProcesses(t *testing.T) {
	lister := &fakeLister{procs: []ProcessInfo{
		{PID: 4, Name: "System"},
		{PID: 880, Name: "svchost"},
		{PID: 900, Name: ""},
	}}

	table, err := CaptureProcesses(context.Background(), lister)
	require.NoError(t, err)

	name, ok := table.Resolve(880)
	assert.True(t, ok)
	assert.Equal(t, "svchost", name)

	_, ok = table.Resolve(900)
	assert.False(t, ok, "empty names do not resolve")

	_, ok = table.Resolve(12345)
	assert.False(t, ok)
}

func TestCaptureProcesses_Error(t *testing.T) {
	_, err := CaptureProcesses(context.Background(), &fakeLister{err: errListFailed})
	assert.ErrorIs(t, err, errListFailed)
}

func TestResolveNames(t *testing.T) {
	conns := []Connection{
		tcp("10.0.0.1:1", "1.1.1.1:80", StateEstablished, 10, ""),
		tcp("10.0.0.1:2", "1.1.1.1:80", StateEstablished, 11, ""),
	}
	lister := &fakeLister{procs: []ProcessInfo{{PID: 10, Name: "firefox"}}}

	resolveNames(conns, lister, &recordingLogger{})

	assert.Equal(t, "firefox", conns[0].ProcessName)
	assert.Empty(t, conns[1].ProcessName)
	assert.Equal(t, 1, lister.calls)
}

func TestResolveNames_SkipsEmptySnapshot(t *testing.T) {
	lister := &fakeLister{}
	resolveNames(nil, lister, &recordingLogger{})
	assert.Zero(t, lister.calls)
}

func TestSystemProcesses_ListsSelf(t *testing.T) {
	procs, err := SystemProcesses{}.ListProcesses(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, procs)
}
