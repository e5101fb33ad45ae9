//go:build !windows

// Package elevate reports whether the monitor runs with the privileges it
// needs to see every connection owner.
package elevate

import "os"

// IsAdmin returns true if the current process is running as root. Without
// it /proc/<pid>/fd of other users' processes cannot be read, so their
// sockets have no owner.
func IsAdmin() bool {
	return os.Geteuid() == 0
}
