//go:build !windows

package main

import "errors"

// isService is always false outside Windows; systemd and launchd run the
// foreground mode directly.
func isService() bool {
	return false
}

func runService(string, bool) error {
	return errors.New("service mode is only available on Windows")
}
