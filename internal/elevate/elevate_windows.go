//go:build windows

// Package elevate reports whether the monitor runs with the privileges it
// needs to see every connection owner.
package elevate

import (
	"golang.org/x/sys/windows"
)

// IsAdmin returns true if the current process has administrator privileges.
// Non-elevated processes still read the tables, but names of protected
// processes cannot be queried.
func IsAdmin() bool {
	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := windows.Token(0).IsMember(sid)
	if err != nil {
		return false
	}
	return member
}
