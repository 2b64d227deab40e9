//go:build linux

package sandbox

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

const isolationSupported = true

// isolationAttr enters a new network namespace. Unprivileged callers also
// get a user namespace mapping them to root, which is what permits the
// network namespace without CAP_SYS_ADMIN.
func isolationAttr(uid, gid int) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Cloneflags: unix.CLONE_NEWNET}
	if uid != 0 {
		attr.Cloneflags |= unix.CLONE_NEWUSER
		attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: uid, Size: 1}}
		attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: gid, Size: 1}}
		attr.GidMappingsEnableSetgroups = false
	}
	return attr
}

// isolationRefused reports whether a start failure came from the kernel
// refusing the namespace rather than from the program itself.
func isolationRefused(err error) bool {
	for _, errno := range []unix.Errno{unix.EPERM, unix.EINVAL, unix.ENOSYS, unix.EACCES, unix.EUSERS, unix.ENOSPC} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
