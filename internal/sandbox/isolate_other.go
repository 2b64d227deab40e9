//go:build !linux

package sandbox

import "syscall"

const isolationSupported = false

func isolationAttr(uid, gid int) *syscall.SysProcAttr { return nil }

func isolationRefused(err error) bool { return false }
