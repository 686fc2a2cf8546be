//go:build linux

package sampler

import (
	"golang.org/x/sys/unix"
)

// restartSyscall flags an interrupted system call for restart. On Linux a
// sampling signal can land while the target thread is blocked in a call
// such as poll, which then fails with EINTR instead of resuming; marking
// the context restarted lets the capture path resume the call rather than
// surface the error.
func restartSyscall(ctx *Context) {
	if ctx.Errno == unix.EINTR {
		ctx.Errno = 0
		ctx.Restarted = true
	}
}
