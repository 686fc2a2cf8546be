//go:build !linux

package sampler

// Only Linux needs the interrupted-syscall restart workaround.
func restartSyscall(*Context) {}
