//go:build !windows

package runtime

import (
	"os"
	"syscall"
)

// ProcessAlive reports whether pid refers to a running process.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

// Terminate asks the process to stop with SIGTERM.
func Terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
