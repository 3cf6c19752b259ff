//go:build !windows

package procutil

import (
	"os"

	"golang.org/x/sys/unix"
)

// IsProcessAlive checks whether a process with the given pid is still running.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// GracefulTerminate sends SIGTERM to the process for graceful shutdown.
func GracefulTerminate(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}

// ForceKill sends SIGKILL to the process identified by pid.
func ForceKill(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}
