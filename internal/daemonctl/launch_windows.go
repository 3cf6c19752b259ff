//go:build windows

package daemonctl

import (
	"os/exec"
	"syscall"
)

// detachFromSession starts the daemon in its own process group so console
// Ctrl-C events in the submitting client never reach it.
func detachFromSession(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
