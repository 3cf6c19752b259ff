//go:build !windows

package daemonctl

import (
	"os/exec"
	"syscall"
)

// detachFromSession puts the daemon in its own session so terminal-generated
// signals (Ctrl-C in the submitting client) never reach it.
func detachFromSession(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
