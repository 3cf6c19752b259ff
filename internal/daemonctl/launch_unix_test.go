//go:build !windows

package daemonctl

import (
	"os/exec"
	"testing"
)

func TestDetachFromSessionRequestsOwnSession(t *testing.T) {
	cmd := exec.Command("true")
	detachFromSession(cmd)
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setsid {
		t.Fatal("expected launched daemon to run in its own session")
	}
}
