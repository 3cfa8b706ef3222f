//go:build !windows

package runner

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// setProcAttributes places the child in its own process group so the
// whole tree can be signalled at once.
func setProcAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateTree kills the process and its descendants: SIGTERM to the
// process group first, then SIGKILL after a short grace period.
func terminateTree(pid int) error {
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		// Process already gone or never grouped; fall back to the pid.
		pgid = pid
	}
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return err
	}

	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			if syscall.Kill(-pgid, 0) == syscall.ESRCH {
				return nil
			}
		case <-deadline:
			err := syscall.Kill(-pgid, syscall.SIGKILL)
			if err == syscall.ESRCH {
				return nil
			}
			return err
		}
	}
}

// isElevated reports whether the engine runs with admin privileges.
func isElevated() bool {
	return os.Geteuid() == 0
}
