//go:build windows

package runner

import (
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

// setProcAttributes creates the child in a new process group so the tree
// can be terminated as a unit.
func setProcAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminateTree kills the process and its descendants via taskkill, the
// only reliable tree termination on Windows without a job object.
func terminateTree(pid int) error {
	return exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).Run()
}

// isElevated reports whether the current token carries elevation.
func isElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
