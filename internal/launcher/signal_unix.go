//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

const npmCommand = "npm"

// shellCommand returns a shell command for Unix systems.
func shellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/sh", "-c", script)
}

// trueCommand returns a command that always succeeds on Unix systems.
func trueCommand() *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/true")
}

// setSysProcAttr places the child in its own process group so signals reach
// the whole sidecar tree (npm spawns the actual worker as a grandchild).
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate asks the sidecar's process group to exit gracefully.
func terminate(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// forceKill kills the sidecar's process group.
func forceKill(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
