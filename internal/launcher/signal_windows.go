//go:build windows

package launcher

import (
	"os/exec"
	"syscall"
)

const npmCommand = "npm.cmd"

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const processTerminate = 0x0001

// shellCommand returns a shell command for Windows systems.
func shellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", "/c", script)
}

// trueCommand returns a command that always succeeds on Windows systems.
func trueCommand() *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", "/c", "rem")
}

// setSysProcAttr creates a new process group for the child.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: 0x00000200} // CREATE_NEW_PROCESS_GROUP
}

// terminate has no graceful equivalent on Windows; TerminateProcess is used
// for both steps of the escalation.
func terminate(pid int) error { return terminateProcess(pid) }

// forceKill terminates the process.
func forceKill(pid int) error { return terminateProcess(pid) }

func terminateProcess(pid int) error {
	if pid <= 0 {
		return nil
	}
	handle, _, err := procOpenProcess.Call(uintptr(processTerminate), uintptr(0), uintptr(uint32(pid)))
	if handle == 0 {
		// Process already gone; treat as terminated.
		_ = err
		return nil
	}
	defer func() { _, _, _ = procCloseHandle.Call(handle) }()
	ret, _, err := procTerminateProcess.Call(handle, uintptr(1))
	if ret == 0 {
		return err
	}
	return nil
}
