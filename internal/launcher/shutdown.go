package launcher

import (
	"errors"
	"syscall"
	"time"
)

// ShutdownOutcome is the definite result of the two-step shutdown protocol.
type ShutdownOutcome int

const (
	// ExitedGracefully means the process left within the grace period after
	// the graceful signal.
	ExitedGracefully ShutdownOutcome = iota
	// ForceKilled means the grace period expired and the process was killed.
	ForceKilled
	// WaitError means the graceful signal could not be delivered and the
	// process had to be killed outright.
	WaitError
)

func (o ShutdownOutcome) String() string {
	switch o {
	case ExitedGracefully:
		return "exited_gracefully"
	case ForceKilled:
		return "force_killed"
	default:
		return "wait_error"
	}
}

// Shutdown escalates: graceful signal first, then a forceful kill when the
// process does not exit within grace. waitDone must be closed by whichever
// goroutine owns the process's Wait; Shutdown itself never calls Wait so the
// single-waiter invariant holds. A process that already exited counts as a
// graceful exit. The post-kill wait is unbounded because a killed process
// always gets reaped by its waiter.
func Shutdown(pid int, waitDone <-chan struct{}, grace time.Duration) ShutdownOutcome {
	select {
	case <-waitDone:
		// already exited and reaped, nothing left to signal
		return ExitedGracefully
	default:
	}
	if err := terminate(pid); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			// lost the race with the exit itself, the waiter reaps it
			<-waitDone
			return ExitedGracefully
		}
		_ = forceKill(pid)
		<-waitDone
		return WaitError
	}
	select {
	case <-waitDone:
		return ExitedGracefully
	case <-time.After(grace):
	}
	_ = forceKill(pid)
	<-waitDone
	return ForceKilled
}
