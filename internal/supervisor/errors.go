package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies supervisor failures. Callers branch on kinds rather than
// matching error strings.
type Kind int

const (
	KindOther Kind = iota
	KindDirectoryNotFound
	KindProcessSpawn
	KindStartupTimeout
	KindHealthCheckFailed
	KindNotRunning
	KindAlreadyRunning
	KindRestartLimitExceeded
	KindStopFailed
	KindIO
)

// Error is the single error type returned by supervisor operations.
type Error struct {
	Kind     Kind
	Detail   string
	Path     string        // DirectoryNotFound
	Duration time.Duration // StartupTimeout
	Current  int           // RestartLimitExceeded
	Max      int           // RestartLimitExceeded
	Err      error         // wrapped cause, if any
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindDirectoryNotFound:
		return fmt.Sprintf("sidecar directory not found: %s", e.Path)
	case KindProcessSpawn:
		return "failed to spawn process: " + e.Detail
	case KindStartupTimeout:
		return fmt.Sprintf("startup timeout after %v", e.Duration)
	case KindHealthCheckFailed:
		return "health check failed: " + e.Detail
	case KindNotRunning:
		return "sidecar is not running"
	case KindAlreadyRunning:
		return "sidecar is already running"
	case KindRestartLimitExceeded:
		return fmt.Sprintf("restart limit exceeded: %d/%d", e.Current, e.Max)
	case KindStopFailed:
		return "failed to stop process: " + e.Detail
	case KindIO:
		return "io error: " + e.Detail
	default:
		return e.Detail
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is match on kind so sentinel comparisons work across wraps.
func (e *Error) Is(target error) bool {
	var se *Error
	if !errors.As(target, &se) {
		return false
	}
	return e.Kind == se.Kind
}

// IsKind reports whether err (or any error it wraps) is a supervisor Error of
// the given kind.
func IsKind(err error, k Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == k
}

func errDirectoryNotFound(path string) *Error {
	return &Error{Kind: KindDirectoryNotFound, Path: path}
}

func errProcessSpawn(detail string, cause error) *Error {
	return &Error{Kind: KindProcessSpawn, Detail: detail, Err: cause}
}

func errStartupTimeout(d time.Duration, cause error) *Error {
	return &Error{Kind: KindStartupTimeout, Duration: d, Err: cause}
}

func errNotRunning() *Error { return &Error{Kind: KindNotRunning} }

func errAlreadyRunning() *Error { return &Error{Kind: KindAlreadyRunning} }

func errRestartLimitExceeded(current, max int) *Error {
	return &Error{Kind: KindRestartLimitExceeded, Current: current, Max: max}
}

func errStopFailed(detail string, cause error) *Error {
	return &Error{Kind: KindStopFailed, Detail: detail, Err: cause}
}

func errIO(cause error) *Error {
	return &Error{Kind: KindIO, Detail: cause.Error(), Err: cause}
}
