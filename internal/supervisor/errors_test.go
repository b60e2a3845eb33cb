package supervisor

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{errDirectoryNotFound("/srv/worker"), "sidecar directory not found: /srv/worker"},
		{errProcessSpawn("npm not found", nil), "failed to spawn process: npm not found"},
		{errStartupTimeout(30*time.Second, nil), "startup timeout after 30s"},
		{errNotRunning(), "sidecar is not running"},
		{errAlreadyRunning(), "sidecar is already running"},
		{errRestartLimitExceeded(5, 5), "restart limit exceeded: 5/5"},
		{errStopFailed("signal failed", nil), "failed to stop process: signal failed"},
	}
	for _, c := range cases {
		if got := c.err.Error(); got != c.want {
			t.Fatalf("Error() = %q, want %q", got, c.want)
		}
	}
}

func TestIsKind(t *testing.T) {
	err := errStartupTimeout(time.Second, errors.New("probe: connection refused"))
	if !IsKind(err, KindStartupTimeout) {
		t.Fatalf("kind not detected")
	}
	if IsKind(err, KindNotRunning) {
		t.Fatalf("wrong kind matched")
	}
	// detection survives wrapping
	wrapped := fmt.Errorf("start: %w", err)
	if !IsKind(wrapped, KindStartupTimeout) {
		t.Fatalf("kind lost through wrap")
	}
	if IsKind(errors.New("plain"), KindStartupTimeout) {
		t.Fatalf("plain error must not match")
	}
	if IsKind(nil, KindStartupTimeout) {
		t.Fatalf("nil must not match")
	}
}

func TestErrorsIsMatchesOnKind(t *testing.T) {
	a := errRestartLimitExceeded(3, 5)
	b := errRestartLimitExceeded(5, 5)
	if !errors.Is(a, b) {
		t.Fatalf("same-kind errors should match")
	}
	if errors.Is(a, errNotRunning()) {
		t.Fatalf("different kinds must not match")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("exec: \"npm\": executable file not found")
	err := errProcessSpawn(cause.Error(), cause)
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable via Unwrap")
	}
	if !strings.Contains(err.Error(), "executable file not found") {
		t.Fatalf("detail missing from message: %v", err)
	}
}
