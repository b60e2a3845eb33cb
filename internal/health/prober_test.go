package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// serveHealth runs a /health endpoint on a loopback port and returns the port.
func serveHealth(t *testing.T, status *atomic.Int64) int {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	_, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("parse test server URL %s: %v", srv.URL, err)
	}
	port, _ := strconv.Atoi(portStr)
	return port
}

func TestConfigWithDefaults(t *testing.T) {
	c := Config{}.WithDefaults()
	if c.Interval != 30*time.Second || c.Timeout != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.FailureThreshold != 3 || c.SuccessThreshold != 2 {
		t.Fatalf("unexpected thresholds: %+v", c)
	}
	// explicit values survive
	c = Config{Interval: time.Second, FailureThreshold: 1}.WithDefaults()
	if c.Interval != time.Second || c.FailureThreshold != 1 {
		t.Fatalf("explicit values overwritten: %+v", c)
	}
}

func TestProbeOnce(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusOK)
	port := serveHealth(t, &status)
	p := NewProber(port, Config{})

	if !p.ProbeOnce(context.Background()) {
		t.Fatalf("expected healthy on 200")
	}
	status.Store(http.StatusNoContent)
	if !p.ProbeOnce(context.Background()) {
		t.Fatalf("expected healthy on any 2xx")
	}
	status.Store(http.StatusInternalServerError)
	if p.ProbeOnce(context.Background()) {
		t.Fatalf("expected unhealthy on 500")
	}
}

func TestProbeOnceConnectionRefused(t *testing.T) {
	// grab a port nobody listens on
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()

	p := NewProber(port, Config{Timeout: time.Second})
	if p.ProbeOnce(context.Background()) {
		t.Fatalf("expected unhealthy when nothing listens")
	}
}

func TestWaitUntilHealthy(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusServiceUnavailable)
	port := serveHealth(t, &status)
	p := NewProber(port, Config{})

	// flip to healthy shortly after the wait begins
	go func() {
		time.Sleep(700 * time.Millisecond)
		status.Store(http.StatusOK)
	}()
	start := time.Now()
	if err := p.WaitUntilHealthy(context.Background(), 10*time.Second); err != nil {
		t.Fatalf("WaitUntilHealthy: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("wait took too long: %v", time.Since(start))
	}
}

func TestWaitUntilHealthyTimeout(t *testing.T) {
	var status atomic.Int64
	status.Store(http.StatusServiceUnavailable)
	port := serveHealth(t, &status)
	p := NewProber(port, Config{})

	err := p.WaitUntilHealthy(context.Background(), 1200*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !strings.Contains(err.Error(), "health check timeout") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEndpoint(t *testing.T) {
	p := NewProber(8857, Config{})
	if got := p.Endpoint(); got != "http://localhost:8857/health" {
		t.Fatalf("Endpoint() = %q", got)
	}
}
