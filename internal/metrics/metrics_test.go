package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotent(t *testing.T) {
	r := prometheus.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// second call is a no-op
	if err := Register(r); err != nil {
		t.Fatalf("Register twice: %v", err)
	}
	// registering with the default registry after success must not error
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatalf("Register default after success: %v", err)
	}
}

func TestHelpersRecordAfterRegister(t *testing.T) {
	r := prometheus.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatalf("Register: %v", err)
	}
	IncStart()
	IncStop()
	IncRestart()
	IncHealthCheck(true)
	IncHealthCheck(false)
	ObserveStartDuration(1.5)
	IncLogRotation("stdout")
	RecordStateTransition("stopped", "starting")
	SetCurrentState("running", true)
	SetCurrentState("stopped", false)
	SetUptime(12.5)

	mfs, err := r.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"sidekick_sidecar_starts_total",
		"sidekick_sidecar_stops_total",
		"sidekick_sidecar_restarts_total",
		"sidekick_health_checks_total",
		"sidekick_sidecar_start_duration_seconds",
		"sidekick_logs_rotations_total",
		"sidekick_sidecar_state_transitions_total",
		"sidekick_sidecar_current_state",
		"sidekick_sidecar_uptime_seconds",
	} {
		if !names[want] {
			t.Fatalf("metric %s missing from gather: %v", want, names)
		}
	}
}

func TestHandlerServes(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("metrics endpoint status = %d", rec.Code)
	}
}
