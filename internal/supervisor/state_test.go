package supervisor

import (
	"testing"
	"time"
)

func TestPhaseStringRoundTrip(t *testing.T) {
	phases := []Phase{PhaseStopped, PhaseStarting, PhaseRunning, PhaseStopping, PhaseFailed}
	for _, p := range phases {
		got, err := ParsePhase(p.String())
		if err != nil {
			t.Fatalf("ParsePhase(%q): %v", p.String(), err)
		}
		if got != p {
			t.Fatalf("round trip %v -> %q -> %v", p, p.String(), got)
		}
	}
	if _, err := ParsePhase("sideways"); err == nil {
		t.Fatalf("expected error for unknown phase")
	}
}

func TestStageStringRoundTrip(t *testing.T) {
	stages := []Stage{
		StageCheckingDependencies,
		StageInstallingDependencies,
		StageSpawningProcess,
		StageWaitingForHealth,
		StageReady,
	}
	for _, s := range stages {
		got, err := ParseStage(s.String())
		if err != nil {
			t.Fatalf("ParseStage(%q): %v", s.String(), err)
		}
		if got != s {
			t.Fatalf("round trip %v -> %q -> %v", s, s.String(), got)
		}
	}
	if _, err := ParseStage("warp"); err == nil {
		t.Fatalf("expected error for unknown stage")
	}
}

func TestStateInfo(t *testing.T) {
	if got := (State{Phase: PhaseStopped}).Info(); got.State != "stopped" || got.PID != 0 {
		t.Fatalf("stopped info = %+v", got)
	}

	got := State{Phase: PhaseStarting, Stage: StageWaitingForHealth, Message: "waiting"}.Info()
	if got.State != "starting" || got.Message != "waiting" {
		t.Fatalf("starting info = %+v", got)
	}

	running := State{
		Phase:        PhaseRunning,
		PID:          4242,
		StartedAt:    time.Now().Add(-90 * time.Second),
		RestartCount: 2,
	}.Info()
	if running.State != "running" || running.PID != 4242 || running.RestartCount != 2 {
		t.Fatalf("running info = %+v", running)
	}
	if running.Uptime < 89 || running.Uptime > 92 {
		t.Fatalf("uptime = %d, want ~90", running.Uptime)
	}

	failed := State{Phase: PhaseFailed, Message: "health check failed"}.Info()
	if failed.State != "failed" || failed.Message != "health check failed" {
		t.Fatalf("failed info = %+v", failed)
	}
	if failed.PID != 0 || failed.Uptime != 0 {
		t.Fatalf("failed info leaks run fields: %+v", failed)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	c := Config{SidecarDir: "/srv/worker"}.withDefaults()
	if c.Port != DefaultPort {
		t.Fatalf("port = %d", c.Port)
	}
	if c.StartupTimeout != DefaultStartupTimeout || c.ShutdownTimeout != DefaultShutdownTimeout {
		t.Fatalf("timeouts = %v/%v", c.StartupTimeout, c.ShutdownTimeout)
	}
	if c.MaxRestartCount != DefaultMaxRestartCount || c.RestartCooldown != DefaultRestartCooldown {
		t.Fatalf("restart policy = %d/%v", c.MaxRestartCount, c.RestartCooldown)
	}
	if c.Launcher.Dir != "/srv/worker" {
		t.Fatalf("launcher dir not inherited: %q", c.Launcher.Dir)
	}
	if c.Health.Interval <= 0 || c.Health.FailureThreshold <= 0 {
		t.Fatalf("health defaults missing: %+v", c.Health)
	}
}
