package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o640); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
autostart = true
env = ["NODE_ENV=production"]

[sidecar]
port = 9000
sidecar_dir = "/srv/worker"
log_dir = "/var/log/sidekick"
startup_timeout = "45s"
shutdown_timeout = "3s"
max_restart_count = 7
restart_cooldown = "2m"
max_log_size = 1048576
max_log_files = 3

[sidecar.health]
interval = "10s"
timeout = "2s"
failure_threshold = 4
success_threshold = 1

[sidecar.launcher]
install_command = "npm ci"
start_command = "npm run serve"

[log.slog]
level = "debug"
format = "json"

[server]
listen = "127.0.0.1:9850"
base_path = "/api"

[history]
store = "sqlite:///tmp/events.db"
sinks = ["clickhouse://localhost:9000?table=sidecar_events"]
`)
	fc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := fc.Sidecar
	if s.Port != 9000 || s.SidecarDir != "/srv/worker" || s.LogDir != "/var/log/sidekick" {
		t.Fatalf("sidecar section = %+v", s)
	}
	if s.StartupTimeout != 45*time.Second || s.ShutdownTimeout != 3*time.Second {
		t.Fatalf("timeouts = %v/%v", s.StartupTimeout, s.ShutdownTimeout)
	}
	if s.MaxRestartCount != 7 || s.RestartCooldown != 2*time.Minute {
		t.Fatalf("restart policy = %d/%v", s.MaxRestartCount, s.RestartCooldown)
	}
	if s.Health.Interval != 10*time.Second || s.Health.FailureThreshold != 4 {
		t.Fatalf("health = %+v", s.Health)
	}
	if s.Launcher.InstallCommand != "npm ci" || s.Launcher.StartCommand != "npm run serve" {
		t.Fatalf("launcher = %+v", s.Launcher)
	}
	if s.MaxLogSize != 1048576 || s.MaxLogFiles != 3 {
		t.Fatalf("log bounds = %d/%d", s.MaxLogSize, s.MaxLogFiles)
	}
	if !fc.Autostart {
		t.Fatalf("autostart not parsed")
	}
	if fc.Log == nil || string(fc.Log.Slog.Level) != "debug" || string(fc.Log.Slog.Format) != "json" {
		t.Fatalf("log section = %+v", fc.Log)
	}
	if fc.Server == nil || fc.Server.Listen != "127.0.0.1:9850" || fc.Server.BasePath != "/api" {
		t.Fatalf("server section = %+v", fc.Server)
	}
	if fc.History == nil || fc.History.Store != "sqlite:///tmp/events.db" || len(fc.History.Sinks) != 1 {
		t.Fatalf("history section = %+v", fc.History)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing sidecar dir",
			body: "[sidecar]\nlog_dir = \"/var/log\"\n",
			want: "sidecar_dir",
		},
		{
			name: "missing log dir",
			body: "[sidecar]\nsidecar_dir = \"/srv/worker\"\n",
			want: "log_dir",
		},
		{
			name: "port out of range",
			body: "[sidecar]\nsidecar_dir = \"/srv/worker\"\nlog_dir = \"/var/log\"\nport = 70000\n",
			want: "out of range",
		},
		{
			name: "server without listen",
			body: "[sidecar]\nsidecar_dir = \"/srv/worker\"\nlog_dir = \"/var/log\"\n[server]\nbase_path = \"/api\"\n",
			want: "server.listen",
		},
		{
			name: "bad log level",
			body: "[sidecar]\nsidecar_dir = \"/srv/worker\"\nlog_dir = \"/var/log\"\n[log.slog]\nlevel = \"loud\"\n",
			want: "log.slog.level",
		},
		{
			name: "bad log format",
			body: "[sidecar]\nsidecar_dir = \"/srv/worker\"\nlog_dir = \"/var/log\"\n[log.slog]\nformat = \"xml\"\n",
			want: "log.slog.format",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, c.body))
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Fatalf("err = %v, want substring %q", err, c.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestGlobalEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "vars.env")
	body := "# comment\nFROM_FILE=file\nSHARED=file\n\nSPACED = padded\n"
	if err := os.WriteFile(envFile, []byte(body), 0o640); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	fc := &FileConfig{
		Env:      []string{"SHARED=toplevel", "ONLY_TOP=yes"},
		EnvFiles: []string{envFile},
	}
	env, err := fc.GlobalEnv()
	if err != nil {
		t.Fatalf("GlobalEnv: %v", err)
	}
	m := make(map[string]string)
	for _, kv := range env {
		i := strings.IndexByte(kv, '=')
		m[kv[:i]] = kv[i+1:]
	}
	if m["FROM_FILE"] != "file" {
		t.Fatalf("env file entry missing: %v", m)
	}
	if m["SPACED"] != "padded" {
		t.Fatalf("whitespace not trimmed: %v", m)
	}
	// top-level env wins over file entries
	if m["SHARED"] != "toplevel" {
		t.Fatalf("precedence wrong: SHARED=%q", m["SHARED"])
	}
	if m["ONLY_TOP"] != "yes" {
		t.Fatalf("top-level entry missing: %v", m)
	}
}

func TestGlobalEnvEmpty(t *testing.T) {
	fc := &FileConfig{}
	env, err := fc.GlobalEnv()
	if err != nil {
		t.Fatalf("GlobalEnv: %v", err)
	}
	if env != nil {
		t.Fatalf("expected nil env, got %v", env)
	}
}

func TestSupervisorConfigMergesEnv(t *testing.T) {
	fc := &FileConfig{Env: []string{"A=1"}}
	fc.Sidecar.SidecarDir = "/srv/worker"
	fc.Sidecar.LogDir = "/var/log"
	cfg, err := fc.SupervisorConfig()
	if err != nil {
		t.Fatalf("SupervisorConfig: %v", err)
	}
	found := false
	for _, kv := range cfg.Launcher.Env {
		if kv == "A=1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("launcher env missing merge: %v", cfg.Launcher.Env)
	}
}
