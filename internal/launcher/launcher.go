// Package launcher resolves the sidecar's working directory, installs its
// dependencies on first run and spawns the worker process with both output
// streams piped. Signal delivery is platform-specific and kept behind
// signal_unix.go / signal_windows.go so callers stay platform-neutral.
package launcher

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultDependencyMarker is the conventional subdirectory whose absence
// triggers a one-time install step.
const DefaultDependencyMarker = "node_modules"

// Config describes how the sidecar process is installed and started.
// Commands are collaborator-defined strings; the defaults match a Node.js
// worker managed with npm.
type Config struct {
	// Dir is the sidecar working directory. Both commands run in it.
	Dir string `json:"dir" mapstructure:"dir"`
	// DependencyMarker is a subdirectory of Dir; when missing, InstallCommand
	// runs once before the first spawn.
	DependencyMarker string `json:"dependency_marker" mapstructure:"dependency_marker"`
	InstallCommand   string `json:"install_command" mapstructure:"install_command"`
	StartCommand     string `json:"start_command" mapstructure:"start_command"`
	// Env holds extra KEY=VALUE entries appended to the inherited environment
	// for both commands.
	Env []string `json:"env" mapstructure:"env"`
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.DependencyMarker == "" {
		c.DependencyMarker = DefaultDependencyMarker
	}
	if c.InstallCommand == "" {
		c.InstallCommand = npmCommand + " install"
	}
	if c.StartCommand == "" {
		c.StartCommand = npmCommand + " start"
	}
	return c
}

// Launcher spawns the sidecar process described by its Config.
type Launcher struct {
	cfg Config
}

func New(cfg Config) *Launcher {
	return &Launcher{cfg: cfg.WithDefaults()}
}

// Dir returns the configured working directory.
func (l *Launcher) Dir() string { return l.cfg.Dir }

// DependenciesInstalled reports whether the dependency marker directory exists.
func (l *Launcher) DependenciesInstalled() bool {
	return dirExists(filepath.Join(l.cfg.Dir, l.cfg.DependencyMarker))
}

// EnsureDependencies runs the install command synchronously when the marker
// directory is missing. A non-zero exit is returned with the captured stderr
// so the caller can surface what the installer complained about.
func (l *Launcher) EnsureDependencies() error {
	if l.DependenciesInstalled() {
		return nil
	}
	cmd := buildCommand(l.cfg.InstallCommand)
	cmd.Dir = l.cfg.Dir
	cmd.Env = l.environ()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("install command failed: %s", detail)
	}
	return nil
}

// Child is the spawned sidecar process. The caller owns its lifetime: exactly
// one goroutine must drain each pipe to EOF and then call Wait once.
type Child struct {
	Cmd    *exec.Cmd
	PID    int
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

// Spawn launches the start command in the sidecar directory with stdout and
// stderr piped.
func (l *Launcher) Spawn() (*Child, error) {
	cmd := buildCommand(l.cfg.StartCommand)
	cmd.Dir = l.cfg.Dir
	cmd.Env = l.environ()
	setSysProcAttr(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	if cmd.Process == nil {
		return nil, fmt.Errorf("no process handle after start")
	}
	return &Child{Cmd: cmd, PID: cmd.Process.Pid, Stdout: stdout, Stderr: stderr}, nil
}

// environ returns the command environment: the inherited environment plus any
// configured extras, or nil to inherit as-is.
func (l *Launcher) environ() []string {
	if len(l.cfg.Env) == 0 {
		return nil
	}
	return append(os.Environ(), l.cfg.Env...)
}

// buildCommand constructs an *exec.Cmd for a command string. It avoids a
// shell unless metacharacters require one.
func buildCommand(cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return trueCommand()
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return shellCommand(cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
