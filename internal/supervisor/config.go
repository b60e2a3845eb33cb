package supervisor

import (
	"time"

	"github.com/publr/sidekick/internal/health"
	"github.com/publr/sidekick/internal/launcher"
)

// Default values applied by Config.withDefaults.
const (
	DefaultPort            = 8857
	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultMaxRestartCount = 5
	DefaultRestartCooldown = 60 * time.Second

	// restartPause is the fixed pause between the stop and start halves of an
	// explicit Restart.
	restartPause = 500 * time.Millisecond
)

// Config holds everything the supervisor needs to manage one sidecar. It is
// copied at construction and never mutated afterwards.
type Config struct {
	// Port the sidecar's HTTP liveness endpoint listens on.
	Port int `json:"port" mapstructure:"port"`
	// SidecarDir is the sidecar's working directory.
	SidecarDir string `json:"sidecar_dir" mapstructure:"sidecar_dir"`
	// LogDir receives the captured stdout/stderr streams.
	LogDir string `json:"log_dir" mapstructure:"log_dir"`

	StartupTimeout  time.Duration `json:"startup_timeout" mapstructure:"startup_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	MaxRestartCount int           `json:"max_restart_count" mapstructure:"max_restart_count"`
	RestartCooldown time.Duration `json:"restart_cooldown" mapstructure:"restart_cooldown"`

	// Health tunes the liveness prober and the background monitor.
	Health health.Config `json:"health" mapstructure:"health"`
	// Launcher defines how the sidecar process is installed and spawned.
	// Dir defaults to SidecarDir when empty.
	Launcher launcher.Config `json:"launcher" mapstructure:"launcher"`

	// MaxLogSize and MaxLogFiles bound the captured stream files.
	MaxLogSize  int64 `json:"max_log_size" mapstructure:"max_log_size"`
	MaxLogFiles int   `json:"max_log_files" mapstructure:"max_log_files"`
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = DefaultStartupTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.MaxRestartCount <= 0 {
		c.MaxRestartCount = DefaultMaxRestartCount
	}
	if c.RestartCooldown <= 0 {
		c.RestartCooldown = DefaultRestartCooldown
	}
	c.Health = c.Health.WithDefaults()
	if c.Launcher.Dir == "" {
		c.Launcher.Dir = c.SidecarDir
	}
	c.Launcher = c.Launcher.WithDefaults()
	return c
}
