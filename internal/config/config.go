// Package config loads the TOML configuration file into the typed configs
// consumed by the supervisor, the API server and the history backends.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/publr/sidekick/internal/logger"
	"github.com/publr/sidekick/internal/supervisor"
)

// FileConfig represents the top-level TOML structure:
//
//	env = ["NODE_ENV=production"]
//	env_files = [".env"]
//	use_os_env = true
//
//	[sidecar]
//	port = 8857
//	sidecar_dir = "./sidecar"
//	log_dir = "./logs"
//	startup_timeout = "30s"
//
//	[sidecar.health]
//	interval = "30s"
//	failure_threshold = 3
//
//	[server]
//	listen = "127.0.0.1:8850"
//
//	[history]
//	store = "sqlite://./sidekick.db"
//	sinks = ["clickhouse://localhost:9000?table=sidecar_events"]
type FileConfig struct {
	Env      []string `toml:"env" mapstructure:"env"`
	EnvFiles []string `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool     `toml:"use_os_env" mapstructure:"use_os_env"`
	// Autostart launches the sidecar as soon as the daemon is up.
	Autostart bool `toml:"autostart" mapstructure:"autostart"`

	Sidecar supervisor.Config `toml:"sidecar" mapstructure:"sidecar"`
	Log     *logger.Config    `toml:"log" mapstructure:"log"`
	Server  *ServerConfig     `toml:"server" mapstructure:"server"`
	History *HistoryConfig    `toml:"history" mapstructure:"history"`
}

// ServerConfig describes the control API listener.
type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// HistoryConfig selects lifecycle event backends by DSN.
type HistoryConfig struct {
	Store string   `toml:"store" mapstructure:"store"`
	Sinks []string `toml:"sinks" mapstructure:"sinks"`
}

// Load parses and validates the TOML config at path.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if err := fc.validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

func (fc *FileConfig) validate() error {
	s := fc.Sidecar
	if s.SidecarDir == "" {
		return fmt.Errorf("sidecar.sidecar_dir is required")
	}
	if s.LogDir == "" {
		return fmt.Errorf("sidecar.log_dir is required")
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("sidecar.port %d out of range", s.Port)
	}
	if s.Health.FailureThreshold < 0 {
		return fmt.Errorf("sidecar.health.failure_threshold must not be negative")
	}
	if fc.Server != nil && fc.Server.Listen == "" {
		return fmt.Errorf("server.listen is required when [server] is present")
	}
	if fc.Log != nil {
		switch fc.Log.Slog.Level {
		case "", logger.LevelDebug, logger.LevelInfo, logger.LevelWarn, logger.LevelError:
		default:
			return fmt.Errorf("log.slog.level %q is not one of debug, info, warn, error", fc.Log.Slog.Level)
		}
		switch fc.Log.Slog.Format {
		case "", logger.FormatText, logger.FormatJSON:
		default:
			return fmt.Errorf("log.slog.format %q is not one of text, json", fc.Log.Slog.Format)
		}
	}
	return nil
}

// SupervisorConfig returns the sidecar section merged with the resolved
// environment for the launched process.
func (fc *FileConfig) SupervisorConfig() (supervisor.Config, error) {
	cfg := fc.Sidecar
	env, err := fc.GlobalEnv()
	if err != nil {
		return supervisor.Config{}, err
	}
	cfg.Launcher.Env = append(cfg.Launcher.Env, env...)
	return cfg, nil
}

// GlobalEnv merges the environment sources for the sidecar process.
// Precedence: OS env (when enabled) provides the base; env_files apply next in
// order; the top-level env list overrides last.
func (fc *FileConfig) GlobalEnv() ([]string, error) {
	if !fc.UseOSEnv && len(fc.EnvFiles) == 0 && len(fc.Env) == 0 {
		return nil, nil
	}
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
