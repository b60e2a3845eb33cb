// Package sidekick provides a small public facade over the internal packages
// so the supervisor can be embedded in another Go program.
package sidekick

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/publr/sidekick/internal/config"
	"github.com/publr/sidekick/internal/history"
	"github.com/publr/sidekick/internal/history/factory"
	"github.com/publr/sidekick/internal/logfile"
	"github.com/publr/sidekick/internal/logger"
	"github.com/publr/sidekick/internal/metrics"
	"github.com/publr/sidekick/internal/server"
	"github.com/publr/sidekick/internal/supervisor"
)

// Re-exported types for embedders.
type Config = supervisor.Config

type Phase = supervisor.Phase

type Stage = supervisor.Stage

type State = supervisor.State

type StatusInfo = supervisor.StatusInfo

type Stream = logfile.Stream

type LogFileInfo = logfile.FileInfo

type HistoryStore = history.Store

type HistorySink = history.Sink

type HistoryEvent = history.Event

type LoggerConfig = logger.Config

type FileConfig = cfg.FileConfig

type ServerConfig = cfg.ServerConfig

type HistoryConfig = cfg.HistoryConfig

const (
	StreamStdout = logfile.Stdout
	StreamStderr = logfile.Stderr
)

// Supervisor manages one sidecar process.
type Supervisor struct{ inner *supervisor.Supervisor }

// New builds a supervisor for the given configuration.
func New(c Config) (*Supervisor, error) {
	inner, err := supervisor.New(c)
	if err != nil {
		return nil, err
	}
	return &Supervisor{inner: inner}, nil
}

func (s *Supervisor) Start() error                            { return s.inner.Start() }
func (s *Supervisor) Stop() error                             { return s.inner.Stop() }
func (s *Supervisor) Restart() error                          { return s.inner.Restart() }
func (s *Supervisor) Close() error                            { return s.inner.Close() }
func (s *Supervisor) Status() StatusInfo                      { return s.inner.Status() }
func (s *Supervisor) Logs(st Stream, n int) ([]string, error) { return s.inner.Logs(st, n) }
func (s *Supervisor) ListLogFiles() ([]LogFileInfo, error)    { return s.inner.ListLogFiles() }
func (s *Supervisor) ClearLogs() error                        { return s.inner.ClearLogs() }
func (s *Supervisor) SetStore(st HistoryStore) error          { return s.inner.SetStore(st) }
func (s *Supervisor) SetHistorySinks(sinks ...HistorySink)    { s.inner.SetHistorySinks(sinks...) }
func (s *Supervisor) OnTransition(fn func(from, to State))    { s.inner.OnTransition(fn) }
func (s *Supervisor) OnProgress(fn func(stage Stage, message string)) {
	s.inner.OnProgress(fn)
}

// LoadConfig parses the TOML configuration file.
func LoadConfig(path string) (*FileConfig, error) {
	return cfg.Load(path)
}

// NewHTTPServer starts an HTTP server exposing the control API for the given
// supervisor.
func NewHTTPServer(addr, basePath string, s *Supervisor) (*http.Server, error) {
	return server.NewServer(addr, basePath, s.inner)
}

// History backend constructors by DSN.

func NewHistoryStore(dsn string) (HistoryStore, error) { return factory.NewStoreFromDSN(dsn) }
func NewHistorySink(dsn string) (HistorySink, error)   { return factory.NewSinkFromDSN(dsn) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It returns any immediate listen error; otherwise it runs
// the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
