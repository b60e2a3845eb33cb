// Package supervisor owns the sidecar lifecycle state machine. It drives the
// launcher to produce a running process, attaches the log manager to its
// output pipes, confirms readiness through the health prober and then keeps a
// cancellable background monitor running for as long as the process lives.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/publr/sidekick/internal/health"
	"github.com/publr/sidekick/internal/history"
	"github.com/publr/sidekick/internal/launcher"
	"github.com/publr/sidekick/internal/logfile"
	"github.com/publr/sidekick/internal/metrics"
)

// backoffCap bounds the exponential delay before a failure is signaled.
const backoffCap = 16 * time.Second

// Supervisor manages exactly one sidecar process. All public methods are safe
// for concurrent use: Start/Stop/Restart serialize on an operation lock while
// Status reads a snapshot and never blocks on them.
type Supervisor struct {
	cfg    Config
	logs   *logfile.Manager
	prober *health.Prober
	launch *launcher.Launcher

	// opMu serializes the long-running control operations.
	opMu sync.Mutex

	// mu guards the state cell and the process handle slot. The handle is
	// non-nil exactly while a spawned process is tracked; it has a single
	// owner and is only ever moved, never duplicated.
	mu       sync.RWMutex
	state    State
	child    *launcher.Child
	waitDone chan struct{} // closed by the waiter goroutine once Wait returns
	exitErr  error
	restarts int // automatic failure signals since the last clean start

	monitorCancel context.CancelFunc
	monitorDone   chan struct{}

	store history.Store
	sinks []history.Sink

	onTransition func(from, to State)
	onProgress   func(stage Stage, message string)
}

// New builds a supervisor from cfg, creating the log directory and opening
// the captured stream files.
func New(cfg Config) (*Supervisor, error) {
	cfg = cfg.withDefaults()
	var opts []logfile.Option
	if cfg.MaxLogSize > 0 {
		opts = append(opts, logfile.WithMaxSize(cfg.MaxLogSize))
	}
	if cfg.MaxLogFiles > 0 {
		opts = append(opts, logfile.WithMaxFiles(cfg.MaxLogFiles))
	}
	logs, err := logfile.New(cfg.LogDir, opts...)
	if err != nil {
		return nil, errIO(err)
	}
	s := &Supervisor{
		cfg:    cfg,
		logs:   logs,
		prober: health.NewProber(cfg.Port, cfg.Health),
		launch: launcher.New(cfg.Launcher),
		state:  State{Phase: PhaseStopped},
	}
	slog.Info("supervisor initialized",
		"port", cfg.Port, "sidecar_dir", cfg.SidecarDir, "log_dir", cfg.LogDir)
	return s, nil
}

// Config returns a copy of the effective configuration.
func (s *Supervisor) Config() Config { return s.cfg }

// SetStore configures a persistence store for lifecycle events and ensures
// its schema.
func (s *Supervisor) SetStore(st history.Store) error {
	s.mu.Lock()
	s.store = st
	s.mu.Unlock()
	if st == nil {
		return nil
	}
	return st.EnsureSchema(context.Background())
}

// SetHistorySinks configures external event sinks. Passing none clears the
// list.
func (s *Supervisor) SetHistorySinks(sinks ...history.Sink) {
	s.mu.Lock()
	s.sinks = append([]history.Sink(nil), sinks...)
	s.mu.Unlock()
}

// OnTransition registers a callback invoked after every state transition.
// The callback must not call back into the supervisor's control operations.
func (s *Supervisor) OnTransition(fn func(from, to State)) {
	s.mu.Lock()
	s.onTransition = fn
	s.mu.Unlock()
}

// OnProgress registers a callback observing startup progress stages,
// including the terminal Ready notification emitted after the transition to
// running.
func (s *Supervisor) OnProgress(fn func(stage Stage, message string)) {
	s.mu.Lock()
	s.onProgress = fn
	s.mu.Unlock()
}

// Status returns a read-only projection of the current state. It never blocks
// on in-flight control operations and never fails.
func (s *Supervisor) Status() StatusInfo {
	s.mu.RLock()
	st := s.state
	s.mu.RUnlock()
	return st.Info()
}

// Logs returns the last n lines of the stream's active log file.
func (s *Supervisor) Logs(stream logfile.Stream, n int) ([]string, error) {
	return s.logs.RecentLines(stream, n)
}

// ListLogFiles returns every captured log file, newest first.
func (s *Supervisor) ListLogFiles() ([]logfile.FileInfo, error) {
	return s.logs.ListFiles()
}

// ClearLogs truncates both active files and removes all archives. It shares
// locks with the stream writers, so it is safe while the sidecar is running.
func (s *Supervisor) ClearLogs() error {
	if err := s.logs.ClearAll(); err != nil {
		return errIO(err)
	}
	return nil
}

// Start brings the sidecar up. It fails with AlreadyRunning when the sidecar
// is already up; any other failure leaves the supervisor in a state from
// which Start can be retried, with a spawned-but-unhealthy process still
// tracked so Stop can reap it.
func (s *Supervisor) Start() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.startLocked(false)
}

func (s *Supervisor) startLocked(isRestart bool) error {
	s.mu.Lock()
	if s.state.Phase == PhaseRunning {
		s.mu.Unlock()
		return errAlreadyRunning()
	}
	if !isRestart {
		s.restarts = 0
	}
	restarts := s.restarts
	s.mu.Unlock()

	began := time.Now()
	slog.Info("starting sidecar")

	s.setStarting(StageCheckingDependencies, "checking sidecar directory")
	if st, err := os.Stat(s.cfg.SidecarDir); err != nil || !st.IsDir() {
		e := errDirectoryNotFound(s.cfg.SidecarDir)
		s.fail(e.Error())
		return e
	}

	if !s.launch.DependenciesInstalled() {
		s.setStarting(StageInstallingDependencies, "installing sidecar dependencies")
		if err := s.launch.EnsureDependencies(); err != nil {
			e := errProcessSpawn(err.Error(), err)
			s.fail(e.Error())
			return e
		}
	}

	s.setStarting(StageSpawningProcess, "spawning sidecar process")
	child, err := s.launch.Spawn()
	if err != nil {
		e := errProcessSpawn(err.Error(), err)
		s.fail(e.Error())
		return e
	}
	slog.Info("sidecar spawned", "pid", child.PID)

	// The handle moves into the slot; the waiter goroutine reaps it exactly
	// once after both drains hit EOF.
	waitDone := make(chan struct{})
	s.mu.Lock()
	s.child = child
	s.waitDone = waitDone
	s.exitErr = nil
	s.mu.Unlock()

	var drains sync.WaitGroup
	drains.Add(2)
	go s.drain(logfile.Stdout, child.Stdout, &drains)
	go s.drain(logfile.Stderr, child.Stderr, &drains)
	go func() {
		drains.Wait()
		err := child.Cmd.Wait()
		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()
		close(waitDone)
	}()

	s.setStarting(StageWaitingForHealth, "waiting for sidecar to become healthy")
	if err := s.prober.WaitUntilHealthy(context.Background(), s.cfg.StartupTimeout); err != nil {
		// The process stays tracked so Stop can reap it.
		e := errStartupTimeout(s.cfg.StartupTimeout, err)
		s.fail(e.Error())
		return e
	}

	s.setState(State{
		Phase:        PhaseRunning,
		PID:          child.PID,
		StartedAt:    time.Now(),
		RestartCount: restarts,
	})
	s.notifyProgress(StageReady, "sidecar is ready")
	slog.Info("sidecar started", "pid", child.PID, "port", s.cfg.Port,
		"took", time.Since(began).Round(time.Millisecond))
	metrics.IncStart()
	metrics.ObserveStartDuration(time.Since(began).Seconds())
	s.record(history.EventStarted, child.PID, restarts, "")

	mctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.monitorCancel = cancel
	s.monitorDone = done
	s.mu.Unlock()
	go s.monitor(mctx, done, waitDone)

	return nil
}

// Stop shuts the sidecar down with the two-step escalation protocol. It is a
// no-op on an already stopped supervisor and fails with NotRunning when no
// process is tracked.
func (s *Supervisor) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked()
}

func (s *Supervisor) stopLocked() error {
	s.mu.Lock()
	phase := s.state.Phase
	child := s.child
	switch phase {
	case PhaseStopped:
		s.mu.Unlock()
		slog.Warn("sidecar is already stopped")
		return nil
	case PhaseRunning, PhaseStopping:
		// proceed
	case PhaseFailed:
		if child == nil {
			s.mu.Unlock()
			return errNotRunning()
		}
		// failed with a live handle (health loss or startup timeout after
		// spawn): reap it
	default:
		s.mu.Unlock()
		return errNotRunning()
	}
	waitDone := s.waitDone
	cancel := s.monitorCancel
	done := s.monitorDone
	s.monitorCancel = nil
	s.monitorDone = nil
	s.mu.Unlock()

	if child != nil {
		slog.Info("stopping sidecar", "pid", child.PID)
	}
	s.setState(State{Phase: PhaseStopping})

	// The monitor must be gone before teardown so it cannot observe the
	// process dying and mistake it for a health failure.
	if cancel != nil {
		cancel()
		<-done
	}

	var stopErr error
	if child != nil {
		outcome := launcher.Shutdown(child.PID, waitDone, s.cfg.ShutdownTimeout)
		slog.Info("sidecar stopped", "pid", child.PID, "outcome", outcome.String())
		if outcome == launcher.WaitError {
			stopErr = errStopFailed("graceful termination signal could not be delivered; process killed", nil)
		}
	}

	s.mu.Lock()
	pid := 0
	if s.child != nil {
		pid = s.child.PID
	}
	restarts := s.restarts
	s.child = nil
	s.waitDone = nil
	s.mu.Unlock()
	s.setState(State{Phase: PhaseStopped})
	metrics.IncStop()
	s.record(history.EventStopped, pid, restarts, "")
	return stopErr
}

// Restart stops the sidecar, pauses briefly and starts it again. A restart
// after the automatic restart limit was exhausted is refused until the
// configured cooldown has passed since the last failure.
func (s *Supervisor) Restart() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state.Phase == PhaseFailed && s.restarts >= s.cfg.MaxRestartCount {
		if time.Since(s.state.Timestamp) < s.cfg.RestartCooldown {
			current, max := s.restarts, s.cfg.MaxRestartCount
			s.mu.Unlock()
			return errRestartLimitExceeded(current, max)
		}
		// Operator waited out the cooldown; the slate is wiped.
		s.restarts = 0
	}
	s.mu.Unlock()

	slog.Info("restarting sidecar")
	if err := s.stopLocked(); err != nil && !IsKind(err, KindNotRunning) {
		return err
	}
	time.Sleep(restartPause)
	metrics.IncRestart()
	if err := s.startLocked(true); err != nil {
		return err
	}
	s.mu.RLock()
	pid := 0
	if s.child != nil {
		pid = s.child.PID
	}
	restarts := s.restarts
	s.mu.RUnlock()
	s.record(history.EventRestarted, pid, restarts, "")
	return nil
}

// Close stops a running sidecar (best effort) and releases the log manager.
func (s *Supervisor) Close() error {
	if err := s.Stop(); err != nil && !IsKind(err, KindNotRunning) {
		slog.Warn("failed to stop sidecar during close", "error", err)
	}
	s.mu.Lock()
	st := s.store
	s.store = nil
	s.mu.Unlock()
	if st != nil {
		_ = st.Close()
	}
	return s.logs.Close()
}

// drain forwards one output pipe line by line into the log manager until the
// pipe closes on process exit.
func (s *Supervisor) drain(stream logfile.Stream, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := s.logs.WriteLine(stream, sc.Text()); err != nil {
			slog.Warn("failed to write sidecar log line", "stream", string(stream), "error", err)
		}
	}
}

// monitor probes the sidecar on the configured interval and promotes
// threshold-crossing failures to a Failed state. It exits when cancelled by
// Stop, when the state leaves Running, or after signaling a failure; it never
// restarts the process itself.
func (s *Supervisor) monitor(ctx context.Context, done chan struct{}, waitDone <-chan struct{}) {
	defer close(done)
	interval := s.prober.Interval()
	threshold := s.prober.FailureThreshold()
	consecutiveFailures := 0
	slog.Info("health monitoring started", "interval", interval, "failure_threshold", threshold)

	for {
		select {
		case <-ctx.Done():
			slog.Info("health monitoring stopped")
			return
		case <-waitDone:
			s.mu.RLock()
			exitErr := s.exitErr
			s.mu.RUnlock()
			detail := "sidecar process exited unexpectedly"
			if exitErr != nil {
				detail = fmt.Sprintf("sidecar process exited unexpectedly: %v", exitErr)
			}
			s.signalFailure(ctx, detail)
			return
		case <-time.After(interval):
		}

		s.mu.RLock()
		phase := s.state.Phase
		startedAt := s.state.StartedAt
		s.mu.RUnlock()
		if phase != PhaseRunning {
			return
		}
		metrics.SetUptime(time.Since(startedAt).Seconds())

		healthy := s.prober.ProbeOnce(ctx)
		metrics.IncHealthCheck(healthy)
		if healthy {
			if consecutiveFailures > 0 {
				slog.Info("health check recovered", "after_failures", consecutiveFailures)
				consecutiveFailures = 0
			}
			continue
		}
		consecutiveFailures++
		slog.Warn("health check failed", "consecutive", consecutiveFailures, "threshold", threshold)
		if consecutiveFailures < threshold {
			continue
		}
		s.signalFailure(ctx, fmt.Sprintf("health check failed %d consecutive times", consecutiveFailures))
		return
	}
}

// signalFailure transitions to Failed after an exponential backoff, so a
// supervising caller that reacts immediately with Restart does not produce a
// restart storm. Recovery is never automatic: the failure is signaled and a
// caller decides whether to restart.
func (s *Supervisor) signalFailure(ctx context.Context, cause string) {
	s.mu.Lock()
	restarts := s.restarts
	max := s.cfg.MaxRestartCount
	s.mu.Unlock()

	if restarts >= max {
		msg := fmt.Sprintf("%s; restart limit reached (%d/%d)", cause, restarts, max)
		slog.Error("sidecar failed permanently", "cause", cause, "restarts", restarts, "max", max)
		s.fail(msg)
		return
	}

	backoff := time.Duration(1<<uint(min(restarts, 4))) * time.Second
	if backoff > backoffCap {
		backoff = backoffCap
	}
	slog.Warn("sidecar unhealthy, signaling failure",
		"cause", cause, "backoff", backoff, "attempt", restarts+1, "max", max)
	select {
	case <-ctx.Done():
		return
	case <-time.After(backoff):
	}

	s.mu.Lock()
	s.restarts++
	s.mu.Unlock()
	s.fail(cause)
}

// fail transitions to Failed and records the event. The process handle, if
// any, stays tracked so Stop can still reap it.
func (s *Supervisor) fail(message string) {
	s.setState(State{Phase: PhaseFailed, Message: message, Timestamp: time.Now()})
	s.mu.RLock()
	pid := 0
	if s.child != nil {
		pid = s.child.PID
	}
	restarts := s.restarts
	s.mu.RUnlock()
	s.record(history.EventFailed, pid, restarts, message)
}

// setStarting publishes one startup progress stage.
func (s *Supervisor) setStarting(stage Stage, message string) {
	s.setState(State{Phase: PhaseStarting, Stage: stage, Message: message, Timestamp: time.Now()})
	s.notifyProgress(stage, message)
	slog.Info("sidecar starting", "stage", stage.String(), "message", message)
}

// setState swaps the state cell and fires metrics plus the transition hook.
// Readers of Status never observe an intermediate write.
func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	hook := s.onTransition
	s.mu.Unlock()
	metrics.RecordStateTransition(prev.Phase.String(), next.Phase.String())
	metrics.SetCurrentState(prev.Phase.String(), false)
	metrics.SetCurrentState(next.Phase.String(), true)
	if next.Phase != PhaseRunning {
		metrics.SetUptime(0)
	}
	if hook != nil {
		hook(prev, next)
	}
}

func (s *Supervisor) notifyProgress(stage Stage, message string) {
	s.mu.RLock()
	hook := s.onProgress
	s.mu.RUnlock()
	if hook != nil {
		hook(stage, message)
	}
}

// record persists a lifecycle event to the configured store and sinks from a
// detached goroutine; the control path never blocks on history backends.
func (s *Supervisor) record(t history.EventType, pid, restarts int, detail string) {
	s.mu.RLock()
	st := s.store
	sinks := append([]history.Sink(nil), s.sinks...)
	s.mu.RUnlock()
	if st == nil && len(sinks) == 0 {
		return
	}
	e := history.Event{
		Type:         t,
		OccurredAt:   time.Now().UTC(),
		PID:          pid,
		RestartCount: restarts,
		Detail:       detail,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if st != nil {
			if err := st.Append(ctx, e); err != nil {
				slog.Warn("failed to record lifecycle event", "type", string(t), "error", err)
			}
		}
		for _, sk := range sinks {
			if err := sk.Send(ctx, e); err != nil {
				slog.Warn("failed to send lifecycle event", "type", string(t), "error", err)
			}
		}
	}()
}
