package supervisor

import (
	"fmt"
	"time"
)

// Phase is the supervisor's lifecycle phase. Exactly one phase is active at a
// time; transitions happen only under the supervisor's state lock.
type Phase int

const (
	PhaseStopped Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseStopping
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseStopped:
		return "stopped"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ParsePhase maps a persisted phase string back to a Phase. Unknown values are
// an error so stale or corrupted records surface at load time instead of being
// silently coerced.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "stopped":
		return PhaseStopped, nil
	case "starting":
		return PhaseStarting, nil
	case "running":
		return PhaseRunning, nil
	case "stopping":
		return PhaseStopping, nil
	case "failed":
		return PhaseFailed, nil
	default:
		return PhaseStopped, fmt.Errorf("unknown phase %q", s)
	}
}

// Stage is the ordered progress marker reported while starting.
type Stage int

const (
	StageCheckingDependencies Stage = iota
	StageInstallingDependencies
	StageSpawningProcess
	StageWaitingForHealth
	StageReady
)

func (s Stage) String() string {
	switch s {
	case StageCheckingDependencies:
		return "checking_dependencies"
	case StageInstallingDependencies:
		return "installing_dependencies"
	case StageSpawningProcess:
		return "spawning_process"
	case StageWaitingForHealth:
		return "waiting_for_health"
	case StageReady:
		return "ready"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ParseStage validates a persisted stage string.
func ParseStage(s string) (Stage, error) {
	switch s {
	case "checking_dependencies":
		return StageCheckingDependencies, nil
	case "installing_dependencies":
		return StageInstallingDependencies, nil
	case "spawning_process":
		return StageSpawningProcess, nil
	case "waiting_for_health":
		return StageWaitingForHealth, nil
	case "ready":
		return StageReady, nil
	default:
		return StageCheckingDependencies, fmt.Errorf("unknown stage %q", s)
	}
}

// State is the supervisor's tagged state. Phase decides which of the optional
// fields are meaningful:
//
//	Starting: Stage, Message, Timestamp
//	Running:  PID, StartedAt, RestartCount
//	Failed:   Message, Timestamp (last attempt)
type State struct {
	Phase        Phase
	Stage        Stage
	Message      string
	Timestamp    time.Time
	PID          int
	StartedAt    time.Time
	RestartCount int
}

// StatusInfo is the read-only projection of State handed to collaborators.
type StatusInfo struct {
	State        string `json:"state"`
	Message      string `json:"message,omitempty"`
	Uptime       int64  `json:"uptime,omitempty"` // seconds, running only
	RestartCount int    `json:"restart_count,omitempty"`
	PID          int    `json:"pid,omitempty"`
}

// Info projects the state for external consumers. It never exposes the process
// handle or partial transitions.
func (s State) Info() StatusInfo {
	switch s.Phase {
	case PhaseStopped:
		return StatusInfo{State: "stopped"}
	case PhaseStarting:
		return StatusInfo{State: "starting", Message: s.Message}
	case PhaseRunning:
		return StatusInfo{
			State:        "running",
			Uptime:       int64(time.Since(s.StartedAt).Seconds()),
			RestartCount: s.RestartCount,
			PID:          s.PID,
		}
	case PhaseStopping:
		return StatusInfo{State: "stopping"}
	case PhaseFailed:
		return StatusInfo{State: "failed", Message: s.Message}
	default:
		return StatusInfo{State: s.Phase.String()}
	}
}
