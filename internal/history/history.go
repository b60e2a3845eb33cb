// Package history records supervisor lifecycle events for audit and
// statistics. A Store keeps a queryable local record; Sinks fan events out to
// external analytics systems. The supervisor's hot path must never block on a slow
// sink, so all recording is best-effort from a detached goroutine.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStarted   EventType = "started"
	EventStopped   EventType = "stopped"
	EventFailed    EventType = "failed"
	EventRestarted EventType = "restarted"
)

// Event is one recorded lifecycle transition of the supervised sidecar.
type Event struct {
	Type         EventType `json:"type"`
	OccurredAt   time.Time `json:"occurred_at"`
	PID          int       `json:"pid"`
	RestartCount int       `json:"restart_count"`
	Detail       string    `json:"detail,omitempty"`
}

// Store is a local queryable persistence backend for lifecycle events.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, e Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
	Close() error
}

// Sink is a destination for lifecycle events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
