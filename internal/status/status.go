// Package status implements the per-entity, lock-guarded lifecycle record
// shared by jobs and tasks.
//
// Each entity owns exactly one status record on disk, guarded by a sibling
// advisory lock file. Locks are strictly per record: two different entities
// never contend, and a single read-modify-write never holds more than one
// lock, so no lock-ordering deadlock is possible.
package status

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a job or task.
type State string

const (
	Created   State = "created"
	Assigned  State = "assigned"
	Pending   State = "pending"
	Running   State = "running"
	Completed State = "completed"
	Failed    State = "failed"
	Finalized State = "finalized"
	Canceled  State = "canceled"

	// Unknown is the implicit state of any entity whose record does not
	// yet exist on disk.
	Unknown State = "unknown"
)

// Valid reports whether s is one of the known lifecycle states.
func (s State) Valid() bool {
	switch s {
	case Created, Assigned, Pending, Running, Completed, Failed, Finalized, Canceled, Unknown:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is a final state.
func (s State) IsTerminal() bool {
	switch s {
	case Completed, Failed, Finalized, Canceled:
		return true
	default:
		return false
	}
}

// Status is the persisted lifecycle record of one entity.
//
// LastTime doubles as the heartbeat: a running worker refreshes it
// periodically via Store.Ping, and a supervisor treats a stale LastTime as
// a stalled worker.
type Status struct {
	State     State     `json:"status"`
	StartTime time.Time `json:"start_time"`
	LastTime  time.Time `json:"last_time"`
}

// New returns a Status in the given state with both timestamps set to now.
func New(state State) Status {
	now := time.Now().UTC()
	return Status{State: state, StartTime: now, LastTime: now}
}

func (s Status) validate() error {
	if !s.State.Valid() {
		return fmt.Errorf("invalid status %q", s.State)
	}
	return nil
}
