package flow

import "time"

// Policy groups the tunable decision values of the finalization and
// liveness algorithms. The defaults match the documented behavior; they
// are named here so policy can change without touching the algorithms.
type Policy struct {
	// FailureRatio is the fraction of failed jobs a task tolerates.
	// Strictly above it the task fails and cancels its downstream closure.
	FailureRatio float64

	// HeartbeatTimeout is the window after which a silent worker is
	// considered dead.
	HeartbeatTimeout time.Duration

	// HeartbeatInterval is how often a running job refreshes its record.
	HeartbeatInterval time.Duration
}

// DefaultPolicy carries the documented defaults: 10% failure tolerance,
// 5 minute liveness window, 10 second heartbeat.
var DefaultPolicy = Policy{
	FailureRatio:      0.10,
	HeartbeatTimeout:  5 * time.Minute,
	HeartbeatInterval: 10 * time.Second,
}
