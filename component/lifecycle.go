// Package component defines the lifecycle contract and dependency wiring
// shared by the long-running pieces of the engine (stream consumer, HTTP
// gateway).
package component

import (
	"context"
	"time"
)

// State represents the current lifecycle state of a component
type State int

const (
	// StateCreated indicates component was created but not initialized
	StateCreated State = iota
	// StateInitialized indicates component was initialized but not started
	StateInitialized
	// StateStarted indicates component is running
	StateStarted
	// StateStopped indicates component was stopped
	StateStopped
	// StateFailed indicates component failed during lifecycle operation
	StateFailed
)

// String returns a string representation of the component state
func (cs State) String() string {
	switch cs {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LifecycleComponent defines components that support full lifecycle
// management:
//   - Initialize(ctx) error              // Create resources (streams, buckets)
//   - Start(ctx context.Context) error   // Begin serving; ctx cancels the run
//   - Stop(timeout time.Duration) error  // Graceful shutdown within timeout
type LifecycleComponent interface {
	Name() string
	Initialize(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}
