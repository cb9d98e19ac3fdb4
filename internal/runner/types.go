package runner

import (
	"errors"
	"time"
)

// Result captures one completed assistant invocation. A non-zero exit code
// is a normal result, not an error; callers decide what it means.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

var (
	// ErrStopped is returned when the queue is not running.
	ErrStopped = errors.New("runner stopped")
	// ErrQueueFull is returned when the submission queue is saturated.
	ErrQueueFull = errors.New("runner queue full")
)

// Event types published on the bus for every submission.
const (
	EventRunStarted  = "run.started"
	EventRunFinished = "run.finished"
	EventRunFailed   = "run.failed"
)

// RunEvent is the bus payload for run lifecycle events.
type RunEvent struct {
	Label      string
	SessionID  string
	NewSession bool
	ExitCode   int
	Started    time.Time
	Duration   time.Duration
	Error      string
}
