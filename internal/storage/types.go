package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures run-history persistence.
//
// Driver values:
//   - "file": dependency-free JSONL backend
//   - "sqlite": SQLite database file (sqlite build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one completed assistant invocation.
// Keep it compact and schema-stable; full stdout/stderr lives in the
// per-invocation run log files, not here.
type RunRecord struct {
	At         time.Time `json:"at"`
	Label      string    `json:"label"`
	SessionID  string    `json:"session_id"`
	NewSession bool      `json:"new_session"`
	ExitCode   int       `json:"exit_code"`
	TookMS     int64     `json:"took_ms"`
	Error      string    `json:"error,omitempty"`
}
