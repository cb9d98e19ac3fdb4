package daemon

import (
	"encoding/json"
	"os"
	"time"
)

// Status is the machine-readable snapshot written to state.json on every
// scheduler tick. External tooling (status command, shell prompts) reads it
// instead of talking to the process.
type Status struct {
	UpdatedAt time.Time        `json:"updated_at"`
	PID       int              `json:"pid"`
	Heartbeat *HeartbeatStatus `json:"heartbeat,omitempty"`
	Jobs      []JobStatus      `json:"jobs"`
}

type HeartbeatStatus struct {
	NextAt time.Time `json:"next_at"`
}

// JobStatus reports one job's next effective run. Unknown is set when no
// match exists within the scan horizon; NextAt is omitted in that case.
type JobStatus struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	NextAt   *time.Time `json:"next_at,omitempty"`
	Unknown  bool       `json:"unknown,omitempty"`
}

func writeStatus(path string, st Status) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// ReadStatus loads a previously written snapshot.
func ReadStatus(path string) (Status, error) {
	var st Status
	b, err := os.ReadFile(path)
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(b, &st)
	return st, err
}
