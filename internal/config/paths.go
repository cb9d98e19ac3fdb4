package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultBaseDir is the state directory relative to the project root.
const DefaultBaseDir = ".agentpulse"

// Paths locates every piece of daemon state under one base directory.
type Paths struct {
	Base string
}

func NewPaths(base string) Paths {
	if base == "" {
		base = DefaultBaseDir
	}
	return Paths{Base: base}
}

func (p Paths) SettingsFile() string      { return filepath.Join(p.Base, "settings.json") }
func (p Paths) JobsDir() string           { return filepath.Join(p.Base, "jobs") }
func (p Paths) LogsDir() string           { return filepath.Join(p.Base, "logs") }
func (p Paths) SessionDir() string        { return p.Base }
func (p Paths) StateFile() string         { return filepath.Join(p.Base, "state.json") }
func (p Paths) PIDFile() string           { return filepath.Join(p.Base, "daemon.pid") }
func (p Paths) HistoryFile() string       { return filepath.Join(p.Base, "history") }
func (p Paths) NotificationsFile() string { return filepath.Join(p.Base, "notifications.jsonl") }

// EnsureDirs creates the state directories. Failure here is the only
// fatal-at-startup condition.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{p.Base, p.JobsDir(), p.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
