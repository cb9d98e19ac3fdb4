package config

import (
	"fmt"

	"agentpulse/internal/policy"
	"agentpulse/internal/schedule"
)

// Settings is the daemon-wide settings document (settings.json in the state
// directory, YAML accepted). The security and scheduler sections are read
// live via the Manager so external edits take effect without a restart; the
// job list itself is only re-read on process restart.
type Settings struct {
	Logging   LoggingConfig   `json:"logging"`
	Runner    RunnerConfig    `json:"runner"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Security  SecurityConfig  `json:"security"`
	Storage   StorageConfig   `json:"storage"`
	Notify    NotifyConfig    `json:"notify"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console"`
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path,omitempty"`
	} `json:"file"`
}

// RunnerConfig describes how the external assistant process is invoked.
type RunnerConfig struct {
	// Binary is the assistant executable looked up on PATH.
	Binary string `json:"binary,omitempty"`
	// OutputFormat is passed through to the assistant CLI.
	OutputFormat string `json:"output_format,omitempty"`
	// InitSystemPrompt is sent once when a fresh session is created. It may
	// be a literal string or a path ending in .md/.txt/.prompt.
	InitSystemPrompt string `json:"init_system_prompt,omitempty"`
}

type HeartbeatConfig struct {
	Enabled bool `json:"enabled"`
	// IntervalMinutes between heartbeat submissions, clamped to 1..1440.
	IntervalMinutes int `json:"interval_minutes,omitempty"`
	// Prompt may be a literal string or a path ending in .md/.txt/.prompt.
	Prompt string `json:"prompt,omitempty"`
}

type SchedulerConfig struct {
	// TimezoneOffsetMinutes shifts calendar extraction for schedule matching;
	// the system timezone is never consulted.
	TimezoneOffsetMinutes int `json:"timezone_offset_minutes,omitempty"`
	// ExcludeWindows defer triggers inside the given local-time ranges.
	ExcludeWindows []schedule.Window `json:"exclude_windows,omitempty"`
}

type SecurityConfig struct {
	Level           string   `json:"level,omitempty"`
	AllowedTools    []string `json:"allowed_tools,omitempty"`
	DisallowedTools []string `json:"disallowed_tools,omitempty"`
}

type StorageConfig struct {
	// Driver is "file" (JSONL) or "sqlite".
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`
}

type NotifyConfig struct {
	Enabled bool `json:"enabled"`
	// RatePerMinute caps outbound notifications; excess ones are dropped.
	RatePerMinute int    `json:"rate_per_minute,omitempty"`
	Path          string `json:"path,omitempty"`
}

// Default returns the settings written on first start.
func Default() *Settings {
	s := &Settings{}
	s.Logging.Level = "info"
	s.Logging.Console = true
	s.Runner.Binary = "claude"
	s.Runner.OutputFormat = "text"
	s.Heartbeat.IntervalMinutes = 15
	s.Security.Level = string(policy.DefaultLevel)
	s.Storage.Driver = "file"
	s.Notify.Enabled = true
	s.Notify.RatePerMinute = 6
	return s
}

// Normalize fills zero values with defaults and clamps ranges. It is applied
// after every parse so downstream readers never see raw zero values.
func (s *Settings) Normalize() {
	if s.Logging.Level == "" {
		s.Logging.Level = "info"
	}
	if s.Runner.Binary == "" {
		s.Runner.Binary = "claude"
	}
	if s.Runner.OutputFormat == "" {
		s.Runner.OutputFormat = "text"
	}
	if s.Heartbeat.IntervalMinutes <= 0 {
		s.Heartbeat.IntervalMinutes = 15
	}
	if s.Heartbeat.IntervalMinutes > 1440 {
		s.Heartbeat.IntervalMinutes = 1440
	}
	s.Security.Level = string(policy.ParseLevel(s.Security.Level))
	if s.Storage.Driver == "" {
		s.Storage.Driver = "file"
	}
	if s.Notify.RatePerMinute <= 0 {
		s.Notify.RatePerMinute = 6
	}
}

// Validate rejects settings that cannot be acted on.
func (s *Settings) Validate() error {
	switch s.Storage.Driver {
	case "", "file", "sqlite":
	default:
		return fmt.Errorf("storage.driver %q not supported", s.Storage.Driver)
	}
	if s.Scheduler.TimezoneOffsetMinutes < -14*60 || s.Scheduler.TimezoneOffsetMinutes > 14*60 {
		return fmt.Errorf("scheduler.timezone_offset_minutes %d out of range", s.Scheduler.TimezoneOffsetMinutes)
	}
	for i, w := range s.Scheduler.ExcludeWindows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("scheduler.exclude_windows[%d]: %w", i, err)
		}
	}
	return nil
}
