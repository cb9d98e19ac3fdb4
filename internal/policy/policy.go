package policy

import (
	"strings"
)

// Level is the named security tier applied to one assistant invocation.
// Levels are ordered from most to least restrictive.
type Level string

const (
	LevelLocked       Level = "locked"
	LevelStrict       Level = "strict"
	LevelModerate     Level = "moderate"
	LevelUnrestricted Level = "unrestricted"
)

// DefaultLevel is used when settings carry an unknown or empty level.
const DefaultLevel = LevelModerate

// readOnlyTools are the only capabilities available under LevelLocked.
var readOnlyTools = []string{"Read", "Grep", "Glob", "LS"}

// execTools are the shell- and network-fetch-capable tools denied by
// LevelStrict.
var execTools = []string{"Bash", "WebFetch", "WebSearch"}

// scopeInstruction is injected by LevelModerate to keep the assistant inside
// the working project directory.
const scopeInstruction = "Operate only within the current project directory. " +
	"Do not read, modify, or execute anything outside of it."

// ParseLevel normalizes a configured level string, falling back to
// DefaultLevel for anything unrecognized.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelLocked:
		return LevelLocked
	case LevelStrict:
		return LevelStrict
	case LevelModerate:
		return LevelModerate
	case LevelUnrestricted:
		return LevelUnrestricted
	}
	return DefaultLevel
}

// BuildArgs deterministically maps a level plus explicit allow/deny lists to
// assistant process arguments. It is a pure function of its inputs and must
// be re-evaluated from live settings for every invocation.
//
// Explicit lists are appended before the level arguments, so level-mandated
// restrictions always win: the level is a floor, user lists can only narrow
// it further.
func BuildArgs(level Level, allowed, disallowed []string) []string {
	var args []string

	// Explicit user lists first.
	if len(allowed) > 0 {
		args = append(args, "--allowedTools", strings.Join(allowed, ","))
	}
	if len(disallowed) > 0 {
		args = append(args, "--disallowedTools", strings.Join(disallowed, ","))
	}

	switch level {
	case LevelLocked:
		args = append(args, "--allowedTools", strings.Join(readOnlyTools, ","))
	case LevelStrict:
		args = append(args, "--disallowedTools", strings.Join(execTools, ","))
	case LevelModerate:
		args = append(args, "--append-system-prompt", scopeInstruction)
	case LevelUnrestricted:
		// no restrictions
	}

	return args
}
