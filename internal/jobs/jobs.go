package jobs

import (
	"strings"

	"agentpulse/internal/schedule"
)

// Kind selects how a job body is handed to the assistant.
type Kind string

const (
	// KindPrompt passes the body verbatim as the prompt.
	KindPrompt Kind = "prompt"
	// KindScript treats the body as an executable instruction set; a script
	// job with an empty body is invalid.
	KindScript Kind = "script"
)

// NotifyMode controls downstream notification routing for a job's outcome.
type NotifyMode string

const (
	NotifyAlways  NotifyMode = "always"
	NotifyNever   NotifyMode = "never"
	NotifyOnError NotifyMode = "error"
)

// Job is one declarative unit loaded from a job document. Jobs are immutable
// once loaded; edits require a reload (process restart).
type Job struct {
	Name      string
	Schedule  string
	Expr      schedule.Expression
	Prompt    string
	Recurring bool
	Notify    NotifyMode
	Kind      Kind
}

// splitDocument separates the "---"-delimited header block from the body.
// ok is false when the delimiters are missing or unterminated.
func splitDocument(content string) (header, body string, ok bool) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", "", false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			header = strings.Join(lines[1:i], "\n")
			body = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
			return header, body, true
		}
	}
	return "", "", false
}

// headerValue extracts the value for key from a header block, stripping
// surrounding quotes. found is false when the key is absent.
func headerValue(header, key string) (value string, found bool) {
	prefix := key + ":"
	for _, line := range strings.Split(header, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, prefix) {
			return unquote(strings.TrimSpace(strings.TrimPrefix(line, prefix))), true
		}
	}
	return "", false
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true
	}
	return false
}
