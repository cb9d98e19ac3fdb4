package config

import (
	"os"
	"path/filepath"
	"strings"

	logx "agentpulse/pkg/logx"
)

var promptExtensions = []string{".md", ".txt", ".prompt"}

// ResolvePrompt reads a prompt from disk when the configured string looks
// like a file path (ends in .md/.txt/.prompt); otherwise the string is used
// verbatim. Relative paths resolve from the process working directory. An
// unreadable path falls back to the literal string with a warning.
func ResolvePrompt(prompt string, log logx.Logger) string {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return trimmed
	}

	isPath := false
	for _, ext := range promptExtensions {
		if strings.HasSuffix(trimmed, ext) {
			isPath = true
			break
		}
	}
	if !isPath {
		return trimmed
	}

	path := trimmed
	if !filepath.IsAbs(path) {
		if wd, err := os.Getwd(); err == nil {
			path = filepath.Join(wd, path)
		}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if !log.IsZero() {
			log.Warn("prompt path unreadable; using literal string", logx.String("path", trimmed), logx.Err(err))
		}
		return trimmed
	}
	return strings.TrimSpace(string(content))
}
