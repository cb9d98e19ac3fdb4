package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "agentpulse/pkg/logx"
)

// writeRunLog persists a human-readable transcript of one invocation under
// the logs directory. Log writing is best effort; a failure never affects
// the run outcome.
func (s *Service) writeRunLog(label, prompt, sessionID string, isNew bool, started time.Time, res Result) {
	if s.logsDir == "" {
		return
	}

	mode := "resumed"
	if isNew {
		mode = "new"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", label)
	fmt.Fprintf(&b, "Date: %s\n", started.Format(time.RFC3339))
	fmt.Fprintf(&b, "Session: %s (%s)\n", sessionID, mode)
	fmt.Fprintf(&b, "Prompt: %s\n", prompt)
	fmt.Fprintf(&b, "Exit code: %d\n", res.ExitCode)
	fmt.Fprintf(&b, "\n## Output\n\n%s\n", res.Stdout)
	if res.Stderr != "" {
		fmt.Fprintf(&b, "\n## Stderr\n\n%s\n", res.Stderr)
	}

	if err := os.MkdirAll(s.logsDir, 0o755); err != nil {
		s.log.Warn("run log dir unavailable", logx.Err(err))
		return
	}
	path := filepath.Join(s.logsDir, runLogName(label, started))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		s.log.Warn("run log write failed", logx.String("path", path), logx.Err(err))
	}
}

// runLogName builds a filesystem-safe file name from the run label and start
// time, e.g. "morning-review-2026-03-10T09-00-00Z.log".
func runLogName(label string, started time.Time) string {
	stamp := started.UTC().Format(time.RFC3339)
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	safe := strings.NewReplacer(" ", "-", "/", "-", ":", "-", ".", "-").Replace(label)
	return fmt.Sprintf("%s-%s.log", safe, stamp)
}
