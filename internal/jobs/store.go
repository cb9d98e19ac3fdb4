package jobs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"agentpulse/internal/schedule"
	logx "agentpulse/pkg/logx"
)

const docExt = ".md"

// Store loads declarative job documents from a directory. A document is a
// text file with a "---"-delimited key:value header followed by a free-form
// prompt body. Malformed documents are skipped with a warning; they never
// abort the load.
type Store struct {
	dir string
	log logx.Logger
}

func NewStore(dir string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{dir: dir, log: log}
}

func (s *Store) Dir() string { return s.dir }

// Load reads every job document, sorted by name for determinism.
func (s *Store) Load() ([]Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jobs dir: %w", err)
	}

	var out []Job
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), docExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), docExt)
		content, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.log.Warn("job document unreadable; skipping", logx.String("job", name), logx.Err(err))
			continue
		}
		job, ok := s.parse(name, string(content))
		if ok {
			out = append(out, job)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) parse(name, content string) (Job, bool) {
	header, body, ok := splitDocument(content)
	if !ok {
		s.log.Warn("job document missing header delimiters; skipping", logx.String("job", name))
		return Job{}, false
	}

	rawSchedule, found := headerValue(header, "schedule")
	if !found || strings.TrimSpace(rawSchedule) == "" {
		s.log.Warn("job document has no schedule; skipping", logx.String("job", name))
		return Job{}, false
	}
	expr, err := schedule.Parse(rawSchedule)
	if err != nil {
		s.log.Warn("job schedule invalid; skipping", logx.String("job", name), logx.Err(err))
		return Job{}, false
	}

	kind := KindPrompt
	if raw, ok := headerValue(header, "type"); ok && strings.EqualFold(strings.TrimSpace(raw), string(KindScript)) {
		kind = KindScript
	}
	if kind == KindScript && body == "" {
		s.log.Warn("script job has no body; skipping", logx.String("job", name))
		return Job{}, false
	}

	recurring := false
	if raw, ok := headerValue(header, "recurring"); ok {
		recurring = truthy(raw)
	} else if raw, ok := headerValue(header, "daily"); ok {
		// legacy alias
		recurring = truthy(raw)
	}

	notify := NotifyAlways
	if raw, ok := headerValue(header, "notify"); ok {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "false", "no":
			notify = NotifyNever
		case "error":
			notify = NotifyOnError
		}
	}

	return Job{
		Name:      name,
		Schedule:  expr.String(),
		Expr:      expr,
		Prompt:    body,
		Recurring: recurring,
		Notify:    notify,
		Kind:      kind,
	}, true
}

// ClearSchedule rewrites a job document with its schedule field removed,
// disabling a one-shot job after it fires. Absent documents and documents
// without a schedule field are left alone.
func (s *Store) ClearSchedule(name string) error {
	path := filepath.Join(s.dir, name+docExt)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	header, body, ok := splitDocument(string(content))
	if !ok {
		return nil
	}
	if _, found := headerValue(header, "schedule"); !found {
		return nil
	}

	var kept []string
	for _, line := range strings.Split(header, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "schedule:") {
			continue
		}
		kept = append(kept, line)
	}
	next := "---\n" + strings.TrimSpace(strings.Join(kept, "\n")) + "\n---\n" + body + "\n"
	return os.WriteFile(path, []byte(next), 0o644)
}
