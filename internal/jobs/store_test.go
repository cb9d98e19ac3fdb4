package jobs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	logx "agentpulse/pkg/logx"
)

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadParsesHeaderFields(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeDoc(t, dir, "digest.md", "---\nschedule: \"0 9 * * 1-5\"\nrecurring: yes\nnotify: error\n---\nSummarize overnight activity.\n")

	store := NewStore(dir, logx.Nop())
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("loaded %d jobs, want 1", len(got))
	}
	j := got[0]
	if j.Name != "digest" {
		t.Errorf("Name = %q", j.Name)
	}
	if j.Schedule != "0 9 * * 1-5" {
		t.Errorf("Schedule = %q (quotes not stripped?)", j.Schedule)
	}
	if !j.Recurring {
		t.Error("recurring: yes should parse as true")
	}
	if j.Notify != NotifyOnError {
		t.Errorf("Notify = %q, want %q", j.Notify, NotifyOnError)
	}
	if j.Kind != KindPrompt {
		t.Errorf("Kind = %q, want %q", j.Kind, KindPrompt)
	}
	if j.Prompt != "Summarize overnight activity." {
		t.Errorf("Prompt = %q", j.Prompt)
	}
}

func TestLoadDefaultsAndLegacyAlias(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeDoc(t, dir, "old.md", "---\nschedule: 0 8 * * *\ndaily: true\nunknown-key: ignored\n---\nbody\n")

	store := NewStore(dir, logx.Nop())
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("loaded %d jobs, want 1", len(got))
	}
	if !got[0].Recurring {
		t.Error("legacy daily: true should set Recurring")
	}
	if got[0].Notify != NotifyAlways {
		t.Errorf("Notify default = %q, want %q", got[0].Notify, NotifyAlways)
	}
}

func TestLoadSkipsMalformedDocuments(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeDoc(t, dir, "good.md", "---\nschedule: '*/5 * * * *'\n---\nok\n")
	writeDoc(t, dir, "no-header.md", "just a prompt, no frontmatter\n")
	writeDoc(t, dir, "no-schedule.md", "---\nnotify: false\n---\nbody\n")
	writeDoc(t, dir, "bad-schedule.md", "---\nschedule: 99 * * * *\n---\nbody\n")
	writeDoc(t, dir, "empty-script.md", "---\nschedule: 0 0 * * *\ntype: script\n---\n")
	writeDoc(t, dir, "notes.txt", "not a job document")

	store := NewStore(dir, logx.Nop())
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "good" {
		t.Fatalf("loaded %v, want only the good document", names(got))
	}
}

func TestLoadSortsByName(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, n := range []string{"zeta.md", "alpha.md", "mid.md"} {
		writeDoc(t, dir, n, "---\nschedule: 0 0 * * *\n---\nx\n")
	}

	store := NewStore(dir, logx.Nop())
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("loaded %d jobs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i] {
			t.Fatalf("order = %v, want %v", names(got), want)
		}
	}
}

func TestLoadMissingDirIsEmpty(t *testing.T) {
	t.Parallel()
	store := NewStore(filepath.Join(t.TempDir(), "nope"), logx.Nop())
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("loaded %d jobs from missing dir", len(got))
	}
}

func TestClearSchedule(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeDoc(t, dir, "once.md", "---\nschedule: 30 6 * * *\nnotify: false\n---\nRun exactly once.\n")

	store := NewStore(dir, logx.Nop())
	if err := store.ClearSchedule("once"); err != nil {
		t.Fatalf("ClearSchedule error: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "once.md"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if strings.Contains(string(content), "schedule:") {
		t.Fatalf("schedule line still present:\n%s", content)
	}
	if !strings.Contains(string(content), "notify: false") {
		t.Fatalf("other header fields lost:\n%s", content)
	}
	if !strings.Contains(string(content), "Run exactly once.") {
		t.Fatalf("body lost:\n%s", content)
	}

	// Re-load now skips the document (no schedule).
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("cleared job still loads: %v", names(got))
	}
}

func TestClearScheduleNoops(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := NewStore(dir, logx.Nop())

	if err := store.ClearSchedule("missing"); err != nil {
		t.Fatalf("ClearSchedule on absent document: %v", err)
	}

	writeDoc(t, dir, "plain.md", "---\nnotify: true\n---\nbody\n")
	before, _ := os.ReadFile(filepath.Join(dir, "plain.md"))
	if err := store.ClearSchedule("plain"); err != nil {
		t.Fatalf("ClearSchedule without schedule field: %v", err)
	}
	after, _ := os.ReadFile(filepath.Join(dir, "plain.md"))
	if string(before) != string(after) {
		t.Fatal("document without schedule field was rewritten")
	}
}

func names(js []Job) []string {
	out := make([]string, 0, len(js))
	for _, j := range js {
		out = append(out, j.Name)
	}
	return out
}
