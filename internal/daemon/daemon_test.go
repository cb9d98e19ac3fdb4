package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"agentpulse/internal/config"
	"agentpulse/internal/jobs"
	"agentpulse/internal/schedule"
	logx "agentpulse/pkg/logx"
)

type fakeQueue struct {
	mu      sync.Mutex
	labels  []string
	prompts []string
}

func (f *fakeQueue) SubmitAsync(label, prompt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels = append(f.labels, label)
	f.prompts = append(f.prompts, prompt)
	return nil
}

func (f *fakeQueue) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.labels))
	copy(out, f.labels)
	return out
}

type staticSettings struct{ s *config.Settings }

func (ss staticSettings) Get() *config.Settings { return ss.s }

func writeJob(t *testing.T, dir, name, header, body string) {
	t.Helper()
	doc := "---\n" + header + "\n---\n" + body + "\n"
	if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write job %s: %v", name, err)
	}
}

func newTestDaemon(t *testing.T, set *config.Settings) (*Service, *fakeQueue, config.Paths) {
	t.Helper()
	paths := config.NewPaths(t.TempDir())
	if err := paths.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	queue := &fakeQueue{}
	store := jobs.NewStore(paths.JobsDir(), logx.Nop())
	svc := New(store, queue, staticSettings{s: set}, paths, logx.Nop())
	return svc, queue, paths
}

func loadJobs(t *testing.T, svc *Service) {
	t.Helper()
	loaded, err := svc.store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	svc.jobs = loaded
}

// allDayWindows covers every minute of the week: one plain window for the
// day and one overnight window for the minute the first cannot express.
var allDayWindows = []schedule.Window{
	{Start: "00:00", End: "23:59"},
	{Start: "23:00", End: "00:30"},
}

func TestTickDispatchesDueJobs(t *testing.T) {
	set := config.Default()
	set.Normalize()
	set.Heartbeat.Enabled = false

	svc, queue, paths := newTestDaemon(t, set)
	writeJob(t, paths.JobsDir(), "always", "schedule: \"* * * * *\"\nrecurring: true", "do the rounds")
	writeJob(t, paths.JobsDir(), "never", "schedule: \"0 0 31 2 *\"\nrecurring: true", "unreachable")
	loadJobs(t, svc)

	svc.tick()

	got := queue.submitted()
	if len(got) != 1 || got[0] != "always" {
		t.Fatalf("submitted = %v, want [always]", got)
	}
	if len(svc.Jobs()) != 2 {
		t.Fatalf("recurring jobs should survive the tick, have %d", len(svc.Jobs()))
	}
}

func TestTickRetiresOneShot(t *testing.T) {
	set := config.Default()
	set.Normalize()

	svc, queue, paths := newTestDaemon(t, set)
	writeJob(t, paths.JobsDir(), "oneshot", "schedule: \"* * * * *\"", "fire once")
	loadJobs(t, svc)

	svc.tick()

	if got := queue.submitted(); len(got) != 1 || got[0] != "oneshot" {
		t.Fatalf("submitted = %v, want [oneshot]", got)
	}
	if len(svc.Jobs()) != 0 {
		t.Fatal("one-shot job should be dropped after firing")
	}
	// The document loses its schedule so a restart cannot re-fire it.
	content, err := os.ReadFile(filepath.Join(paths.JobsDir(), "oneshot.md"))
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	if strings.Contains(string(content), "schedule:") {
		t.Fatalf("schedule still present after one-shot fired:\n%s", content)
	}
}

func TestTickDefersInsideExclusionWindow(t *testing.T) {
	set := config.Default()
	set.Normalize()
	set.Scheduler.ExcludeWindows = allDayWindows

	svc, queue, paths := newTestDaemon(t, set)
	writeJob(t, paths.JobsDir(), "blocked", "schedule: \"* * * * *\"\nrecurring: true", "held back")
	loadJobs(t, svc)

	svc.tick()

	if got := queue.submitted(); len(got) != 0 {
		t.Fatalf("submitted = %v, want none inside exclusion window", got)
	}
	if len(svc.Jobs()) != 1 {
		t.Fatal("deferred job must stay loaded")
	}
}

func TestTickWritesStatusSnapshot(t *testing.T) {
	set := config.Default()
	set.Normalize()

	svc, _, paths := newTestDaemon(t, set)
	writeJob(t, paths.JobsDir(), "soon", "schedule: \"* * * * *\"\nrecurring: true", "p")
	writeJob(t, paths.JobsDir(), "unreachable", "schedule: \"0 0 31 2 *\"\nrecurring: true", "p")
	loadJobs(t, svc)

	svc.tick()

	st, err := ReadStatus(paths.StateFile())
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if st.PID != os.Getpid() {
		t.Fatalf("pid = %d, want %d", st.PID, os.Getpid())
	}
	if len(st.Jobs) != 2 {
		t.Fatalf("got %d job entries, want 2", len(st.Jobs))
	}
	byName := map[string]JobStatus{}
	for _, js := range st.Jobs {
		byName[js.Name] = js
	}
	if js := byName["soon"]; js.Unknown || js.NextAt == nil {
		t.Fatalf("soon should have a next run: %+v", js)
	}
	if js := byName["unreachable"]; !js.Unknown || js.NextAt != nil {
		t.Fatalf("unreachable should be unknown: %+v", js)
	}
}

func TestHeartbeatHonorsSettings(t *testing.T) {
	set := config.Default()
	set.Normalize()
	set.Heartbeat.Enabled = true
	set.Heartbeat.Prompt = "check in"

	svc, queue, _ := newTestDaemon(t, set)
	svc.heartbeat()
	if got := queue.submitted(); len(got) != 1 || got[0] != HeartbeatLabel {
		t.Fatalf("submitted = %v, want [%s]", got, HeartbeatLabel)
	}
	queue.mu.Lock()
	prompt := queue.prompts[0]
	queue.mu.Unlock()
	if prompt != "check in" {
		t.Fatalf("prompt = %q", prompt)
	}

	set.Heartbeat.Enabled = false
	svc.heartbeat()
	if got := queue.submitted(); len(got) != 1 {
		t.Fatalf("disabled heartbeat still submitted: %v", got)
	}

	set.Heartbeat.Enabled = true
	set.Scheduler.ExcludeWindows = allDayWindows
	svc.heartbeat()
	if got := queue.submitted(); len(got) != 1 {
		t.Fatalf("excluded heartbeat still submitted: %v", got)
	}
}

func TestHeartbeatDefaultPrompt(t *testing.T) {
	set := config.Default()
	set.Normalize()
	set.Heartbeat.Enabled = true

	svc, queue, _ := newTestDaemon(t, set)
	svc.heartbeat()
	queue.mu.Lock()
	defer queue.mu.Unlock()
	if len(queue.prompts) != 1 || queue.prompts[0] != defaultHeartbeatPrompt {
		t.Fatalf("prompts = %v", queue.prompts)
	}
}

func TestPIDFileLifecycle(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "daemon.pid")

	if err := WritePIDFile(path); err != nil {
		t.Fatalf("WritePIDFile: %v", err)
	}
	pid, err := ReadPIDFile(path)
	if err != nil || pid != os.Getpid() {
		t.Fatalf("ReadPIDFile = (%d, %v)", pid, err)
	}

	// Our own pid is alive, so a second daemon must refuse to start.
	if err := WritePIDFile(path); err == nil {
		t.Fatal("expected refusal while marker is owned by a live process")
	}

	if err := RemovePIDFile(path); err != nil {
		t.Fatalf("RemovePIDFile: %v", err)
	}
	if err := RemovePIDFile(path); err != nil {
		t.Fatalf("RemovePIDFile should be idempotent: %v", err)
	}

	// A stale marker from a dead process is replaced.
	if err := os.WriteFile(path, []byte("99999999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WritePIDFile(path); err != nil {
		t.Fatalf("stale marker not replaced: %v", err)
	}
}
