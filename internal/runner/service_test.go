package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"agentpulse/internal/config"
	"agentpulse/internal/eventbus"
	"agentpulse/internal/session"
	logx "agentpulse/pkg/logx"
)

type staticSettings struct{ s *config.Settings }

func (ss staticSettings) Get() *config.Settings { return ss.s }

type span struct {
	label string
	start time.Time
	end   time.Time
}

// fakeInvoker records the wall-clock span of every invocation so tests can
// assert serialization.
type fakeInvoker struct {
	mu    sync.Mutex
	spans []span
	hold  time.Duration
	fail  map[string]bool // label -> spawn failure
	exit  map[string]int  // label -> exit code
}

func (f *fakeInvoker) Invoke(_ context.Context, inv Invocation) (Result, error) {
	label := labelFromArgs(inv.Args)
	start := time.Now()
	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	end := time.Now()

	f.mu.Lock()
	f.spans = append(f.spans, span{label: label, start: start, end: end})
	f.mu.Unlock()

	if f.fail[label] {
		return Result{}, errors.New("spawn failed")
	}
	return Result{Stdout: "ok", ExitCode: f.exit[label]}, nil
}

// labelFromArgs recovers the test label smuggled through the prompt slot.
func labelFromArgs(args []string) string {
	for i, a := range args {
		if a == "-p" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func newTestService(t *testing.T, inv Invoker) (*Service, context.CancelFunc) {
	t.Helper()
	set := config.Default()
	set.Normalize()
	reg := session.NewRegistry(t.TempDir(), logx.Nop())
	svc := New(reg, staticSettings{s: set}, nil, eventbus.New(), t.TempDir(), logx.Nop())
	svc.SetInvoker(inv)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	t.Cleanup(func() {
		svc.Stop(context.Background())
		cancel()
	})
	return svc, cancel
}

func TestSubmitSerializesConcurrentCallers(t *testing.T) {
	t.Parallel()
	fake := &fakeInvoker{hold: 10 * time.Millisecond}
	svc, _ := newTestService(t, fake)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.Submit(context.Background(), fmt.Sprintf("job-%d", i), fmt.Sprintf("job-%d", i)); err != nil {
				t.Errorf("Submit job-%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.spans) != n {
		t.Fatalf("got %d invocations, want %d", len(fake.spans), n)
	}
	for i := 1; i < len(fake.spans); i++ {
		prev, cur := fake.spans[i-1], fake.spans[i]
		if cur.start.Before(prev.end) {
			t.Fatalf("invocation %d (%s) started at %v before %d (%s) ended at %v",
				i, cur.label, cur.start, i-1, prev.label, prev.end)
		}
	}
}

func TestSubmitPreservesQueueOrder(t *testing.T) {
	t.Parallel()
	fake := &fakeInvoker{}
	svc, _ := newTestService(t, fake)

	// Enqueue from one goroutine so queue order is deterministic, then wait
	// for the last one to drain.
	for i := 0; i < 5; i++ {
		if err := svc.SubmitAsync(fmt.Sprintf("seq-%d", i), fmt.Sprintf("seq-%d", i)); err != nil {
			t.Fatalf("SubmitAsync seq-%d: %v", i, err)
		}
	}
	if _, err := svc.Submit(context.Background(), "seq-last", "seq-last"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	want := []string{"seq-0", "seq-1", "seq-2", "seq-3", "seq-4", "seq-last"}
	if len(fake.spans) != len(want) {
		t.Fatalf("got %d invocations, want %d", len(fake.spans), len(want))
	}
	for i, w := range want {
		if fake.spans[i].label != w {
			t.Fatalf("position %d: got %q, want %q", i, fake.spans[i].label, w)
		}
	}
}

func TestFailedRunDoesNotJamQueue(t *testing.T) {
	t.Parallel()
	fake := &fakeInvoker{fail: map[string]bool{"bad": true}}
	svc, _ := newTestService(t, fake)

	if _, err := svc.Submit(context.Background(), "bad", "bad"); err == nil {
		t.Fatal("expected spawn error")
	}
	res, err := svc.Submit(context.Background(), "good", "good")
	if err != nil {
		t.Fatalf("Submit after failure: %v", err)
	}
	if res.Stdout != "ok" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestNonZeroExitIsResultNotError(t *testing.T) {
	t.Parallel()
	fake := &fakeInvoker{exit: map[string]int{"warn": 3}}
	svc, _ := newTestService(t, fake)

	res, err := svc.Submit(context.Background(), "warn", "warn")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestSubmitAfterStopReturnsErrStopped(t *testing.T) {
	t.Parallel()
	fake := &fakeInvoker{}
	svc, _ := newTestService(t, fake)
	svc.Stop(context.Background())

	if _, err := svc.Submit(context.Background(), "late", "late"); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
	if err := svc.SubmitAsync("late", "late"); !errors.Is(err, ErrStopped) {
		t.Fatalf("async err = %v, want ErrStopped", err)
	}
}

func TestComposeArgs(t *testing.T) {
	t.Parallel()
	set := config.Default()
	set.Normalize()
	set.Security.Level = "locked"
	svc := New(nil, staticSettings{s: set}, nil, nil, "", logx.Nop())

	inv := svc.compose(set, "do the thing", "sess-1", false)
	if inv.Binary != "claude" {
		t.Fatalf("binary = %q", inv.Binary)
	}
	joined := strings.Join(inv.Args, " ")
	if !strings.Contains(joined, "-p do the thing") {
		t.Fatalf("prompt missing from args: %v", inv.Args)
	}
	if !strings.Contains(joined, "--resume sess-1") {
		t.Fatalf("resume flag missing: %v", inv.Args)
	}
	if !strings.Contains(joined, "--allowedTools Read,Grep,Glob,LS") {
		t.Fatalf("locked policy args missing: %v", inv.Args)
	}

	fresh := svc.compose(set, "hi", "sess-2", true)
	joined = strings.Join(fresh.Args, " ")
	if !strings.Contains(joined, "--session-id sess-2") {
		t.Fatalf("session-id flag missing for new session: %v", fresh.Args)
	}
	if strings.Contains(joined, "--resume") {
		t.Fatalf("resume flag present for new session: %v", fresh.Args)
	}
}

func TestRunLogName(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	got := runLogName("morning review", at)
	if got != "morning-review-2026-03-10T09-00-00Z.log" {
		t.Fatalf("runLogName = %q", got)
	}
}
