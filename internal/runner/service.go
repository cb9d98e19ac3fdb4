package runner

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"agentpulse/internal/config"
	"agentpulse/internal/eventbus"
	"agentpulse/internal/session"
	"agentpulse/internal/storage"
	logx "agentpulse/pkg/logx"
)

// SettingsSource yields the current committed settings; satisfied by
// *config.Manager. The security policy is re-read from it for every
// submission, never cached across invocations.
type SettingsSource interface {
	Get() *config.Settings
}

type submission struct {
	label  string
	prompt string
	reply  chan outcome // buffered(1); nil for fire-and-forget
}

type outcome struct {
	res Result
	err error
}

// Service is the serialized execution queue. Exactly one worker goroutine
// consumes the task channel, which is what guarantees strict FIFO with
// at-most-one assistant invocation in flight: all invocations share one
// conversation identity, and overlap would corrupt its state.
type Service struct {
	log      logx.Logger
	bus      eventbus.Bus
	sessions *session.Registry
	settings SettingsSource
	store    storage.Store
	logsDir  string
	invoker  Invoker

	mu        sync.Mutex
	queue     chan submission
	stopCh    chan struct{}
	stopDone  chan struct{}
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func New(sessions *session.Registry, settings SettingsSource, store storage.Store, bus eventbus.Bus, logsDir string, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log,
		bus:      bus,
		sessions: sessions,
		settings: settings,
		store:    store,
		logsDir:  logsDir,
		invoker:  execInvoker{},
	}
}

// SetInvoker replaces the process spawner; call before Start.
func (s *Service) SetInvoker(inv Invoker) { s.invoker = inv }

func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it to complete first.
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
			// loop
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	s.stopCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	// Fresh queue per run so stale submissions don't execute after a
	// stop/start toggle.
	s.queue = make(chan submission, 64)

	runQueue := s.queue
	stopCh := s.stopCh

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in runner worker", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.worker(runCtx, stopCh, runQueue)
	}()

	s.log.Info("runner started")
}

func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	go func() {
		s.workerWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.queue = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("runner stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

// Submit enqueues an invocation and blocks until it has fully completed,
// returning the captured result. Submissions from any number of concurrent
// callers execute strictly one at a time in queue order.
func (s *Service) Submit(ctx context.Context, label, prompt string) (Result, error) {
	reply := make(chan outcome, 1)
	if err := s.enqueue(submission{label: label, prompt: prompt, reply: reply}); err != nil {
		return Result{}, err
	}
	select {
	case out := <-reply:
		return out.res, out.err
	case <-ctx.Done():
		// The submission stays queued; its result is discarded (reply is
		// buffered so the worker never blocks on it).
		return Result{}, ctx.Err()
	}
}

// SubmitAsync enqueues an invocation without waiting for it. Failures are
// logged and published on the bus; this is the scheduler's fire-and-forget
// path.
func (s *Service) SubmitAsync(label, prompt string) error {
	return s.enqueue(submission{label: label, prompt: prompt})
}

func (s *Service) enqueue(sub submission) error {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()

	if q == nil {
		return ErrStopped
	}
	select {
	case q <- sub:
		return nil
	default:
		s.log.Warn("runner queue full; dropping submission", logx.String("label", sub.label))
		return ErrQueueFull
	}
}
