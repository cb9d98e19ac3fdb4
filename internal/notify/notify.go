package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"agentpulse/internal/eventbus"
	"agentpulse/internal/jobs"
	"agentpulse/internal/runner"
	logx "agentpulse/pkg/logx"
)

// Message is one outbound notification.
type Message struct {
	At       time.Time `json:"at"`
	Label    string    `json:"label"`
	ExitCode int       `json:"exit_code"`
	Failed   bool      `json:"failed"`
	Error    string    `json:"error,omitempty"`
	Duration string    `json:"duration,omitempty"`
}

// Sink delivers a message to wherever notifications go.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// ModeFunc maps a run label to its notification preference. Labels without a
// job document (the heartbeat, ad hoc submissions) get NotifyAlways.
type ModeFunc func(label string) jobs.NotifyMode

// Options configure the router.
type Options struct {
	Enabled       bool
	RatePerMinute int
	Sink          Sink
	Mode          ModeFunc
}

// Service watches run lifecycle events on the bus and forwards the ones the
// job's notification mode asks for, rate limited so a misfiring schedule
// cannot flood the sink.
type Service struct {
	log     logx.Logger
	bus     eventbus.Bus
	opts    Options
	limiter *rate.Limiter

	mu       sync.Mutex
	stopCh   chan struct{}
	stopDone chan struct{}
	wg       sync.WaitGroup
}

func New(bus eventbus.Bus, opts Options, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Mode == nil {
		opts.Mode = func(string) jobs.NotifyMode { return jobs.NotifyAlways }
	}
	perMin := opts.RatePerMinute
	if perMin <= 0 {
		perMin = 6
	}
	return &Service{
		log:     log,
		bus:     bus,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin),
	}
}

func (s *Service) Start(ctx context.Context) {
	if !s.opts.Enabled || s.bus == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.stopDone = make(chan struct{})

	events, unsub := s.bus.Subscribe(32)
	stopCh := s.stopCh

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsub()
		s.loop(ctx, stopCh, events)
	}()
	s.log.Info("notify router started")
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	stopCh := s.stopCh
	done := s.stopDone
	s.stopCh = nil
	s.stopDone = nil
	s.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)

	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) loop(ctx context.Context, stopCh chan struct{}, events <-chan eventbus.Event) {
	for {
		select {
		case <-stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Service) handle(ctx context.Context, ev eventbus.Event) {
	if ev.Type != runner.EventRunFinished && ev.Type != runner.EventRunFailed {
		return
	}
	run, ok := ev.Data.(runner.RunEvent)
	if !ok {
		return
	}

	failed := ev.Type == runner.EventRunFailed
	switch s.opts.Mode(run.Label) {
	case jobs.NotifyNever:
		return
	case jobs.NotifyOnError:
		if !failed {
			return
		}
	}

	if !s.limiter.Allow() {
		s.log.Warn("notification rate limited", logx.String("label", run.Label))
		return
	}

	msg := Message{
		At:       ev.Time,
		Label:    run.Label,
		ExitCode: run.ExitCode,
		Failed:   failed,
		Error:    run.Error,
	}
	if run.Duration > 0 {
		msg.Duration = run.Duration.Round(time.Millisecond).String()
	}
	if s.opts.Sink == nil {
		return
	}
	if err := s.opts.Sink.Send(ctx, msg); err != nil {
		s.log.Warn("notification delivery failed", logx.String("label", run.Label), logx.Err(err))
	}
}
