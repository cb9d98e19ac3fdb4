package runner

import (
	"context"
	"fmt"
	"time"

	"agentpulse/internal/config"
	"agentpulse/internal/eventbus"
	"agentpulse/internal/policy"
	"agentpulse/internal/storage"
	logx "agentpulse/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh chan struct{}, queue chan submission) {
	for {
		// Fast exit when stopping; don't drain the queue.
		select {
		case <-stopCh:
			return
		default:
		}

		select {
		case <-stopCh:
			return
		case sub := <-queue:
			res, err := s.execOne(ctx, sub)
			if sub.reply != nil {
				sub.reply <- outcome{res: res, err: err}
			} else if err != nil {
				s.log.Error("run failed", logx.String("label", sub.label), logx.Err(err))
			}
		}
	}
}

// execOne performs a single assistant invocation end to end: resolve the
// session identity, compose arguments from live settings, run the process,
// persist the run log and history record, and publish lifecycle events.
func (s *Service) execOne(ctx context.Context, sub submission) (Result, error) {
	started := time.Now()

	info, isNew, err := s.sessions.GetOrCreate()
	if err != nil {
		s.publish(EventRunFailed, RunEvent{Label: sub.label, Started: started, Error: err.Error()})
		return Result{}, fmt.Errorf("resolve session: %w", err)
	}

	s.publish(EventRunStarted, RunEvent{
		Label:      sub.label,
		SessionID:  info.ID,
		NewSession: isNew,
		Started:    started,
	})
	s.log.Info("run started",
		logx.String("label", sub.label),
		logx.String("session", info.ID),
		logx.Bool("new_session", isNew))

	// Settings are re-read for every run so security edits apply to the very
	// next invocation.
	set := s.settings.Get()
	inv := s.compose(set, sub.prompt, info.ID, isNew)

	res, err := s.invoker.Invoke(ctx, inv)
	took := time.Since(started)
	if err != nil {
		s.log.Error("run spawn failed", logx.String("label", sub.label), logx.Err(err))
		s.record(ctx, sub.label, info.ID, isNew, started, took, -1, err.Error())
		s.publish(EventRunFailed, RunEvent{
			Label:      sub.label,
			SessionID:  info.ID,
			NewSession: isNew,
			Started:    started,
			Duration:   took,
			Error:      err.Error(),
		})
		return Result{}, err
	}

	s.writeRunLog(sub.label, sub.prompt, info.ID, isNew, started, res)
	s.record(ctx, sub.label, info.ID, isNew, started, took, res.ExitCode, "")

	evType := EventRunFinished
	if res.ExitCode != 0 {
		evType = EventRunFailed
	}
	s.publish(evType, RunEvent{
		Label:      sub.label,
		SessionID:  info.ID,
		NewSession: isNew,
		ExitCode:   res.ExitCode,
		Started:    started,
		Duration:   took,
	})
	s.log.Info("run finished",
		logx.String("label", sub.label),
		logx.Int("exit_code", res.ExitCode),
		logx.Duration("took", took))
	return res, nil
}

// compose builds the full process invocation. Argument order matters: a fresh
// session gets its id and the one-time init system prompt, a resumed session
// gets the resume directive, and policy args go last so level restrictions
// override anything before them.
func (s *Service) compose(set *config.Settings, prompt, sessionID string, isNew bool) Invocation {
	args := []string{"-p", prompt, "--output-format", set.Runner.OutputFormat}

	if isNew {
		args = append(args, "--session-id", sessionID)
		if init := config.ResolvePrompt(set.Runner.InitSystemPrompt, s.log); init != "" {
			args = append(args, "--append-system-prompt", init)
		}
	} else {
		args = append(args, "--resume", sessionID)
	}

	args = append(args, policy.BuildArgs(
		policy.Level(set.Security.Level),
		set.Security.AllowedTools,
		set.Security.DisallowedTools,
	)...)

	return Invocation{Binary: set.Runner.Binary, Args: args}
}

func (s *Service) record(ctx context.Context, label, sessionID string, isNew bool, started time.Time, took time.Duration, exitCode int, errMsg string) {
	if s.store == nil {
		return
	}
	rec := storage.RunRecord{
		At:         started.UTC(),
		Label:      label,
		SessionID:  sessionID,
		NewSession: isNew,
		ExitCode:   exitCode,
		TookMS:     took.Milliseconds(),
		Error:      errMsg,
	}
	if err := s.store.AppendRun(ctx, rec); err != nil {
		s.log.Warn("run history append failed", logx.Err(err))
	}
}

func (s *Service) publish(evType string, ev RunEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: evType, Data: ev})
}
