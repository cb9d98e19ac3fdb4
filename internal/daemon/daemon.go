package daemon

import (
	"context"
	"os"
	"sync"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"agentpulse/internal/config"
	"agentpulse/internal/jobs"
	"agentpulse/internal/schedule"
	logx "agentpulse/pkg/logx"
)

// HeartbeatLabel is the run label used for periodic heartbeat submissions.
const HeartbeatLabel = "heartbeat"

const defaultHeartbeatPrompt = "Perform your periodic check-in: review pending work, " +
	"surface anything that needs attention, and keep your notes current."

// Submitter is the slice of the execution queue the scheduler needs.
type Submitter interface {
	SubmitAsync(label, prompt string) error
}

// SettingsSource yields the current committed settings.
type SettingsSource interface {
	Get() *config.Settings
}

// Service is the scheduler loop. A cron clock ticks once per minute; each
// tick evaluates every loaded job against live settings (timezone offset,
// exclusion windows) and hands matches to the execution queue. The heartbeat
// runs on its own interval entry. Every tick also refreshes the status
// snapshot so external tooling sees fresh next-run times.
type Service struct {
	log      logx.Logger
	settings SettingsSource
	store    *jobs.Store
	queue    Submitter
	paths    config.Paths

	mu          sync.Mutex
	clock       *cron.Cron
	jobs        []jobs.Job
	heartbeatID cron.EntryID
	hbInterval  time.Duration
}

func New(store *jobs.Store, queue Submitter, settings SettingsSource, paths config.Paths, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log,
		settings: settings,
		store:    store,
		queue:    queue,
		paths:    paths,
	}
}

// Jobs returns the currently loaded job list.
func (s *Service) Jobs() []jobs.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]jobs.Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock != nil {
		return nil
	}

	loaded, err := s.store.Load()
	if err != nil {
		return err
	}
	s.jobs = loaded

	if err := WritePIDFile(s.paths.PIDFile()); err != nil {
		return err
	}

	set := s.settings.Get()

	clock := cron.New()
	if _, err := clock.AddFunc("* * * * *", s.tick); err != nil {
		return err
	}
	s.clock = clock
	s.scheduleHeartbeatLocked(set)

	clock.Start()
	s.writeSnapshotLocked(time.Now(), set)

	if set.Heartbeat.Enabled {
		// First heartbeat fires immediately rather than one interval out.
		go s.heartbeat()
	}

	if _, err := sd.SdNotify(false, sd.SdNotifyReady); err != nil {
		s.log.Debug("sd_notify unavailable", logx.Err(err))
	}
	s.log.Info("scheduler started",
		logx.Int("jobs", len(s.jobs)),
		logx.Bool("heartbeat", set.Heartbeat.Enabled))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	clock := s.clock
	s.clock = nil
	s.heartbeatID = 0
	s.hbInterval = 0
	s.mu.Unlock()

	if clock == nil {
		return
	}
	_, _ = sd.SdNotify(false, sd.SdNotifyStopping)

	stopped := clock.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}

	if err := RemovePIDFile(s.paths.PIDFile()); err != nil {
		s.log.Warn("pid file removal failed", logx.Err(err))
	}
	// A stale snapshot would read as a live daemon; drop it with the pid.
	if err := os.Remove(s.paths.StateFile()); err != nil && !os.IsNotExist(err) {
		s.log.Warn("status snapshot removal failed", logx.Err(err))
	}
	s.log.Info("scheduler stopped")
}

// Apply reacts to a settings update; only the heartbeat cadence needs
// rescheduling, everything else is read live on each tick.
func (s *Service) Apply(set *config.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock == nil {
		return
	}
	s.scheduleHeartbeatLocked(set)
}

func (s *Service) scheduleHeartbeatLocked(set *config.Settings) {
	interval := time.Duration(set.Heartbeat.IntervalMinutes) * time.Minute
	if !set.Heartbeat.Enabled {
		interval = 0
	}
	if interval == s.hbInterval {
		return
	}
	if s.heartbeatID != 0 {
		s.clock.Remove(s.heartbeatID)
		s.heartbeatID = 0
	}
	s.hbInterval = interval
	if interval > 0 {
		s.heartbeatID = s.clock.Schedule(cron.Every(interval), cron.FuncJob(s.heartbeat))
	}
}

// tick runs once per minute: dispatch due jobs, retire fired one-shots, and
// refresh the status snapshot.
func (s *Service) tick() {
	now := time.Now()
	set := s.settings.Get()
	offset := set.Scheduler.TimezoneOffsetMinutes
	windows := set.Scheduler.ExcludeWindows

	s.mu.Lock()
	due := make([]jobs.Job, 0, 2)
	kept := s.jobs[:0]
	for _, job := range s.jobs {
		if !job.Expr.Matches(now, offset) {
			kept = append(kept, job)
			continue
		}
		if schedule.Excluded(now, offset, windows) {
			s.log.Info("job deferred by exclusion window", logx.String("job", job.Name))
			kept = append(kept, job)
			continue
		}
		due = append(due, job)
		if job.Recurring {
			kept = append(kept, job)
		}
	}
	s.jobs = kept
	s.writeSnapshotLocked(now, set)
	s.mu.Unlock()

	for _, job := range due {
		if err := s.queue.SubmitAsync(job.Name, job.Prompt); err != nil {
			s.log.Error("job submission failed", logx.String("job", job.Name), logx.Err(err))
			continue
		}
		s.log.Info("job triggered", logx.String("job", job.Name))
		if !job.Recurring {
			if err := s.store.ClearSchedule(job.Name); err != nil {
				s.log.Warn("one-shot schedule not cleared", logx.String("job", job.Name), logx.Err(err))
			}
		}
	}
}

func (s *Service) heartbeat() {
	set := s.settings.Get()
	if !set.Heartbeat.Enabled {
		return
	}
	now := time.Now()
	if schedule.Excluded(now, set.Scheduler.TimezoneOffsetMinutes, set.Scheduler.ExcludeWindows) {
		s.log.Debug("heartbeat skipped by exclusion window")
		return
	}

	prompt := config.ResolvePrompt(set.Heartbeat.Prompt, s.log)
	if prompt == "" {
		prompt = defaultHeartbeatPrompt
	}
	if err := s.queue.SubmitAsync(HeartbeatLabel, prompt); err != nil {
		s.log.Error("heartbeat submission failed", logx.Err(err))
	}
}

func (s *Service) writeSnapshotLocked(now time.Time, set *config.Settings) {
	offset := set.Scheduler.TimezoneOffsetMinutes
	windows := set.Scheduler.ExcludeWindows

	st := Status{
		UpdatedAt: now.UTC(),
		PID:       os.Getpid(),
		Jobs:      make([]JobStatus, 0, len(s.jobs)),
	}
	if s.heartbeatID != 0 && s.clock != nil {
		if next := s.clock.Entry(s.heartbeatID).Next; !next.IsZero() {
			st.Heartbeat = &HeartbeatStatus{NextAt: next.UTC()}
		}
	}
	for _, job := range s.jobs {
		js := JobStatus{Name: job.Name, Schedule: job.Schedule}
		if next, ok := job.Expr.NextEffective(now, offset, windows); ok {
			u := next.UTC()
			js.NextAt = &u
		} else {
			js.Unknown = true
		}
		st.Jobs = append(st.Jobs, js)
	}

	if err := writeStatus(s.paths.StateFile(), st); err != nil {
		s.log.Warn("status snapshot write failed", logx.Err(err))
	}
}
