package app

import (
	"context"
	"sync"
	"time"

	"agentpulse/internal/config"
	"agentpulse/internal/daemon"
	"agentpulse/internal/eventbus"
	"agentpulse/internal/jobs"
	"agentpulse/internal/notify"
	"agentpulse/internal/runner"
	"agentpulse/internal/session"
	"agentpulse/internal/storage"
	logx "agentpulse/pkg/logx"
)

const stopTimeout = 10 * time.Second

// App is the composition root: it owns every service, starts them in
// dependency order, and tears them down in reverse.
type App struct {
	paths   config.Paths
	log     logx.Logger
	logs    *logx.Service
	manager *config.Manager
	bus     eventbus.Bus

	store    storage.Store
	sessions *session.Registry
	queue    *runner.Service
	notifier *notify.Service
	sched    *daemon.Service

	cancel  context.CancelFunc
	watchWG sync.WaitGroup
	updates chan *config.Settings
}

func New(baseDir string) *App {
	return &App{paths: config.NewPaths(baseDir)}
}

// Logger exposes the root logger after Start.
func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Start(ctx context.Context) error {
	if err := a.paths.EnsureDirs(); err != nil {
		return err
	}

	a.manager = config.NewManager(a.paths.SettingsFile())
	if err := a.manager.WriteDefaultIfMissing(); err != nil {
		return err
	}
	set, err := a.manager.Load()
	if err != nil {
		return err
	}

	a.logs, a.log = logx.New(logConfig(set))
	a.manager.SetLogger(a.log.With(logx.String("svc", "config")))

	a.bus = eventbus.New()

	storePath := set.Storage.Path
	if storePath == "" {
		storePath = a.paths.HistoryFile()
	}
	a.store, err = storage.Open(storage.Config{Driver: set.Storage.Driver, Path: storePath},
		a.log.With(logx.String("svc", "storage")))
	if err != nil {
		return err
	}

	a.sessions = session.NewRegistry(a.paths.SessionDir(), a.log.With(logx.String("svc", "session")))

	a.queue = runner.New(a.sessions, a.manager, a.store, a.bus, a.paths.LogsDir(),
		a.log.With(logx.String("svc", "runner")))
	a.queue.Start(ctx)

	jobStore := jobs.NewStore(a.paths.JobsDir(), a.log.With(logx.String("svc", "jobs")))
	a.sched = daemon.New(jobStore, a.queue, a.manager, a.paths,
		a.log.With(logx.String("svc", "scheduler")))

	notifyPath := set.Notify.Path
	if notifyPath == "" {
		notifyPath = a.paths.NotificationsFile()
	}
	a.notifier = notify.New(a.bus, notify.Options{
		Enabled:       set.Notify.Enabled,
		RatePerMinute: set.Notify.RatePerMinute,
		Sink:          notify.NewFileSink(notifyPath),
		Mode:          a.notifyMode,
	}, a.log.With(logx.String("svc", "notify")))
	a.notifier.Start(ctx)

	if err := a.sched.Start(ctx); err != nil {
		a.notifier.Stop(ctx)
		a.queue.Stop(ctx)
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.updates = a.manager.Subscribe(1)

	a.watchWG.Add(2)
	go func() {
		defer a.watchWG.Done()
		_ = a.manager.Watch(watchCtx)
	}()
	go func() {
		defer a.watchWG.Done()
		for next := range a.updates {
			if next == nil {
				continue
			}
			a.logs.Apply(logConfig(next))
			a.sched.Apply(next)
		}
	}()

	a.log.Info("daemon ready", logx.String("base", a.paths.Base))
	return nil
}

func (a *App) Stop(ctx context.Context) {
	if a.sched != nil {
		a.sched.Stop(ctx)
	}
	if a.queue != nil {
		a.queue.Stop(ctx)
	}
	if a.notifier != nil {
		a.notifier.Stop(ctx)
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.updates != nil {
		a.manager.Unsubscribe(a.updates)
		a.updates = nil
	}
	a.watchWG.Wait()
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// Run starts everything and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	a.Stop(stopCtx)
	return nil
}

// notifyMode looks up a run label's notification preference in the loaded
// job list; labels without a job document (heartbeat, ad hoc) notify always.
func (a *App) notifyMode(label string) jobs.NotifyMode {
	if a.sched != nil {
		for _, j := range a.sched.Jobs() {
			if j.Name == label {
				return j.Notify
			}
		}
	}
	return jobs.NotifyAlways
}

func logConfig(set *config.Settings) logx.Config {
	return logx.Config{
		Level:   set.Logging.Level,
		Console: set.Logging.Console,
		File: logx.FileConfig{
			Enabled: set.Logging.File.Enabled,
			Path:    set.Logging.File.Path,
		},
	}
}
