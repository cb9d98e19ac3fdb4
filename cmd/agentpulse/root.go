package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"agentpulse/internal/app"
	"agentpulse/internal/config"
	"agentpulse/internal/daemon"
	"agentpulse/internal/session"
	"agentpulse/internal/storage"
	logx "agentpulse/pkg/logx"
)

func newRootCmd() *cobra.Command {
	var baseDir string

	root := &cobra.Command{
		Use:           "agentpulse",
		Short:         "Background automation daemon for an AI assistant CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&baseDir, "dir", config.DefaultBaseDir, "state directory")

	root.AddCommand(
		newRunCmd(&baseDir),
		newStopCmd(&baseDir),
		newStatusCmd(&baseDir),
		newSessionCmd(&baseDir),
	)
	return root
}

func newRunCmd(baseDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.New(*baseDir).Run(ctx)
		},
	}
}

func newStopCmd(baseDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Signal a running daemon to shut down",
		RunE: func(_ *cobra.Command, _ []string) error {
			paths := config.NewPaths(*baseDir)
			pid, err := daemon.ReadPIDFile(paths.PIDFile())
			if err != nil {
				if os.IsNotExist(err) {
					return errors.New("no daemon is running")
				}
				return err
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal pid %d: %w", pid, err)
			}
			fmt.Printf("sent SIGTERM to pid %d\n", pid)
			return nil
		},
	}
}

func newStatusCmd(baseDir *string) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last scheduler snapshot and recent runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths := config.NewPaths(*baseDir)

			st, err := daemon.ReadStatus(paths.StateFile())
			if err != nil {
				if os.IsNotExist(err) {
					return errors.New("no status snapshot; is the daemon running?")
				}
				return err
			}

			fmt.Printf("pid: %d (snapshot %s)\n", st.PID, st.UpdatedAt.Format(time.RFC3339))
			if st.Heartbeat != nil {
				fmt.Printf("heartbeat: next at %s\n", st.Heartbeat.NextAt.Format(time.RFC3339))
			}
			for _, js := range st.Jobs {
				if js.Unknown || js.NextAt == nil {
					fmt.Printf("job %-24s %-18s next: unknown\n", js.Name, js.Schedule)
					continue
				}
				fmt.Printf("job %-24s %-18s next: %s\n", js.Name, js.Schedule, js.NextAt.Format(time.RFC3339))
			}

			if recent > 0 {
				printRecentRuns(cmd.Context(), paths, recent)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 5, "number of recent runs to show (0 disables)")
	return cmd
}

func printRecentRuns(ctx context.Context, paths config.Paths, n int) {
	mgr := config.NewManager(paths.SettingsFile())
	set, err := mgr.Load()
	if err != nil {
		return
	}
	path := set.Storage.Path
	if path == "" {
		path = paths.HistoryFile()
	}
	st, err := storage.Open(storage.Config{Driver: set.Storage.Driver, Path: path}, logx.Nop())
	if err != nil || st == nil {
		return
	}
	defer st.Close()

	runs, err := st.RecentRuns(ctx, n)
	if err != nil || len(runs) == 0 {
		return
	}
	fmt.Println("recent runs:")
	for _, r := range runs {
		outcome := fmt.Sprintf("exit %d", r.ExitCode)
		if r.Error != "" {
			outcome = "error: " + r.Error
		}
		fmt.Printf("  %s %-24s %s (%dms)\n", r.At.Format(time.RFC3339), r.Label, outcome, r.TookMS)
	}
}

func newSessionCmd(baseDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or manage the persistent assistant session",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current session identity",
		RunE: func(_ *cobra.Command, _ []string) error {
			reg := sessionRegistry(*baseDir)
			info, err := reg.Peek()
			if err != nil {
				return err
			}
			if info == nil {
				fmt.Println("no active session")
				return nil
			}
			fmt.Printf("session: %s\ncreated: %s\nlast used: %s\n",
				info.ID,
				info.CreatedAt.Format(time.RFC3339),
				info.LastUsedAt.Format(time.RFC3339))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Discard the current session so the next run starts fresh",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := sessionRegistry(*baseDir).Reset(); err != nil {
				return err
			}
			fmt.Println("session reset")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "backup",
		Short: "Archive the current session and start fresh on the next run",
		RunE: func(_ *cobra.Command, _ []string) error {
			name, ok, err := sessionRegistry(*baseDir).Backup()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("no active session to back up")
				return nil
			}
			fmt.Printf("session archived as %s\n", name)
			return nil
		},
	})

	return cmd
}

func sessionRegistry(baseDir string) *session.Registry {
	paths := config.NewPaths(baseDir)
	return session.NewRegistry(paths.SessionDir(), logx.Nop())
}
