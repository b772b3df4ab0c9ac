package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/fitsync/internal/scheduler"
	"github.com/dmitrijs2005/fitsync/internal/watcher"
	"github.com/spf13/cobra"
)

func watchCmd(st *rootState) *cobra.Command {
	var initial bool

	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: "sync",
		Short:   "Push local edits as they happen and sync on a schedule",
		Long: `Watch the local collection files and push each change shortly after it
is written, and run a full sync on the configured schedule. Runs until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return st.app.watch(ctx, initial)
		},
	}
	cmd.Flags().BoolVar(&initial, "initial-sync", true, "run a full sync before watching")
	return cmd
}

func (a *App) watch(ctx context.Context, initial bool) error {
	coord, err := a.coordinator(ctx)
	if err != nil {
		return err
	}

	sched := scheduler.New(a.cfg.SyncSchedule, coord, a.log)
	if initial {
		res := sched.RunOnce(ctx)
		printSyncResult(a.out, res)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	fmt.Fprintf(a.out, "Watching %s (next full sync %s). Press Ctrl+C to stop.\n",
		a.files.Dir(), sched.Next().Local().Format("15:04:05"))

	w := watcher.New(a.fs, a.files.Dir(), a.cfg.WatchDebounce.Std(), coord, a.files, a.log)
	return w.Run(ctx)
}
