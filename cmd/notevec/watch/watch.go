// Package watchcmder provides the watch command, which keeps the embeddings
// in step with the notes directory while it runs.
package watchcmder

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/notevec/cmd/notevec/services"
	"github.com/papercomputeco/notevec/pkg/cliui"
	"github.com/papercomputeco/notevec/pkg/config"
	"github.com/papercomputeco/notevec/pkg/watch"
)

const watchLongDesc string = `Watch the notes directory and update embeddings as notes change.

Saved notes are re-indexed after a short quiet period; removed notes have
their embeddings cleared. Use --update-all to bring the whole directory up to
date before watching.

Examples:
  notevec watch
  notevec watch --notes-dir ~/org --update-all`

const watchShortDesc string = "Update embeddings as notes change"

type watchCommander struct {
	updateAll bool
	debounce  time.Duration
}

func NewWatchCmd() *cobra.Command {
	cmder := &watchCommander{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: watchShortDesc,
		Long:  watchLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().BoolVar(&cmder.updateAll, "update-all", false, "Update every note before watching")
	cmd.Flags().DurationVar(&cmder.debounce, "debounce", watch.DefaultDebounce, "Quiet period before a changed note is updated")
	services.AddLogFlags(cmd)
	config.AddStoreFlags(cmd)

	return cmd
}

func (c *watchCommander) run(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := services.OpenForCommand(cmd, config.StoreFlags...)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := cmd.OutOrStdout()

	if c.updateAll {
		if err := c.runUpdateAll(ctx, cmd, svc); err != nil {
			// Failed notes are retried on their next save.
			svc.Logger.Warn("initial update finished with failures", "error", err)
		}
	}

	watcher, err := watch.New(watch.Config{
		Source:   svc.Source,
		Updater:  svc.Indexer,
		Debounce: c.debounce,
		Logger:   svc.Logger,
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Close()

	fmt.Fprintf(out, "  %s %s %s\n",
		cliui.SuccessMark,
		cliui.HeaderStyle.Render("Watching"),
		cliui.DimStyle.Render(svc.Source.Dir()),
	)

	<-ctx.Done()
	svc.Logger.Info("stopping watcher")
	return nil
}

func (c *watchCommander) runUpdateAll(ctx context.Context, cmd *cobra.Command, svc *services.Services) error {
	return cliui.Step(cmd.OutOrStdout(), "Updating every note", func() error {
		_, err := svc.Indexer.UpdateAll(ctx, nil)
		return err
	})
}
