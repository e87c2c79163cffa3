// Package updateallcmder provides the update-all command, which re-indexes
// every note of the notes directory.
package updateallcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/notevec/cmd/notevec/services"
	"github.com/papercomputeco/notevec/pkg/cliui"
	"github.com/papercomputeco/notevec/pkg/config"
	"github.com/papercomputeco/notevec/pkg/indexer"
)

const updateAllLongDesc string = `Update the embeddings of every note.

Notes are processed one after another; the spans of each note are embedded
concurrently, bounded by embedding.max_in_flight. A failed note does not stop
the run. The command exits with an error when any note failed.

Examples:
  notevec update-all
  notevec update-all --notes-dir ~/org --segmenter paragraph`

const updateAllShortDesc string = "Update the embeddings of every note"

func NewUpdateAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-all",
		Short: updateAllShortDesc,
		Long:  updateAllLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}

	config.AddStoreFlags(cmd)

	return cmd
}

func run(cmd *cobra.Command) error {
	svc, err := services.OpenForCommand(cmd, config.StoreFlags...)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "\n  %s %s\n\n",
		cliui.HeaderStyle.Render("Updating notes in"),
		cliui.DimStyle.Render(svc.Source.Dir()),
	)

	summary, err := svc.Indexer.UpdateAll(ctx, func(done, total int, result *indexer.NodeResult) {
		detail := fmt.Sprintf("%d of %d spans stored", result.Inserted, result.Spans)
		cliui.Progress(out, done, total, result.NodeID, detail, result.Duration, result.Err)
	})
	if summary == nil {
		return err
	}

	stats, statsErr := svc.Indexer.Stats(ctx)

	fmt.Fprintf(out, "\n  %s %d notes: %d committed, %d failed, %d records written\n",
		cliui.Mark(err), summary.Nodes, summary.Committed, summary.Failed, summary.Records)
	if statsErr == nil {
		fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render(fmt.Sprintf(
			"store holds %d records for %d notes at %d dimensions",
			stats.Records, stats.Nodes, stats.Dimensions)))
	} else {
		svc.Logger.Warn("reading store stats failed", "error", statsErr)
	}

	return err
}
