// Package updatecmder provides the update command, which re-indexes a single
// note.
package updatecmder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/notevec/cmd/notevec/services"
	"github.com/papercomputeco/notevec/pkg/cliui"
	"github.com/papercomputeco/notevec/pkg/config"
	"github.com/papercomputeco/notevec/pkg/indexer"
)

const updateLongDesc string = `Update the embeddings of one note.

The note is given by id or by path. Its existing embeddings are cleared, its
content is split by the configured segmenter and every span is embedded and
stored. Spans succeed or fail independently: when some fail, the ones that
succeeded stay stored and the command exits with an error.

Examples:
  notevec update journal/2024-05-01.org
  notevec update 8f1c5a0e-3b5d-4c1a-9b7f-2a9e0c6d4f11
  notevec update notes/ideas.md --segmenter paragraph`

const updateShortDesc string = "Update the embeddings of one note"

type updateCommander struct{}

func NewUpdateCmd() *cobra.Command {
	cmder := &updateCommander{}

	cmd := &cobra.Command{
		Use:   "update <node>",
		Short: updateShortDesc,
		Long:  updateLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	config.AddStoreFlags(cmd)

	return cmd
}

func (c *updateCommander) run(cmd *cobra.Command, ref string) error {
	svc, err := services.OpenForCommand(cmd, config.StoreFlags...)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var result *indexer.NodeResult
	err = cliui.Step(out, fmt.Sprintf("Updating %s", ref), func() error {
		if path, ok := c.notePath(svc, ref); ok {
			node, loadErr := svc.Source.Load(path)
			if loadErr != nil {
				return loadErr
			}
			var updateErr error
			result, updateErr = svc.Indexer.UpdateNode(ctx, node)
			return updateErr
		}

		var updateErr error
		result, updateErr = svc.Indexer.UpdateNodeByID(ctx, ref)
		return updateErr
	})
	if result == nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s %s %s\n\n",
		cliui.Mark(result.Err),
		cliui.KeyStyle.Render(result.NodeID),
		cliui.DimStyle.Render(fmt.Sprintf("%d of %d spans stored", result.Inserted, result.Spans)),
	)

	return err
}

// notePath reports whether ref names a note file of the source, either
// relative to the working directory or to the notes directory.
func (c *updateCommander) notePath(svc *services.Services, ref string) (string, bool) {
	candidates := []string{ref, filepath.Join(svc.Source.Dir(), ref)}
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			continue
		}
		if svc.Source.IsNote(abs) {
			return abs, true
		}
	}
	return "", false
}
