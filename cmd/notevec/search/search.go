// Package searchcmder provides the search command for semantic search over
// the indexed notes.
package searchcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	apisearch "github.com/papercomputeco/notevec/api/search"
	"github.com/papercomputeco/notevec/cmd/notevec/services"
	"github.com/papercomputeco/notevec/pkg/cliui"
	"github.com/papercomputeco/notevec/pkg/config"
	"github.com/papercomputeco/notevec/pkg/utils"
)

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	idStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

const previewWidth = 80

type searchCommander struct {
	quiet bool
	full  bool
}

const searchLongDesc string = `Search the indexed notes.

The query is embedded with the configured provider and compared against every
stored span. Results are ordered nearest first and show the note, the span
offsets and the span text.

Use --quiet to output only node ids, one per line, for piping into other
commands. Use --full to render each matching span as markdown instead of a
one line preview.

Examples:
  notevec search "how do I rotate the signing keys"
  notevec search "garden plans" --top-k 5
  notevec search "meeting notes" --quiet | xargs -n1 notevec update`

const searchShortDesc string = "Search the indexed notes"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only node ids, one per line")
	cmd.Flags().BoolVar(&cmder.full, "full", false, "Render the full text of each matching span")
	config.AddIntFlag(cmd, config.Flags, config.FlagTopK, new(int))
	config.AddStoreFlags(cmd)

	return cmd
}

func (c *searchCommander) run(cmd *cobra.Command, query string) error {
	keys := append([]string{config.FlagTopK}, config.StoreFlags...)
	svc, err := services.OpenForCommand(cmd, keys...)
	if err != nil {
		return err
	}
	defer svc.Close()

	output, err := svc.Searcher.Search(cmd.Context(), query, svc.Config.Search.TopK)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if c.quiet {
		for _, result := range output.Results {
			fmt.Fprintln(out, result.NodeID)
		}
		return nil
	}

	if output.Count == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	fmt.Fprintf(out, "\n%s %s\n\n",
		cliui.HeaderStyle.Render("Search results for:"),
		idStyle.Render(fmt.Sprintf("%q", output.Query)),
	)

	for i, result := range output.Results {
		c.printResult(out, i+1, result)
	}

	return nil
}

func (c *searchCommander) printResult(out io.Writer, rank int, result apisearch.SearchResult) {
	fmt.Fprintf(out, "  %s  %s  %s\n",
		rankStyle.Render(fmt.Sprintf("#%d", rank)),
		scoreStyle.Render(fmt.Sprintf("distance: %.4f", result.Distance)),
		titleStyle.Render(result.Title),
	)
	fmt.Fprintf(out, "  %s %s\n",
		idStyle.Render(result.NodeID),
		cliui.DimStyle.Render(fmt.Sprintf("%s [%d:%d]", result.Path, result.Start, result.End)),
	)

	if c.full {
		rendered, err := cliui.RenderMarkdown(result.Snippet)
		if err != nil {
			rendered = result.Snippet
		}
		fmt.Fprintln(out, rendered)
		return
	}

	preview := strings.Join(strings.Fields(utils.FirstLine(result.Snippet)), " ")
	fmt.Fprintf(out, "  %s\n\n", previewStyle.Render(utils.Truncate(preview, previewWidth)))
}
