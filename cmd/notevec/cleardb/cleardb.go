// Package cleardbcmder provides the clear-db command, which drops every
// stored embedding.
package cleardbcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/notevec/cmd/notevec/services"
	"github.com/papercomputeco/notevec/pkg/cliui"
	"github.com/papercomputeco/notevec/pkg/config"
)

const clearDBLongDesc string = `Drop every stored embedding and re-create the empty store.

This is the only way to change embedding.dimensions for an existing store.
On an interactive terminal the command asks for confirmation; otherwise
--force is required.

Examples:
  notevec clear-db
  notevec clear-db --force --embedding-dimensions 1024`

const clearDBShortDesc string = "Drop every stored embedding"

var errNotConfirmed = errors.New("clear-db not confirmed: run on a terminal or pass --force")

type clearDBCommander struct {
	force bool

	// isTerminal and in are replaced in tests.
	isTerminal func() bool
	in         io.Reader
}

func NewClearDBCmd() *cobra.Command {
	cmder := &clearDBCommander{
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		in:         os.Stdin,
	}

	cmd := &cobra.Command{
		Use:   "clear-db",
		Short: clearDBShortDesc,
		Long:  clearDBLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().BoolVarP(&cmder.force, "force", "f", false, "Skip the confirmation prompt")
	config.AddStoreFlags(cmd)

	return cmd
}

func (c *clearDBCommander) run(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	confirmed, err := c.confirm(out)
	if err != nil {
		return err
	}
	if !confirmed {
		return errNotConfirmed
	}

	svc, err := services.OpenForCommand(cmd, config.StoreFlags...)
	if err != nil {
		return err
	}
	defer svc.Close()

	return cliui.Step(out, "Clearing embedding database", func() error {
		return svc.Indexer.ClearDB(cmd.Context(), true)
	})
}

func (c *clearDBCommander) confirm(out io.Writer) (bool, error) {
	if c.force {
		return true, nil
	}
	if !c.isTerminal() {
		return false, nil
	}

	fmt.Fprintf(out, "  %s [y/N] ", cliui.HeaderStyle.Render("Delete every stored embedding?"))

	answer, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
