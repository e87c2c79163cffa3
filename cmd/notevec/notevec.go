// Package notevecmder
package notevecmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/notevec/cmd/notevec/auth"
	cleardbcmder "github.com/papercomputeco/notevec/cmd/notevec/cleardb"
	configcmder "github.com/papercomputeco/notevec/cmd/notevec/config"
	initcmder "github.com/papercomputeco/notevec/cmd/notevec/init"
	searchcmder "github.com/papercomputeco/notevec/cmd/notevec/search"
	servecmder "github.com/papercomputeco/notevec/cmd/notevec/serve"
	updatecmder "github.com/papercomputeco/notevec/cmd/notevec/update"
	updateallcmder "github.com/papercomputeco/notevec/cmd/notevec/updateall"
	watchcmder "github.com/papercomputeco/notevec/cmd/notevec/watch"
	versioncmder "github.com/papercomputeco/notevec/cmd/version"
)

const notevecLongDesc string = `notevec keeps vector embeddings of your notes and searches them.

Index and search:
  notevec update <node>     Update the embeddings of one note
  notevec update-all        Update the embeddings of every note
  notevec search <query>    Search the indexed notes
  notevec clear-db          Drop every stored embedding

Run services using:
  notevec watch             Update embeddings as notes change
  notevec serve             Run the API and MCP server

Configure using:
  notevec init              Create a .notevec/ directory
  notevec config            Read and write config.toml
  notevec auth <provider>   Store an embedding provider API key`

const notevecShortDesc string = "notevec - semantic search for notes"

func NewNotevecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "notevec",
		Short:        notevecShortDesc,
		Long:         notevecLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .notevec/ config directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(updatecmder.NewUpdateCmd())
	cmd.AddCommand(updateallcmder.NewUpdateAllCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(cleardbcmder.NewClearDBCmd())
	cmd.AddCommand(watchcmder.NewWatchCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
