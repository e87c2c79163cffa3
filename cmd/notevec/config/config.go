// Package configcmder provides the config command for managing persistent
// notevec configuration stored in the .notevec/ directory.
package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/notevec/pkg/config"
)

const configLongDesc string = `Manage persistent notevec configuration.

Configuration is stored as config.toml in the .notevec/ directory and provides
default values for command flags. CLI flags and NOTEVEC_* environment
variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.db_location, storage.extension_dir, notes.dir,
  vector_store.provider, vector_store.target, vector_store.collection,
  embedding.provider, embedding.target, embedding.model,
  embedding.dimensions, embedding.max_in_flight, embedding.api_key,
  segmenter.strategy, search.top_k, api.listen,
  eventstream.provider, eventstream.brokers, eventstream.topic

Use subcommands to get, set, or list configuration values:
  notevec config set <key> <value>    Set a configuration value
  notevec config get <key>            Get a configuration value
  notevec config list                 List all configuration values

Examples:
  notevec config set notes.dir ~/org
  notevec config set segmenter.strategy paragraph
  notevec config get embedding.model
  notevec config list`

const configShortDesc string = "Manage persistent notevec configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// displayValue masks secrets.
func displayValue(key, value string) string {
	if value != "" && config.IsSecretKey(key) {
		return "********"
	}
	return value
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
