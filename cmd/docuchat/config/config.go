// Package configcmder provides the config command for managing persistent
// docuchat configuration stored in the .docuchat/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent docuchat configuration.

Configuration is stored as config.toml in the .docuchat/ directory and
provides default values for command flags. CLI flags always take precedence
over config file values.

Keys use dotted notation matching the TOML section structure:
  chat.model, chat.upstream, chat.max_tool_rounds,
  gate.similarity_threshold, gate.top_k,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  history.provider, history.target, history.database, history.sqlite_path,
  tools.mcp_endpoint, docstore.target,
  events.provider, events.brokers, events.topic,
  api.listen, client.api_target

Use subcommands to get, set, or list configuration values:
  docuchat config set <key> <value>    Set a configuration value
  docuchat config get <key>            Get a configuration value
  docuchat config list                 List all configuration values

Examples:
  docuchat config set chat.model gpt-4o-mini
  docuchat config set gate.similarity_threshold 0.92
  docuchat config get history.provider
  docuchat config list`

const configShortDesc string = "Manage persistent docuchat configuration"

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
