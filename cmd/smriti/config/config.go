// Package configcmder provides the config command for managing persistent
// smriti configuration stored in the .smriti/ directory.
package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/localmind/smriti/pkg/cliui"
	"github.com/localmind/smriti/pkg/config"
)

const configLongDesc string = `Manage persistent smriti configuration.

Configuration is stored as config.toml in the .smriti/ directory and provides
default values for command flags. CLI flags and SMRITI_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.base_url, client.model, client.username,
  stream.max_attempts, stream.base_delay, stream.reset_on_retry,
  stream.on_conflict, stream.complete_event, stream.refresh_on_complete,
  storage.sqlite_path,
  eventstream.provider, eventstream.brokers, eventstream.topic

Use subcommands to get, set, or list configuration values:
  smriti config set <key> <value>    Set a configuration value
  smriti config get <key>            Get a configuration value
  smriti config list                 List all configuration values

Examples:
  smriti config set client.base_url http://localhost:8080
  smriti config set stream.max_attempts 3
  smriti config get client.model
  smriti config list`

const configShortDesc string = "Manage persistent smriti configuration"

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

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(out io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(out, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
