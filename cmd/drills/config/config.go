// Package configcmder provides the config command for managing persistent
// drills configuration stored in the .drills/ directory.
package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/drills/pkg/config"
)

const configLongDesc string = `Manage persistent drills configuration.

Configuration is stored as config.toml in the .drills/ directory and
provides default values for command flags. CLI flags always take
precedence, followed by DRILLS_* environment variables.

Keys use dotted notation matching the TOML section structure, e.g.:
  storage.driver, storage.sqlite_path, api.listen,
  scheduler.timezone, scheduler.run_at, pack.max_items,
  topics.weak_threshold, notify.provider, locks.provider

Use subcommands to get, set, or list configuration values:
  drills config set <key> <value>    Set a configuration value
  drills config get <key>            Get a configuration value
  drills config list                 List all configuration values

Examples:
  drills config set scheduler.timezone Europe/Berlin
  drills config set pack.due_flashcards 20
  drills config get scheduler.run_at
  drills config list`

const configShortDesc string = "Manage persistent drills configuration"

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

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}
