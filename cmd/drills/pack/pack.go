// Package packcmder provides the pack command, which previews the pack a
// user would get without creating a session.
package packcmder

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/drills/cmd/drills/stack"
	"github.com/papercomputeco/drills/pkg/cliui"
	"github.com/papercomputeco/drills/pkg/config"
)

type packCommander struct {
	storage     string
	sqlitePath  string
	postgresDSN string
	timezone    string
	json        bool
	raw         bool
}

const packLongDesc string = `Preview today's pack.

Composes the pack the user would get right now: due reviews first, then
items from weak topics, then unseen items. Nothing is stored, so running
it twice may pick different weak and new items.

Examples:
  drills pack
  drills pack --user ada --json`

const packShortDesc string = "Preview today's pack"

func NewPackCmd() *cobra.Command {
	cmder := &packCommander{}

	cmd := &cobra.Command{
		Use:   "pack",
		Short: packShortDesc,
		Long:  packLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimezone, &cmder.timezone)
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print the pack as JSON")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print markdown without terminal styling")

	return cmd
}

func (c *packCommander) run(cmd *cobra.Command) error {
	userID, err := stack.ResolveUser(cmd)
	if err != nil {
		return err
	}

	s, err := stack.Load(cmd, config.StorageFlags)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.Composer.Compose(cmd.Context(), userID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case c.json:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case c.raw:
		fmt.Fprint(out, cliui.PackMarkdown(p))
	default:
		fmt.Fprint(out, cliui.RenderPack(p))
	}
	return nil
}
