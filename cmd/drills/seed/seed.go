// Package seedcmder provides the seed command, which loads demo study sets
// for a learner.
package seedcmder

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/drills/cmd/drills/stack"
	"github.com/papercomputeco/drills/pkg/cliui"
	"github.com/papercomputeco/drills/pkg/config"
	"github.com/papercomputeco/drills/pkg/demo"
)

const seedLongDesc string = `Seed demo study sets.

Creates three study sets for the user and replays a few days of answers,
so there are due reviews, weak topics and unseen items to work with.

Examples:
  drills seed --user ada
  drills seed --sqlite ./drills.sqlite
  drills seed --overwrite`

const seedShortDesc string = "Seed demo study sets"

type seedCommander struct {
	storage     string
	sqlitePath  string
	postgresDSN string
	timezone    string
	overwrite   bool
}

func NewSeedCmd() *cobra.Command {
	cmder := &seedCommander{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: seedShortDesc,
		Long:  seedLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimezone, &cmder.timezone)
	cmd.Flags().BoolVarP(&cmder.overwrite, "overwrite", "f", false, "Replace existing demo data")

	return cmd
}

func (c *seedCommander) run(cmd *cobra.Command) error {
	userID, err := stack.ResolveUser(cmd)
	if err != nil {
		return err
	}

	s, err := stack.Load(cmd, config.StorageFlags)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	var summary demo.Summary
	err = cliui.Step(out, "Seeding demo data", func() error {
		var seedErr error
		summary, seedErr = demo.Seed(cmd.Context(), s.Orchestrator, s.Store, userID, time.Now(), c.overwrite)
		return seedErr
	})
	if errors.Is(err, demo.ErrAlreadySeeded) {
		return fmt.Errorf("%w for %s; pass --overwrite to replace it", err, userID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Seeded %s study sets for %s %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(strconv.Itoa(summary.StudySets)),
		cliui.KeyStyle.Render(userID),
		cliui.DimStyle.Render(fmt.Sprintf("(%d items, %d answers)", summary.Items, summary.Responses)),
	)
	return nil
}
