// Package usecmder provides the use command, which selects the learner the
// CLI acts for.
package usecmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/drills/pkg/cliui"
	"github.com/papercomputeco/drills/pkg/dotdir"
)

const useLongDesc string = `Select the learner the CLI acts for.

The user is saved in the .drills/ profile and used by every command that
is not given --user. Switching users clears the study cursor.

Examples:
  drills use ada
  drills use        Show the current user`

const useShortDesc string = "Select the default learner"

func NewUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use [user]",
		Short: useShortDesc,
		Long:  useLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			if len(args) == 0 {
				return runShow(cmd, configDir)
			}
			return runUse(cmd, strings.TrimSpace(args[0]), configDir)
		},
	}

	return cmd
}

func runShow(cmd *cobra.Command, configDir string) error {
	profile, err := dotdir.NewManager().LoadProfile(configDir)
	if err != nil {
		return err
	}
	if profile == nil || profile.UserID == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", cliui.DimStyle.Render("No user selected."))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", cliui.KeyStyle.Render(profile.UserID))
	return nil
}

func runUse(cmd *cobra.Command, userID, configDir string) error {
	if userID == "" {
		return fmt.Errorf("user must not be empty")
	}

	ddm := dotdir.NewManager()
	profile, err := ddm.LoadProfile(configDir)
	if err != nil {
		return err
	}
	if profile == nil || profile.UserID != userID {
		profile = &dotdir.Profile{UserID: userID}
	}

	if err := ddm.SaveProfile(profile, configDir); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "  %s Now acting as %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(userID))
	return nil
}
