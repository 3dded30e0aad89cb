package stack

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/drills/pkg/dotdir"
)

// ErrNoUser is returned when neither --user nor the saved profile names a
// learner.
var ErrNoUser = errors.New("no user selected; pass --user or run \"drills use <user>\"")

// ResolveUser returns the learner a command acts for: the --user flag when
// set, otherwise the user saved in the drills profile.
func ResolveUser(cmd *cobra.Command) (string, error) {
	if user, _ := cmd.Flags().GetString("user"); strings.TrimSpace(user) != "" {
		return strings.TrimSpace(user), nil
	}

	configDir, _ := cmd.Flags().GetString("config-dir")
	profile, err := dotdir.NewManager().LoadProfile(configDir)
	if err != nil {
		return "", err
	}
	if profile == nil || profile.UserID == "" {
		return "", ErrNoUser
	}
	return profile.UserID, nil
}
