// Package studycmder provides the study command, an interactive terminal
// session over today's daily pack.
package studycmder

import (
	"context"
	"errors"
	"fmt"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/drills/cmd/drills/stack"
	"github.com/papercomputeco/drills/pkg/cliui"
	"github.com/papercomputeco/drills/pkg/config"
	"github.com/papercomputeco/drills/pkg/dotdir"
	"github.com/papercomputeco/drills/pkg/scheduler"
	"github.com/papercomputeco/drills/pkg/storage"
	"github.com/papercomputeco/drills/pkg/study"
)

type studyCommander struct {
	storage     string
	sqlitePath  string
	postgresDSN string
	timezone    string
}

const studyLongDesc string = `Work through today's daily pack.

Generates today's session when there is none yet, then shows one item at
a time. Reveal with space, then grade yourself: x when you missed it,
1 to 4 when you got it (hard to easy). Quitting keeps your place; the
next run picks up where you left off.

Examples:
  drills study
  drills study --user ada`

const studyShortDesc string = "Study today's pack"

func NewStudyCmd() *cobra.Command {
	cmder := &studyCommander{}

	cmd := &cobra.Command{
		Use:   "study",
		Short: studyShortDesc,
		Long:  studyLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimezone, &cmder.timezone)

	return cmd
}

func (c *studyCommander) run(cmd *cobra.Command) error {
	userID, err := stack.ResolveUser(cmd)
	if err != nil {
		return err
	}

	s, err := stack.Load(cmd, config.StorageFlags)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	res, err := s.Orchestrator.GenerateDaily(ctx, userID, false)
	if err != nil {
		return err
	}
	if res.Status == scheduler.StatusEmpty {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", cliui.DimStyle.Render("Nothing to study today."))
		return nil
	}

	session := res.Session
	items, err := loadItems(ctx, s.Store, session.Items)
	if err != nil {
		return err
	}

	configDir, _ := cmd.Flags().GetString("config-dir")
	ddm := dotdir.NewManager()
	profile, err := ddm.LoadProfile(configDir)
	if err != nil {
		return err
	}
	if profile == nil || profile.UserID != userID {
		profile = &dotdir.Profile{UserID: userID}
	}

	start := session.ItemsCompleted
	if profile.SessionID == session.SessionID {
		start = profile.Position
	}
	profile.SessionID = session.SessionID

	var saveErr error
	model := newStudyModel(ctx, s.Orchestrator, session, items, start, func(pos int) {
		profile.Position = pos
		if err := ddm.SaveProfile(profile, configDir); err != nil && saveErr == nil {
			saveErr = err
		}
	})

	final, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if saveErr != nil {
		s.Logger.Warn("failed to save study position", "error", saveErr)
	}

	if m, ok := final.(studyModel); ok && m.finished != nil {
		if err := ddm.ClearCursor(configDir); err != nil {
			s.Logger.Warn("failed to clear study position", "error", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %s Session complete: %d answered, %d correct\n",
			cliui.SuccessMark, m.finished.ItemsCompleted, m.finished.ItemsCorrect)
	}
	return nil
}

// loadItems resolves session refs to items, dropping items deleted since
// the session was generated.
func loadItems(ctx context.Context, store storage.ContentStore, refs []study.ItemRef) ([]*study.ReviewItem, error) {
	items := make([]*study.ReviewItem, 0, len(refs))
	for _, ref := range refs {
		item, err := store.GetItem(ctx, ref)
		if study.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", ref, err)
		}
		items = append(items, item)
	}
	return items, nil
}
