// Package answercmder provides the answer command for recording a graded
// response from the command line.
package answercmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/drills/cmd/drills/stack"
	"github.com/papercomputeco/drills/pkg/cliui"
	"github.com/papercomputeco/drills/pkg/config"
	"github.com/papercomputeco/drills/pkg/study"
)

type answerCommander struct {
	storage     string
	sqlitePath  string
	postgresDSN string
	timezone    string
	correct     bool
	rating      int
	sessionID   string
}

const answerLongDesc string = `Record an answer to a review item.

The item's schedule is updated right away: a correct answer stretches
its interval, a wrong one brings it back tomorrow. The rating is how easy
recall felt, from 1 (hard) to 4 (easy); it defaults to 3.

Examples:
  drills answer flashcard card-42 --correct
  drills answer mcq q-7 --rating 1
  drills answer flashcard card-42 --correct --rating 4 --session <session-id>`

const answerShortDesc string = "Record an answer to a review item"

func NewAnswerCmd() *cobra.Command {
	cmder := &answerCommander{}

	cmd := &cobra.Command{
		Use:   "answer <flashcard|mcq> <item-id>",
		Short: answerShortDesc,
		Long:  answerLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0], args[1])
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return []string{string(study.ItemTypeFlashcard), string(study.ItemTypeMCQ)}, cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimezone, &cmder.timezone)
	cmd.Flags().BoolVarP(&cmder.correct, "correct", "c", false, "The answer was correct")
	cmd.Flags().IntVarP(&cmder.rating, "rating", "r", 0, "Ease rating from 1 (hard) to 4 (easy)")
	cmd.Flags().StringVar(&cmder.sessionID, "session", "", "Study session the answer belongs to")

	return cmd
}

func (c *answerCommander) run(cmd *cobra.Command, itemType, itemID string) error {
	t, err := study.ParseItemType(itemType)
	if err != nil {
		return err
	}

	userID, err := stack.ResolveUser(cmd)
	if err != nil {
		return err
	}

	s, err := stack.Load(cmd, config.StorageFlags)
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := s.Orchestrator.RecordResponse(cmd.Context(), &study.GradedResponse{
		UserID:     userID,
		ItemID:     itemID,
		ItemType:   t,
		SessionID:  c.sessionID,
		IsCorrect:  c.correct,
		EaseRating: study.EaseRating(c.rating),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "  %s %s next due %s %s\n",
		cliui.Mark(nil),
		cliui.KeyStyle.Render(item.Ref().String()),
		cliui.ValueStyle.Render(item.DueAt.In(s.Orchestrator.Location()).Format("Mon Jan 2")),
		cliui.DimStyle.Render(fmt.Sprintf("(interval %dd, ease %.2f)", item.IntervalDays, item.EaseFactor)),
	)
	return nil
}
