// Package topicscmder provides the topics command for inspecting and
// recomputing per-topic accuracy.
package topicscmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/drills/cmd/drills/stack"
	"github.com/papercomputeco/drills/pkg/cliui"
	"github.com/papercomputeco/drills/pkg/config"
	"github.com/papercomputeco/drills/pkg/study"
)

const topicsLongDesc string = `Inspect topic performance.

Accuracy is measured over the trailing window (topics.window_days) and a
topic is weak when it falls below topics.weak_threshold.

Examples:
  drills topics list
  drills topics weak --limit 3
  drills topics recalc
  drills topics recalc graphs sql`

const topicsShortDesc string = "Inspect topic performance"

type topicsCommander struct {
	storage     string
	sqlitePath  string
	postgresDSN string
	timezone    string
	limit       int
	minAttempts int
}

func NewTopicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: topicsShortDesc,
		Long:  topicsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newWeakCmd())
	cmd.AddCommand(newRecalcCmd())

	return cmd
}

func (c *topicsCommander) addStorageFlags(cmd *cobra.Command) {
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &c.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &c.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &c.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimezone, &c.timezone)
}

func newListCmd() *cobra.Command {
	cmder := &topicsCommander{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every topic the user has answered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStack(cmd, func(s *stack.Stack, userID string) error {
				perfs, err := s.Store.ListTopicPerformance(cmd.Context(), userID)
				if err != nil {
					return err
				}
				printPerformance(cmd.OutOrStdout(), userID, perfs, s.Tracker.Threshold)
				return nil
			})
		},
	}
	cmder.addStorageFlags(cmd)

	return cmd
}

func newWeakCmd() *cobra.Command {
	cmder := &topicsCommander{}

	cmd := &cobra.Command{
		Use:   "weak",
		Short: "Rank the user's weakest topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStack(cmd, func(s *stack.Stack, userID string) error {
				policy := s.Config.Pack.Policy()
				limit, minAttempts := policy.WeakTopicLimit, policy.WeakMinAttempts
				if cmd.Flags().Changed("limit") {
					limit = cmder.limit
				}
				if cmd.Flags().Changed("min-attempts") {
					minAttempts = cmder.minAttempts
				}

				weak, err := s.Tracker.WeakTopics(cmd.Context(), userID, limit, minAttempts)
				if err != nil {
					return err
				}
				printPerformance(cmd.OutOrStdout(), userID, weak, s.Tracker.Threshold)
				return nil
			})
		},
	}
	cmder.addStorageFlags(cmd)
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 0, "Maximum topics to show (default: pack.weak_topic_limit)")
	cmd.Flags().IntVar(&cmder.minAttempts, "min-attempts", 0, "Minimum attempts for a topic to count (default: pack.weak_min_attempts)")

	return cmd
}

func newRecalcCmd() *cobra.Command {
	cmder := &topicsCommander{}

	cmd := &cobra.Command{
		Use:   "recalc [topic...]",
		Short: "Recompute trailing accuracy from the response log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd, func(s *stack.Stack, userID string) error {
				var subset []string
				if len(args) > 0 {
					subset = args
				}
				perfs, err := s.Tracker.Recalculate(cmd.Context(), userID, subset)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s Recalculated %d topics for %s\n\n",
					cliui.SuccessMark, len(perfs), cliui.KeyStyle.Render(userID))
				printPerformance(cmd.OutOrStdout(), userID, perfs, s.Tracker.Threshold)
				return nil
			})
		},
	}
	cmder.addStorageFlags(cmd)

	return cmd
}

func withStack(cmd *cobra.Command, fn func(s *stack.Stack, userID string) error) error {
	userID, err := stack.ResolveUser(cmd)
	if err != nil {
		return err
	}

	s, err := stack.Load(cmd, config.StorageFlags)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(s, userID)
}

func printPerformance(w io.Writer, userID string, perfs []*study.TopicPerformance, threshold float64) {
	if len(perfs) == 0 {
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("No topics for "+userID))
		return
	}

	width := 0
	for _, p := range perfs {
		width = max(width, len(p.Topic))
	}

	for _, p := range perfs {
		accuracy := fmt.Sprintf("%5.1f%%", p.Accuracy7Day)
		if p.Accuracy7Day < threshold {
			accuracy = cliui.FailMark + " " + accuracy
		} else {
			accuracy = cliui.SuccessMark + " " + accuracy
		}
		fmt.Fprintf(w, "  %s  %s  %s\n",
			cliui.KeyStyle.Render(fmt.Sprintf("%-*s", width, p.Topic)),
			accuracy,
			cliui.DimStyle.Render(fmt.Sprintf("%d/%d lifetime", p.CorrectAttempts, p.TotalAttempts)),
		)
	}
}
