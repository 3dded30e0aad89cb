// Package generatecmder provides the generate command for creating daily
// study sessions on demand.
package generatecmder

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/drills/cmd/drills/stack"
	"github.com/papercomputeco/drills/pkg/cliui"
	"github.com/papercomputeco/drills/pkg/config"
	"github.com/papercomputeco/drills/pkg/scheduler"
	"github.com/papercomputeco/drills/pkg/study"
)

type generateCommander struct {
	storage     string
	sqlitePath  string
	postgresDSN string
	timezone    string
	notify      string
	all         bool
	force       bool
}

const generateLongDesc string = `Generate today's daily session.

Without --all the session is generated for the selected user. An active
session from today is kept unless --force abandons it and builds a new one.
With --all every learner is processed the way the nightly batch does it.

Examples:
  drills generate --user ada
  drills generate --force
  drills generate --all`

const generateShortDesc string = "Generate today's daily session"

var generateFlags = append([]string{config.FlagNotify}, config.StorageFlags...)

func NewGenerateCmd() *cobra.Command {
	cmder := &generateCommander{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: generateShortDesc,
		Long:  generateLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimezone, &cmder.timezone)
	config.AddStringFlag(cmd, config.Flags, config.FlagNotify, &cmder.notify)
	cmd.Flags().BoolVarP(&cmder.all, "all", "a", false, "Generate for every learner")
	cmd.Flags().BoolVarP(&cmder.force, "force", "f", false, "Replace today's active session")

	return cmd
}

func (c *generateCommander) run(cmd *cobra.Command) error {
	s, err := stack.Load(cmd, generateFlags)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	if c.all {
		return c.runAll(cmd, s, out)
	}

	userID, err := stack.ResolveUser(cmd)
	if err != nil {
		return err
	}

	res, err := s.Orchestrator.GenerateDaily(cmd.Context(), userID, c.force)
	if err != nil {
		return err
	}
	PrintResult(out, userID, res)
	return nil
}

func (c *generateCommander) runAll(cmd *cobra.Command, s *stack.Stack, out io.Writer) error {
	var report scheduler.BatchReport
	err := cliui.Step(out, "Generating daily packs", func() error {
		report = s.Orchestrator.RunBatch(cmd.Context(), c.force)
		return report.Err()
	})

	fmt.Fprintf(out, "\n  %s users: %s generated, %s already generated, %s empty, %s skipped, %s failed\n\n",
		cliui.NameStyle.Render(strconv.Itoa(report.Total)),
		strconv.Itoa(report.Count(scheduler.StatusGenerated)),
		strconv.Itoa(report.Count(scheduler.StatusAlreadyGenerated)),
		strconv.Itoa(report.Count(scheduler.StatusEmpty)),
		strconv.Itoa(report.Count(scheduler.StatusSkipped)),
		strconv.Itoa(report.Count(scheduler.StatusFailed)),
	)
	for _, o := range report.Outcomes {
		if o.Status == scheduler.StatusFailed || o.Status == scheduler.StatusSkipped {
			fmt.Fprintf(out, "  %s %s %s\n", cliui.FailMark, o.UserID, cliui.DimStyle.Render(o.Error))
		}
	}

	var partial *study.PartialBatchFailure
	if errors.As(err, &partial) {
		// per-user failures were listed above
		return nil
	}
	return err
}

// PrintResult writes a one-line summary of a generation result.
func PrintResult(w io.Writer, userID string, res *scheduler.Result) {
	switch res.Status {
	case scheduler.StatusGenerated:
		b := res.Session.Breakdown
		fmt.Fprintf(w, "  %s Generated %s items for %s %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(strconv.Itoa(b.Total())),
			cliui.KeyStyle.Render(userID),
			cliui.DimStyle.Render(fmt.Sprintf("(%d due, %d weak, %d new; session %s)",
				b.DueCount, b.WeakTopicCount, b.NewCount, res.Session.SessionID)),
		)
	case scheduler.StatusAlreadyGenerated:
		fmt.Fprintf(w, "  %s %s already has an active session today %s\n",
			cliui.SuccessMark,
			cliui.KeyStyle.Render(userID),
			cliui.DimStyle.Render(res.Session.SessionID),
		)
	case scheduler.StatusEmpty:
		fmt.Fprintf(w, "  %s Nothing to study for %s today\n",
			cliui.DimStyle.Render("-"),
			cliui.KeyStyle.Render(userID),
		)
	default:
		fmt.Fprintf(w, "  %s %s: %s\n", cliui.FailMark, userID, res.Status)
	}
}
