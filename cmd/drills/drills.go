// Package drillscmder is the drills root command.
package drillscmder

import (
	"github.com/spf13/cobra"

	answercmder "github.com/papercomputeco/drills/cmd/drills/answer"
	configcmder "github.com/papercomputeco/drills/cmd/drills/config"
	generatecmder "github.com/papercomputeco/drills/cmd/drills/generate"
	packcmder "github.com/papercomputeco/drills/cmd/drills/pack"
	seedcmder "github.com/papercomputeco/drills/cmd/drills/seed"
	servecmder "github.com/papercomputeco/drills/cmd/drills/serve"
	studycmder "github.com/papercomputeco/drills/cmd/drills/study"
	topicscmder "github.com/papercomputeco/drills/cmd/drills/topics"
	usecmder "github.com/papercomputeco/drills/cmd/drills/use"
	versioncmder "github.com/papercomputeco/drills/cmd/version"
)

const drillsLongDesc string = `Drills schedules spaced-repetition study.

Every learner gets a daily pack of due reviews, weak-topic reinforcement
and unseen items. Answers feed back into each item's schedule.

Get started:
  drills seed --user ada     Load demo study sets for ada
  drills use ada             Act as ada by default
  drills pack                Preview today's pack
  drills study               Work through today's pack
  drills serve               Run the API, MCP tools and nightly batch`

const drillsShortDesc string = "Drills - adaptive spaced repetition"

func NewDrillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "drills",
		Short:         drillsShortDesc,
		Long:          drillsLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .drills/ directory")
	cmd.PersistentFlags().StringP("user", "u", "", "Learner to act for (default: the profile user)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(generatecmder.NewGenerateCmd())
	cmd.AddCommand(answercmder.NewAnswerCmd())
	cmd.AddCommand(topicscmder.NewTopicsCmd())
	cmd.AddCommand(packcmder.NewPackCmd())
	cmd.AddCommand(studycmder.NewStudyCmd())
	cmd.AddCommand(seedcmder.NewSeedCmd())
	cmd.AddCommand(usecmder.NewUseCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
