package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cynic/internal/config"
)

// Version is stamped by the release build; dev builds report "dev".
var Version = "dev"

// Color palette shared by all subcommands.
var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// rootFlags carries the persistent flags every subcommand reads.
type rootFlags struct {
	configFile string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "cynic",
		Short: "Skeptical judging core with weighted consensus",
		Long: fmt.Sprintf(`%s

cynic evaluates units of work (cells) through a pool of analyzers,
aggregates their votes into a weighted consensus verdict, and learns
action values from the outcomes.

%s
  cynic judge --domain CODE --content "review this diff"
  cynic serve                       # HTTP judging service
  cynic policy top 5                # most-visited policy states
  cynic config show                 # effective configuration`,
			bold("CYNIC "+Version),
			bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(newJudgeCommand(flags))
	rootCmd.AddCommand(newServeCommand(flags))
	rootCmd.AddCommand(newPolicyCommand(flags))
	rootCmd.AddCommand(newConfigCommand(flags))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", bold("cynic"), Version)
		},
	}
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	return config.Load(flags.configFile)
}
