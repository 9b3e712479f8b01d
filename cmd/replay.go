package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/autotrack/internal/delivery"
	"github.com/conneroisu/autotrack/internal/scenario"
)

var replayCmd = &cobra.Command{
	Use:   "replay <scenario.yml>...",
	Short: "Replay scripted sessions and report the events they produce",
	Long: `Replay YAML scenarios against their pages. A scenario names a page (a file
next to it or inline HTML) and a list of steps: click, blur, input, set,
remove, append, replace and navigate.

Example scenario:
  name: checkout
  url: https://shop.test/
  page: page.html
  steps:
    - input: {selector: "#email", value: "a@b.c"}
    - click: "#buy"

Examples:
  autotrack replay checkout.yml               # Summary table
  autotrack replay checkout.yml -o yaml       # Full results as YAML
  autotrack replay checkout.yml --events json # Only events, one JSON object per line`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

var (
	replayFlags  *StandardFlags
	replayEvents string
	replayStrict bool
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayFlags = AddStandardFlags(replayCmd, "output")
	replayCmd.Flags().StringVar(&replayEvents, "events", "", "Print only events as they are delivered (json|yaml)")
	replayCmd.Flags().BoolVar(&replayStrict, "strict", false, "Exit with an error when tagging errors are reported")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if err := replayFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	var sinks []delivery.Sink
	if replayEvents != "" {
		sink, err := delivery.NewWriterSink(cmd.OutOrStdout(), replayEvents)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	runner, err := scenario.NewRunner(cfg, logger, sinks...)
	if err != nil {
		return err
	}

	results := make([]*scenario.Result, 0, len(args))
	for _, path := range args {
		s, err := scenario.Load(path)
		if err != nil {
			return err
		}
		res, err := runner.Run(cmd.Context(), s)
		if err != nil {
			return fmt.Errorf("failed to replay %s: %w", path, err)
		}
		logger.Info(cmd.Context(), "scenario replayed", "scenario", s.Name, "events", len(res.Events), "errors", len(res.Errors))
		results = append(results, res)
	}

	if replayEvents == "" && !replayFlags.Quiet {
		if err := writeResults(cmd.OutOrStdout(), replayFlags.OutputFormat, replayFlags.Verbose, results); err != nil {
			return err
		}
	}
	return strictCheck(replayStrict, results)
}
