package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/autotrack/internal/scenario"
)

var scanCmd = &cobra.Command{
	Use:   "scan <page.html>...",
	Short: "List the tracked elements of HTML pages",
	Long: `Start a tracking controller on each page and report the elements it tracks,
their location stacks and any tagging errors, without simulating any
interaction.

Examples:
  autotrack scan page.html            # Table of tracked elements
  autotrack scan page.html -v         # Also list emitted events
  autotrack scan *.html -o json       # Output as JSON
  autotrack scan page.html --strict   # Fail when any tagging error is reported`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

var (
	scanFlags  *StandardFlags
	scanStrict bool
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanFlags = AddStandardFlags(scanCmd, "output")
	scanCmd.Flags().BoolVar(&scanStrict, "strict", false, "Exit with an error when tagging errors are reported")
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := scanFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	runner, err := scenario.NewRunner(cfg, logger)
	if err != nil {
		return err
	}

	results := make([]*scenario.Result, 0, len(args))
	for _, path := range args {
		markup, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read page %s: %w", path, err)
		}
		res, err := runner.Scan(cmd.Context(), path, string(markup))
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", path, err)
		}
		results = append(results, res)
	}

	if !scanFlags.Quiet {
		if err := writeResults(cmd.OutOrStdout(), scanFlags.OutputFormat, scanFlags.Verbose, results); err != nil {
			return err
		}
	}
	return strictCheck(scanStrict, results)
}

func strictCheck(strict bool, results []*scenario.Result) error {
	if !strict {
		return nil
	}
	failures := 0
	for _, res := range results {
		failures += res.Failures
	}
	if failures > 0 {
		return fmt.Errorf("%d tagging errors reported", failures)
	}
	return nil
}
