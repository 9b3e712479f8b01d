package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/autotrack/internal/events"
	"github.com/conneroisu/autotrack/internal/scenario"
)

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(v)
}

// writeResults prints run results in the requested format. The table lists
// tracked elements; verbose tables also list every event.
func writeResults(w io.Writer, format string, verbose bool, results []*scenario.Result) error {
	switch strings.ToLower(format) {
	case "json":
		return writeJSON(w, results)
	case "yaml":
		return writeYAML(w, results)
	case "table", "":
		return writeResultsTable(w, verbose, results)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeResultsTable(w io.Writer, verbose bool, results []*scenario.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "# %s\n", res.Name)
		fmt.Fprintln(tw, "ELEMENT\tTAG\tLOCATION")
		fmt.Fprintln(tw, "-------\t---\t--------")
		for _, el := range res.Tracked {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", el.ElementID, el.Tag, el.Stack.String())
		}

		if verbose {
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "EVENT\tLOCATION\tATTRIBUTES")
			fmt.Fprintln(tw, "-----\t--------\t----------")
			for _, ev := range res.Events {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", ev.Type, ev.LocationStack.String(), attributes(ev))
			}
		}

		fmt.Fprintf(tw, "\n%d tracked, %d events, %d errors\n", len(res.Tracked), len(res.Events), len(res.Errors))
		for _, msg := range res.Errors {
			fmt.Fprintf(tw, "  error: %s\n", msg)
		}
	}
	return tw.Flush()
}

func attributes(ev events.Event) string {
	if len(ev.Attributes) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ev.Attributes))
	for k, v := range ev.Attributes {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
