package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/a-h/templ"
	"github.com/spf13/cobra"

	"github.com/conneroisu/autotrack/internal/codec"
	"github.com/conneroisu/autotrack/internal/location"
	"github.com/conneroisu/autotrack/internal/scenario"
	"github.com/conneroisu/autotrack/internal/tagging"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Render a tagged demo page",
	Long: `Render a demo shop page tagged with every kind of location, plus a scenario
that exercises it. Without --out the page is printed to stdout.

Examples:
  autotrack demo                    # Print the page
  autotrack demo --out ./demo       # Write page.html and checkout.yml
  autotrack demo --scan             # Print what a controller tracks on it`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

var (
	demoFlags *StandardFlags
	demoOut   string
	demoScan  bool
)

const demoScenario = `name: checkout
url: https://shop.test/
page: page.html
steps:
  - input: {selector: "#email", value: "someone@shop.test"}
  - click: "#menu a"
  - set: {selector: "#promo", attribute: "track-visibility", value: '{"mode":"manual","isVisible":false}'}
  - click: "li.product"
  - append:
      selector: "#products"
      html: <button id="chat" element-id="chat" track-clicks="true" context='{"_type":"PressableContext","id":"chat"}'>Chat</button>
  - click: "#chat"
  - click: "#buy"
`

func init() {
	rootCmd.AddCommand(demoCmd)

	demoFlags = AddStandardFlags(demoCmd, "output")
	demoCmd.Flags().StringVar(&demoOut, "out", "", "Directory to write page.html and checkout.yml to")
	demoCmd.Flags().BoolVar(&demoScan, "scan", false, "Scan the rendered page and print the result")
}

func runDemo(cmd *cobra.Command, args []string) error {
	page, err := demoPage()
	if err != nil {
		return fmt.Errorf("failed to tag demo page: %w", err)
	}
	var buf bytes.Buffer
	if err := page.Render(cmd.Context(), &buf); err != nil {
		return err
	}

	if demoOut != "" {
		if err := os.MkdirAll(demoOut, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(demoOut, "page.html"), buf.Bytes(), 0o644); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(demoOut, "checkout.yml"), []byte(demoScenario), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s and %s\n", filepath.Join(demoOut, "page.html"), filepath.Join(demoOut, "checkout.yml"))
	}

	if !demoScan {
		if demoOut == "" {
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		}
		return nil
	}

	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	runner, err := scenario.NewRunner(cfg, logger)
	if err != nil {
		return err
	}
	res, err := runner.Scan(cmd.Context(), "demo", buf.String())
	if err != nil {
		return err
	}
	return writeResults(cmd.OutOrStdout(), demoFlags.OutputFormat, demoFlags.Verbose, []*scenario.Result{res})
}

// demoPage builds the demo shop with the tagging helpers.
func demoPage() (templ.Component, error) {
	var tagErr error
	tag := func(attrs templ.Attributes, err error) templ.Attributes {
		if err != nil && tagErr == nil {
			tagErr = err
		}
		return attrs
	}
	id := func(v string) templ.Attributes { return templ.Attributes{"id": v} }

	product, err := tagging.TagChild("li.product", location.NewContext(location.KindPressable, "product"), tagging.Options{
		Validate: &codec.Validation{LocationUniqueness: false},
	})
	if err != nil {
		return nil, err
	}

	el := tagging.Element
	text := tagging.Text

	page := el("html", nil,
		el("head", nil, el("title", nil, text("autotrack demo"))),
		el("body", nil,
			el("main", tag(tagging.TagRootLocation("shop", tagging.Options{ElementID: "shop"})),
				el("nav", tagging.Merge(id("menu"), tag(tagging.TagNavigation("menu", tagging.Options{ElementID: "menu"}))),
					el("a", tagging.Merge(templ.Attributes{"href": "/"}, tag(tagging.TagLink("home", "/", tagging.Options{ElementID: "home"}))), text("Home")),
					el("a", tagging.Merge(templ.Attributes{"href": "/help"}, tag(tagging.TagLink("help", "/help", tagging.Options{ElementID: "help"}))), text("Help")),
				),
				el("section", tagging.Merge(id("products"), tag(tagging.TagContent("products", tagging.Options{
					ElementID: "products",
					Children:  []codec.ChildQuery{product},
				}))),
					el("ul", nil,
						el("li", templ.Attributes{"class": "product"}, text("hat")),
						el("li", templ.Attributes{"class": "product"}, text("scarf")),
					),
				),
				el("input", tagging.Merge(id("email"), tag(tagging.TagInput("email", tagging.Options{
					ElementID:  "email",
					TrackBlurs: &codec.BlurTracking{TrackValue: true},
				})))),
				el("a", tagging.Merge(id("buy"), templ.Attributes{"href": "/checkout"}, tag(tagging.TagLink("buy", "/checkout", tagging.Options{
					ElementID: "buy",
					TrackClicks: &codec.ClickTracking{WaitUntilTracked: &codec.WaitUntilTracked{
						IntervalMs: 50,
						TimeoutMs:  500,
						FlushQueue: codec.FlushOnTimeout,
					}},
				}))), text("Buy")),
				el("div", tagging.Merge(id("promo"), tag(tagging.TagOverlay("promo", tagging.Options{
					ElementID:       "promo",
					TrackVisibility: &codec.VisibilityTracking{Mode: codec.VisibilityManual, IsVisible: true},
				}))), text("Free shipping today")),
			),
		),
	)
	if tagErr != nil {
		return nil, tagErr
	}
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<!DOCTYPE html>\n"); err != nil {
			return err
		}
		return page.Render(ctx, w)
	}), nil
}
