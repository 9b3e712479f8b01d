//go:build property

package autotrack

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/autotrack/internal/codec"
	"github.com/conneroisu/autotrack/internal/delivery"
	"github.com/conneroisu/autotrack/internal/dom"
	"github.com/conneroisu/autotrack/internal/events"
)

// TestVisibilityToggleProperties checks that any sequence of manual
// visibility values emits one event per change of state and nothing for
// repeats.
func TestVisibilityToggleProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1717)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("one event per visibility change", prop.ForAll(
		func(initial bool, sequence []bool) bool {
			doc, err := dom.ParseString(`<body><div id="p" element-id="p" context='{"_type":"OverlayContext","id":"p"}'></div></body>`)
			if err != nil {
				return false
			}
			panel := doc.FindByAttr("id", "p")
			encode := func(v bool) string {
				s, _ := codec.EncodeVisibilityTracking(&codec.VisibilityTracking{Mode: codec.VisibilityManual, IsVisible: v})
				return s
			}
			panel.SetAttr(codec.AttrTrackVisibility, encode(initial))

			sink := delivery.NewMemorySink()
			queue := delivery.NewQueue(nil, sink)
			ctrl := New(doc.DocumentElement(), Options{Tracker: queue})
			if err := ctrl.Start(context.Background()); err != nil {
				return false
			}

			wantVisible, wantHidden := 0, 0
			if initial {
				wantVisible++
			}
			state := initial
			for _, v := range sequence {
				panel.SetAttr(codec.AttrTrackVisibility, encode(v))
				doc.DeliverMutations()
				if v != state {
					if v {
						wantVisible++
					} else {
						wantHidden++
					}
					state = v
				}
			}

			if err := queue.FlushQueue(context.Background()); err != nil {
				return false
			}
			return len(sink.OfType(events.TypeVisible)) == wantVisible &&
				len(sink.OfType(events.TypeHidden)) == wantHidden
		},
		gen.Bool(),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
