package interceptor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/autotrack/internal/codec"
	"github.com/conneroisu/autotrack/internal/delivery"
	"github.com/conneroisu/autotrack/internal/dom"
	"github.com/conneroisu/autotrack/internal/errors"
	"github.com/conneroisu/autotrack/internal/events"
	"github.com/conneroisu/autotrack/internal/location"
	"github.com/conneroisu/autotrack/internal/locationstack"
)

const page = `<html><body>
<nav element-id="nav" tracked="true" context='{"_type":"NavigationContext","id":"menu"}'>
  <a id="buy" element-id="buy" tracked="true" track-clicks="true"
     context='{"_type":"LinkContext","id":"buy","href":"/checkout"}'><span id="label">Buy</span></a>
  <button id="other" element-id="other" tracked="true" track-clicks="true"
     context='{"_type":"PressableContext","id":"other"}'>Other</button>
</nav>
</body></html>`

// recordingTracker is a Tracker whose drain result is fixed.
type recordingTracker struct {
	tracked []events.Event
	waits   []delivery.WaitOptions
	flushes int
	drained bool
	calls   []string
}

func (r *recordingTracker) TrackEvent(_ context.Context, ev events.Event) error {
	r.tracked = append(r.tracked, ev)
	r.calls = append(r.calls, "track")
	return nil
}

func (r *recordingTracker) WaitForQueue(_ context.Context, opts delivery.WaitOptions) (bool, error) {
	r.waits = append(r.waits, opts)
	r.calls = append(r.calls, "wait")
	return r.drained, nil
}

func (r *recordingTracker) FlushQueue(context.Context) error {
	r.flushes++
	r.calls = append(r.calls, "flush")
	return nil
}

type fixture struct {
	doc     *dom.Document
	el      *dom.Element
	tracker *recordingTracker
	navs    []string
}

func setup(t *testing.T, id string, opts *codec.ClickTracking) *fixture {
	t.Helper()
	doc, err := dom.ParseString(page)
	require.NoError(t, err)
	el := doc.FindByAttr("id", id)
	require.NotNil(t, el)

	f := &fixture{doc: doc, el: el, tracker: &recordingTracker{}}
	doc.SetDefaultAction(dom.EventClick, func(ev *dom.Event) {
		f.tracker.calls = append(f.tracker.calls, "navigate")
		f.navs = append(f.navs, ev.Target.GetAttr("id"))
	})

	errs := errors.NewChannel(nil, nil)
	builder := &locationstack.Builder{Errors: errs}
	Attach(Config{
		Element: el,
		Options: opts,
		Locate:  builder.Locate,
		Tracker: f.tracker,
		Errors:  errs,
	})
	return f
}

func TestFireAndForget(t *testing.T) {
	f := setup(t, "buy", &codec.ClickTracking{})

	assert.True(t, f.el.Click())

	require.Len(t, f.tracker.tracked, 1)
	press := f.tracker.tracked[0]
	assert.Equal(t, events.TypePress, press.Type)
	assert.Equal(t, []string{"menu", "buy"}, press.LocationStack.IDs())
	leaf, ok := press.LocationStack.Leaf()
	require.True(t, ok)
	assert.Equal(t, location.KindLink, leaf.Kind)
	assert.Empty(t, f.tracker.waits)
	assert.Equal(t, []string{"buy"}, f.navs)
}

func TestFireAndForget_FollowUp(t *testing.T) {
	doc, err := dom.ParseString(page)
	require.NoError(t, err)
	el := doc.FindByAttr("id", "other")
	tracker := &recordingTracker{}
	var followed []string

	Attach(Config{
		Element: el,
		Options: &codec.ClickTracking{},
		Locate:  (&locationstack.Builder{}).Locate,
		Tracker: tracker,
		FollowUp: func(ev *dom.Event) {
			followed = append(followed, ev.Target.GetAttr("id"))
		},
	})

	el.Click()
	assert.Equal(t, []string{"other"}, followed)
	assert.Len(t, tracker.tracked, 1)
}

func TestBlocking_TracksBeforeNavigation(t *testing.T) {
	f := setup(t, "buy", &codec.ClickTracking{WaitUntilTracked: &codec.WaitUntilTracked{
		IntervalMs: 5, TimeoutMs: 50,
	}})
	f.tracker.drained = true

	dispatched := f.el.Click()

	assert.False(t, dispatched, "the original click is canceled")
	assert.Equal(t, []string{"track", "wait", "navigate"}, f.tracker.calls)
	require.Len(t, f.tracker.waits, 1)
	assert.Equal(t, 5*time.Millisecond, f.tracker.waits[0].Interval)
	assert.Equal(t, 50*time.Millisecond, f.tracker.waits[0].Timeout)
	assert.Equal(t, 1, f.el.ListenerCount(dom.EventClick), "interceptor is reattached")
}

func TestBlocking_ReDispatchDoesNotRecurse(t *testing.T) {
	f := setup(t, "buy", &codec.ClickTracking{WaitUntilTracked: &codec.WaitUntilTracked{}})
	f.tracker.drained = true

	for n := 1; n <= 3; n++ {
		f.el.Click()
		assert.Len(t, f.tracker.tracked, n)
		assert.Len(t, f.navs, n)
	}
}

func TestBlocking_ReDispatchesOnOriginalTarget(t *testing.T) {
	f := setup(t, "buy", &codec.ClickTracking{WaitUntilTracked: &codec.WaitUntilTracked{}})
	f.tracker.drained = true

	label := f.doc.FindByAttr("id", "label")
	label.Click()

	assert.Len(t, f.tracker.tracked, 1)
	assert.Equal(t, []string{"label"}, f.navs)
}

func TestBlocking_FlushPolicy(t *testing.T) {
	tests := []struct {
		name      string
		policy    codec.FlushPolicy
		drained   bool
		wantFlush int
	}{
		{"on timeout after timeout", codec.FlushOnTimeout, false, 1},
		{"on timeout after drain", codec.FlushOnTimeout, true, 0},
		{"unset after timeout", "", false, 1},
		{"always", codec.FlushAlways, true, 1},
		{"never", codec.FlushNever, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, "buy", &codec.ClickTracking{WaitUntilTracked: &codec.WaitUntilTracked{
				FlushQueue: tt.policy,
			}})
			f.tracker.drained = tt.drained

			f.el.Click()
			assert.Equal(t, tt.wantFlush, f.tracker.flushes)
			assert.Len(t, f.navs, 1)
		})
	}
}

func TestBlocking_DefaultBounds(t *testing.T) {
	f := setup(t, "buy", &codec.ClickTracking{WaitUntilTracked: &codec.WaitUntilTracked{}})
	f.el.Click()

	require.Len(t, f.tracker.waits, 1)
	assert.Equal(t, DefaultInterval, f.tracker.waits[0].Interval)
	assert.Equal(t, DefaultTimeout, f.tracker.waits[0].Timeout)
}

func TestBlocking_ConfiguredBounds(t *testing.T) {
	doc, err := dom.ParseString(page)
	require.NoError(t, err)
	el := doc.FindByAttr("id", "buy")
	tracker := &recordingTracker{drained: true}

	Attach(Config{
		Element: el,
		Options: &codec.ClickTracking{WaitUntilTracked: &codec.WaitUntilTracked{TimeoutMs: 30}},
		Locate:  (&locationstack.Builder{}).Locate,
		Tracker: tracker,
		Wait:    delivery.WaitOptions{Interval: 7 * time.Millisecond, Timeout: 2 * time.Second},
	})
	el.Click()

	require.Len(t, tracker.waits, 1)
	assert.Equal(t, 7*time.Millisecond, tracker.waits[0].Interval)
	assert.Equal(t, 30*time.Millisecond, tracker.waits[0].Timeout, "element options win")
}

func TestBlocking_WithQueue(t *testing.T) {
	doc, err := dom.ParseString(page)
	require.NoError(t, err)
	el := doc.FindByAttr("id", "buy")

	sink := delivery.NewMemorySink()
	queue := delivery.NewQueue(nil, sink)
	var deliveredAtNavigation int
	doc.SetDefaultAction(dom.EventClick, func(*dom.Event) {
		deliveredAtNavigation = len(sink.Events())
	})

	Attach(Config{
		Element: el,
		Options: &codec.ClickTracking{WaitUntilTracked: &codec.WaitUntilTracked{
			IntervalMs: 1, TimeoutMs: 10, FlushQueue: codec.FlushOnTimeout,
		}},
		Locate:  (&locationstack.Builder{}).Locate,
		Tracker: queue,
	})

	el.Click()
	assert.Equal(t, 1, deliveredAtNavigation, "the press is delivered before navigation")
	assert.Equal(t, 0, queue.Len())
}

func TestNestedTrackedElementOwnsPress(t *testing.T) {
	doc, err := dom.ParseString(page)
	require.NoError(t, err)
	nav := doc.FindByAttr("element-id", "nav")
	buy := doc.FindByAttr("id", "buy")

	navTracker := &recordingTracker{}
	buyTracker := &recordingTracker{}
	locate := (&locationstack.Builder{}).Locate
	Attach(Config{Element: nav, Options: &codec.ClickTracking{}, Locate: locate, Tracker: navTracker})
	Attach(Config{Element: buy, Options: &codec.ClickTracking{}, Locate: locate, Tracker: buyTracker})

	buy.Click()
	assert.Len(t, buyTracker.tracked, 1)
	assert.Empty(t, navTracker.tracked)

	nav.Click()
	assert.Len(t, navTracker.tracked, 1)
}

func TestDetach(t *testing.T) {
	f := setup(t, "other", &codec.ClickTracking{})
	doc := f.doc
	el := doc.FindByAttr("id", "other")
	assert.Equal(t, 1, el.ListenerCount(dom.EventClick))

	i := Attach(Config{
		Element: el,
		Options: &codec.ClickTracking{},
		Locate:  (&locationstack.Builder{}).Locate,
		Tracker: f.tracker,
	})
	assert.True(t, i.Attached())
	i.Detach()
	i.Detach()
	assert.False(t, i.Attached())
	assert.Equal(t, 1, el.ListenerCount(dom.EventClick))
}

func TestBlocking_ConfiguredFlushPolicy(t *testing.T) {
	doc, err := dom.ParseString(page)
	require.NoError(t, err)
	el := doc.FindByAttr("id", "buy")
	tracker := &recordingTracker{drained: true}

	Attach(Config{
		Element: el,
		Options: &codec.ClickTracking{WaitUntilTracked: &codec.WaitUntilTracked{}},
		Locate:  (&locationstack.Builder{}).Locate,
		Tracker: tracker,
		Flush:   codec.FlushAlways,
	})
	el.Click()

	assert.Equal(t, 1, tracker.flushes)
}

func TestBlocking_DetachDuringPressIsFinal(t *testing.T) {
	doc, err := dom.ParseString(page)
	require.NoError(t, err)
	el := doc.FindByAttr("id", "buy")
	tracker := &recordingTracker{drained: true}

	var i *Interceptor
	i = Attach(Config{
		Element:  el,
		Options:  &codec.ClickTracking{WaitUntilTracked: &codec.WaitUntilTracked{}},
		Locate:   (&locationstack.Builder{}).Locate,
		Tracker:  tracker,
		FollowUp: func(*dom.Event) { i.Detach() },
	})

	el.Click()
	assert.Len(t, tracker.tracked, 1)
	assert.False(t, i.Attached())
	assert.Equal(t, 0, el.ListenerCount(dom.EventClick))

	el.Click()
	assert.Len(t, tracker.tracked, 1)
}

func TestPress_CarriesGlobalContexts(t *testing.T) {
	doc, err := dom.ParseString(page)
	require.NoError(t, err)
	el := doc.FindByAttr("id", "other")
	tracker := &recordingTracker{}
	app := events.GlobalContext{Kind: "ApplicationContext", ID: "shop"}
	builder := &locationstack.Builder{
		Enricher: locationstack.EnricherFunc(func(s location.Stack, g []events.GlobalContext) (location.Stack, []events.GlobalContext) {
			return s, append(g, app)
		}),
	}

	Attach(Config{Element: el, Options: &codec.ClickTracking{}, Locate: builder.Locate, Tracker: tracker})
	el.Click()

	require.Len(t, tracker.tracked, 1)
	assert.Equal(t, []events.GlobalContext{app}, tracker.tracked[0].GlobalContexts)
}
