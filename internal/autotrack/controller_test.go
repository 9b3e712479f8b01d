package autotrack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/autotrack/internal/codec"
	"github.com/conneroisu/autotrack/internal/delivery"
	"github.com/conneroisu/autotrack/internal/dom"
	"github.com/conneroisu/autotrack/internal/errors"
	"github.com/conneroisu/autotrack/internal/events"
	"github.com/conneroisu/autotrack/internal/index"
	"github.com/conneroisu/autotrack/internal/location"
	"github.com/conneroisu/autotrack/internal/locationstack"
	"github.com/conneroisu/autotrack/internal/tagging"
)

const nested = `<html><body>
<div id="a" element-id="a" context='{"_type":"RootLocationContext","id":"a"}'>
  <div id="b" element-id="b" context='{"_type":"ContentContext","id":"b"}'>
    <button id="c" element-id="c" track-clicks="true" context='{"_type":"PressableContext","id":"c"}'>c</button>
    <button id="sibling" element-id="sibling" track-clicks="true" context='{"_type":"PressableContext","id":"sibling"}'>s</button>
  </div>
</div>
</body></html>`

// recordingIndex wraps the in-memory index and records removals.
type recordingIndex struct {
	*index.LocationIndex
	removed []string
}

func (r *recordingIndex) Remove(elementID string) {
	r.removed = append(r.removed, elementID)
	r.LocationIndex.Remove(elementID)
}

type harness struct {
	doc       *dom.Document
	ctrl      *Controller
	queue     *delivery.Queue
	sink      *delivery.MemorySink
	collector *errors.ErrorCollector
	index     *recordingIndex
}

func newHarness(t *testing.T, markup string, opts ...func(*Options)) *harness {
	t.Helper()
	doc, err := dom.ParseString(markup)
	require.NoError(t, err)
	return newHarnessForDoc(t, doc, opts...)
}

func newHarnessForDoc(t *testing.T, doc *dom.Document, opts ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		doc:       doc,
		sink:      delivery.NewMemorySink(),
		collector: errors.NewErrorCollector(),
		index:     &recordingIndex{LocationIndex: index.New()},
	}
	h.queue = delivery.NewQueue(nil, h.sink)

	o := Options{
		Tracker:   h.queue,
		Index:     h.index,
		Collector: h.collector,
	}
	for _, opt := range opts {
		opt(&o)
	}
	h.ctrl = New(doc.DocumentElement(), o)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.Start(context.Background()))
}

func (h *harness) ofType(t *testing.T, typ events.Type) []events.Event {
	t.Helper()
	require.NoError(t, h.queue.FlushQueue(context.Background()))
	return h.sink.OfType(typ)
}

func (h *harness) byID(t *testing.T, id string) *dom.Element {
	t.Helper()
	el := h.doc.FindByAttr("id", id)
	require.NotNil(t, el, "element #%s", id)
	return el
}

func encodeVisibility(t *testing.T, v *codec.VisibilityTracking) string {
	t.Helper()
	s, err := codec.EncodeVisibilityTracking(v)
	require.NoError(t, err)
	return s
}

func TestStart_ScansExistingTree(t *testing.T) {
	h := newHarness(t, nested)
	h.start(t)

	for _, id := range []string{"a", "b", "c", "sibling"} {
		assert.True(t, codec.IsTracked(h.byID(t, id)), "element %s", id)
	}
	assert.Equal(t, 4, h.index.Count())
	assert.False(t, h.collector.HasErrors())
}

func TestStart_Idempotent(t *testing.T) {
	h := newHarness(t, nested)

	h.start(t)
	h.start(t)
	assert.True(t, h.ctrl.IsStarted())
	assert.Equal(t, 1, h.doc.ObserverCount())
	assert.Len(t, h.ofType(t, events.TypeApplicationLoaded), 1)

	h.ctrl.Stop()
	h.ctrl.Stop()
	assert.False(t, h.ctrl.IsStarted())
	assert.Equal(t, 0, h.doc.ObserverCount())

	h.start(t)
	assert.Equal(t, 1, h.doc.ObserverCount())
	assert.Len(t, h.ofType(t, events.TypeApplicationLoaded), 1, "application loaded fires once per controller")
}

func TestStart_RuntimeUnavailable(t *testing.T) {
	doc, err := dom.ParseString(nested, dom.WithoutMutationObserver())
	require.NoError(t, err)
	h := newHarnessForDoc(t, doc)

	err = h.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRuntimeUnavailable))
	assert.False(t, h.ctrl.IsStarted())
	assert.Len(t, h.collector.GetErrorsByType(errors.ErrorTypeRuntimeUnavailable), 1)
}

func TestClick_EmitsPressForActualTargetOnly(t *testing.T) {
	h := newHarness(t, nested)
	h.start(t)

	h.byID(t, "c").Click()

	presses := h.ofType(t, events.TypePress)
	require.Len(t, presses, 1)
	assert.Equal(t, []string{"a", "b", "c"}, presses[0].LocationStack.IDs())
	assert.Equal(t, location.KindRootLocation, presses[0].LocationStack[0].Kind)
}

func TestRemoval_EmitsHiddenAndDeregisters(t *testing.T) {
	h := newHarness(t, `<html><body><div id="shell" element-id="shell" context='{"_type":"RootLocationContext","id":"shell"}'>
<div id="modal" element-id="modal" track-visibility='{"mode":"auto"}' validate='{"locationUniqueness":false}'
     context='{"_type":"OverlayContext","id":"modal"}'></div></div></body></html>`)
	h.start(t)

	assert.Len(t, h.ofType(t, events.TypeVisible), 1)
	_, registered := h.index.Get("modal")
	assert.False(t, registered, "uniqueness validation is off")

	h.byID(t, "modal").Remove()
	h.doc.DeliverMutations()

	hidden := h.ofType(t, events.TypeHidden)
	require.Len(t, hidden, 1)
	assert.Equal(t, []string{"shell", "modal"}, hidden[0].LocationStack.IDs())
	assert.Contains(t, h.index.removed, "modal")
}

func TestRemoval_FreesLocationForRemount(t *testing.T) {
	h := newHarness(t, `<html><body><section id="list">
<div id="item" element-id="item-1" context='{"_type":"ContentContext","id":"item"}'></div>
</section></body></html>`)
	h.start(t)
	_, ok := h.index.Get("item-1")
	require.True(t, ok)

	h.byID(t, "item").Remove()
	h.doc.DeliverMutations()
	_, ok = h.index.Get("item-1")
	assert.False(t, ok)

	fresh, err := h.doc.ParseFragment(`<div element-id="item-2" context='{"_type":"ContentContext","id":"item"}'></div>`)
	require.NoError(t, err)
	require.NoError(t, h.byID(t, "list").AppendChild(fresh[0]))
	h.doc.DeliverMutations()

	_, ok = h.index.Get("item-2")
	assert.True(t, ok)
	assert.Empty(t, h.collector.GetErrorsByType(errors.ErrorTypeCollision))
}

func TestMove_RetracksElement(t *testing.T) {
	h := newHarness(t, `<html><body>
<section id="left"><div id="item" element-id="item-1" track-visibility="true" track-clicks="true"
  context='{"_type":"ContentContext","id":"item"}'></div></section>
<section id="right"></section></body></html>`)
	h.start(t)
	item := h.byID(t, "item")

	require.NoError(t, h.byID(t, "right").AppendChild(item))
	h.doc.DeliverMutations()

	assert.Contains(t, h.index.removed, "item-1")
	_, registered := h.index.Get("item-1")
	assert.True(t, registered, "the moved element is registered again")
	assert.True(t, codec.IsTracked(item))
	assert.Len(t, h.ofType(t, events.TypeVisible), 2)
	assert.Len(t, h.ofType(t, events.TypeHidden), 1)
	assert.Equal(t, 1, item.ListenerCount(dom.EventClick))
	assert.Empty(t, h.collector.GetErrorsByType(errors.ErrorTypeCollision))

	item.Click()
	assert.Len(t, h.ofType(t, events.TypePress), 1)
}

func TestMountUnmount_ReleasesElementState(t *testing.T) {
	h := newHarness(t, `<html><body><main id="app"></main></body></html>`)
	h.start(t)

	frag, err := h.doc.ParseFragment(`<button element-id="cta" track-clicks="true" track-blurs="true"
  context='{"_type":"PressableContext","id":"cta"}'>go</button>`)
	require.NoError(t, err)
	btn := frag[0]

	for i := 0; i < 50; i++ {
		require.NoError(t, h.byID(t, "app").AppendChild(btn))
		h.doc.DeliverMutations()
		require.Len(t, h.ctrl.elements, 1, "cycle %d", i)
		btn.Click()

		btn.Remove()
		h.doc.DeliverMutations()
	}

	assert.Empty(t, h.ctrl.elements)
	assert.Equal(t, 0, h.index.Count())
	assert.False(t, codec.IsTracked(btn))
	assert.Equal(t, 0, btn.ListenerCount(dom.EventClick))
	assert.Equal(t, 0, btn.ListenerCount(dom.EventBlur))
	assert.Len(t, h.ofType(t, events.TypePress), 50)
}

// panickingTracker panics when asked to track an event located at id.
type panickingTracker struct {
	*delivery.Queue
	id string
}

func (p *panickingTracker) TrackEvent(ctx context.Context, ev events.Event) error {
	if leaf, ok := ev.LocationStack.Leaf(); ok && leaf.ID == p.id {
		panic("tracker failure")
	}
	return p.Queue.TrackEvent(ctx, ev)
}

func TestProcessBatch_PanicInOneRecordKeepsTheRest(t *testing.T) {
	h := newHarness(t, `<html><body><main id="app"></main></body></html>`, func(o *Options) {
		o.Tracker = &panickingTracker{Queue: o.Tracker.(*delivery.Queue), id: "first"}
	})
	h.start(t)

	for _, id := range []string{"first", "second"} {
		frag, err := h.doc.ParseFragment(`<div element-id="` + id + `" track-visibility="true" context='{"_type":"OverlayContext","id":"` + id + `"}'></div>`)
		require.NoError(t, err)
		require.NoError(t, h.byID(t, "app").AppendChild(frag[0]))
	}
	h.doc.DeliverMutations()

	visible := h.ofType(t, events.TypeVisible)
	require.Len(t, visible, 1)
	assert.Equal(t, []string{"second"}, visible[0].LocationStack.IDs())
	assert.Len(t, h.collector.GetErrorsByType(errors.ErrorTypeInternal), 1)
}

func TestEvents_CarryEnricherGlobals(t *testing.T) {
	app := events.GlobalContext{Kind: "ApplicationContext", ID: "shop"}
	h := newHarness(t, `<html><body><div id="modal" element-id="modal" track-visibility="true"
  context='{"_type":"OverlayContext","id":"modal"}'></div></body></html>`, func(o *Options) {
		o.Enricher = locationstack.EnricherFunc(func(s location.Stack, g []events.GlobalContext) (location.Stack, []events.GlobalContext) {
			return s, append(g, app)
		})
	})
	h.start(t)

	h.byID(t, "modal").Remove()
	h.doc.DeliverMutations()

	for _, typ := range []events.Type{events.TypeApplicationLoaded, events.TypeVisible, events.TypeHidden} {
		evs := h.ofType(t, typ)
		require.Len(t, evs, 1, string(typ))
		assert.Equal(t, []events.GlobalContext{app}, evs[0].GlobalContexts, string(typ))
	}
}

func TestInsertion_TracksNewSubtree(t *testing.T) {
	h := newHarness(t, `<html><body><main id="app"></main></body></html>`)
	h.start(t)

	frag, err := h.doc.ParseFragment(`<div element-id="dialog" track-visibility="true" context='{"_type":"OverlayContext","id":"dialog"}'>
<input id="email" element-id="email" track-blurs='{"trackValue":true}' value="a@b.c" context='{"_type":"InputContext","id":"email"}'>
</div>`)
	require.NoError(t, err)
	require.NoError(t, h.byID(t, "app").AppendChild(frag[0]))
	h.doc.DeliverMutations()

	visible := h.ofType(t, events.TypeVisible)
	require.Len(t, visible, 1)
	assert.Equal(t, []string{"dialog"}, visible[0].LocationStack.IDs())

	email := h.byID(t, "email")
	assert.True(t, codec.IsTracked(email))
	email.Blur()

	changes := h.ofType(t, events.TypeInputChange)
	require.Len(t, changes, 1)
	assert.Equal(t, []string{"dialog", "email"}, changes[0].LocationStack.IDs())
	assert.Equal(t, "a@b.c", changes[0].Attributes["value"])
}

func TestInsertion_ChildrenQueries(t *testing.T) {
	h := newHarness(t, `<html><body><main id="app"></main></body></html>`)
	h.start(t)

	good, err := tagging.TagChild("button.buy", location.NewContext(location.KindPressable, "buy"), tagging.Options{})
	require.NoError(t, err)
	more, err := tagging.TagChild("a.more", location.NewLink("more", "/more"), tagging.Options{})
	require.NoError(t, err)
	bad, err := codec.NewChildQuery("button[", codec.TagAttributes{
		codec.AttrContext: `{"_type":"PressableContext","id":"broken"}`,
	})
	require.NoError(t, err)
	queries, err := tagging.TagChildren(good, bad, more)
	require.NoError(t, err)

	host := h.doc.CreateElement("div")
	tagging.Apply(host, queries)
	host.SetAttr("id", "host")
	btn := h.doc.CreateElement("button")
	btn.SetAttr("class", "buy")
	link := h.doc.CreateElement("a")
	link.SetAttr("class", "more")
	require.NoError(t, host.AppendChild(btn))
	require.NoError(t, host.AppendChild(link))

	require.NoError(t, h.byID(t, "app").AppendChild(host))
	h.doc.DeliverMutations()

	assert.True(t, codec.IsTracked(btn))
	assert.True(t, codec.IsTracked(link))
	assert.False(t, codec.IsTracked(host), "a host without a context is not itself tracked")
	assert.Len(t, h.collector.GetErrorsByType(errors.ErrorTypeDecode), 1)

	btn.Click()
	presses := h.ofType(t, events.TypePress)
	require.Len(t, presses, 1)
	assert.Equal(t, []string{"buy"}, presses[0].LocationStack.IDs())
}

func TestTrackNewElements_SkipsTracked(t *testing.T) {
	h := newHarness(t, nested)
	h.start(t)

	again := h.ctrl.TrackNewElements(context.Background(), h.doc.DocumentElement())
	assert.Empty(t, again)
	assert.Equal(t, 1, h.byID(t, "c").ListenerCount(dom.EventClick))
}

func TestVisibilityToggle_EmitsOncePerChange(t *testing.T) {
	hidden := encodeVisibility(t, &codec.VisibilityTracking{Mode: codec.VisibilityManual, IsVisible: false})
	shown := encodeVisibility(t, &codec.VisibilityTracking{Mode: codec.VisibilityManual, IsVisible: true})

	h := newHarness(t, `<html><body><div id="panel" element-id="panel" context='{"_type":"ExpandableContext","id":"panel"}'></div></body></html>`)
	h.byID(t, "panel").SetAttr(codec.AttrTrackVisibility, hidden)
	h.start(t)
	panel := h.byID(t, "panel")

	assert.Empty(t, h.ofType(t, events.TypeVisible))

	steps := []struct {
		value       string
		wantVisible int
		wantHidden  int
	}{
		{shown, 1, 0},
		{shown, 1, 0},
		{hidden, 1, 1},
		{hidden, 1, 1},
		{shown, 2, 1},
	}
	for i, step := range steps {
		panel.SetAttr(codec.AttrTrackVisibility, step.value)
		h.doc.DeliverMutations()
		assert.Len(t, h.ofType(t, events.TypeVisible), step.wantVisible, "step %d", i)
		assert.Len(t, h.ofType(t, events.TypeHidden), step.wantHidden, "step %d", i)
	}
}

func TestElementIDChange_DeregistersOldID(t *testing.T) {
	h := newHarness(t, nested)
	h.start(t)
	_, ok := h.index.Get("c")
	require.True(t, ok)

	h.byID(t, "c").SetAttr(codec.AttrElementID, "c-renamed")
	h.doc.DeliverMutations()

	assert.Contains(t, h.index.removed, "c")
	_, ok = h.index.Get("c")
	assert.False(t, ok)
}

func TestCollision_IsReportedNotFatal(t *testing.T) {
	h := newHarness(t, `<html><body>
<button id="one" element-id="one" track-clicks="true" context='{"_type":"PressableContext","id":"same"}'></button>
<button id="two" element-id="two" track-clicks="true" context='{"_type":"PressableContext","id":"same"}'></button>
</body></html>`)
	h.start(t)

	collisions := h.collector.GetErrorsByType(errors.ErrorTypeCollision)
	require.Len(t, collisions, 1)
	assert.Equal(t, "two", collisions[0].ElementID)

	h.byID(t, "two").Click()
	assert.Len(t, h.ofType(t, events.TypePress), 1, "the colliding element is still tracked")
}

func TestUndecodableElement_IsNotTracked(t *testing.T) {
	h := newHarness(t, `<html><body><div id="bad" element-id="bad" context='{"_type":"Nope","id":"x"}'></div></body></html>`)
	h.start(t)

	assert.False(t, codec.IsTracked(h.byID(t, "bad")))
	decodeErrs := h.collector.GetErrorsByType(errors.ErrorTypeDecode)
	require.Len(t, decodeErrs, 1)
	assert.Equal(t, "bad", decodeErrs[0].ElementID)
}

func TestStop_IgnoresLaterMutations(t *testing.T) {
	h := newHarness(t, `<html><body><main id="app"></main></body></html>`)
	h.start(t)
	h.ctrl.Stop()

	frag, err := h.doc.ParseFragment(`<div element-id="late" track-visibility="true" context='{"_type":"OverlayContext","id":"late"}'></div>`)
	require.NoError(t, err)
	require.NoError(t, h.byID(t, "app").AppendChild(frag[0]))
	h.doc.DeliverMutations()

	assert.False(t, codec.IsTracked(frag[0]))
	assert.Empty(t, h.ofType(t, events.TypeVisible))
}

func TestPrefixAndEnricher(t *testing.T) {
	prefix := location.Stack{location.NewContext(location.KindRootLocation, "embedder")}
	enriched := 0
	h := newHarness(t, nested, func(o *Options) {
		o.Prefix = prefix
		o.Enricher = enricherFunc(func(s location.Stack) location.Stack {
			enriched++
			return s
		})
	})
	h.start(t)

	assert.Equal(t, []string{"embedder", "a", "b", "c"}, h.ctrl.LocationStack(context.Background(), h.byID(t, "c")).IDs())
	assert.Greater(t, enriched, 0)

	loaded := h.ofType(t, events.TypeApplicationLoaded)
	require.Len(t, loaded, 1)
	assert.Equal(t, []string{"embedder"}, loaded[0].LocationStack.IDs())
}

func TestErrorHandlerReceivesErrors(t *testing.T) {
	var got []error
	h := newHarness(t, `<html><body><div element-id="x" parent-element-id="ghost" track-clicks="true" id="x"
  context='{"_type":"PressableContext","id":"x"}'></div></body></html>`, func(o *Options) {
		o.ErrorHandler = func(_ context.Context, err error) { got = append(got, err) }
	})
	h.start(t)

	require.NotEmpty(t, got)
	assert.True(t, errors.IsResolutionError(got[0]))
}

func TestURLChangeIsRecorded(t *testing.T) {
	doc, err := dom.ParseString(nested, dom.WithURL("https://shop.test/"))
	require.NoError(t, err)
	h := newHarnessForDoc(t, doc)
	h.start(t)
	assert.Equal(t, "https://shop.test/", h.ctrl.previousURL)

	doc.SetURL("https://shop.test/cart")
	h.ctrl.ProcessBatch(context.Background(), nil)
	assert.Equal(t, "https://shop.test/cart", h.ctrl.previousURL)
}

type enricherFunc func(location.Stack) location.Stack

func (f enricherFunc) Enrich(stack location.Stack, globals []events.GlobalContext) (location.Stack, []events.GlobalContext) {
	return f(stack), globals
}
