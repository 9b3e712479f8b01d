// Package autotrack keeps tracking instrumentation consistent with a
// mutating document. A Controller scans a root for tagged elements, then
// follows every mutation below it: tagging children, registering locations,
// attaching press and blur listeners, and emitting visibility events.
package autotrack

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/conneroisu/autotrack/internal/children"
	"github.com/conneroisu/autotrack/internal/codec"
	"github.com/conneroisu/autotrack/internal/delivery"
	"github.com/conneroisu/autotrack/internal/dom"
	"github.com/conneroisu/autotrack/internal/errors"
	"github.com/conneroisu/autotrack/internal/events"
	"github.com/conneroisu/autotrack/internal/index"
	"github.com/conneroisu/autotrack/internal/interceptor"
	"github.com/conneroisu/autotrack/internal/location"
	"github.com/conneroisu/autotrack/internal/locationstack"
	"github.com/conneroisu/autotrack/internal/logging"
)

// observedAttributes are the attribute changes the controller reacts to.
var observedAttributes = []string{codec.AttrElementID, codec.AttrTrackVisibility}

// Options configures a Controller.
type Options struct {
	// Tracker receives every event. Defaults to an in-memory queue.
	Tracker delivery.Tracker
	// Index records the location of every mounted element that asks for
	// uniqueness validation. Defaults to an in-memory index.
	Index index.UniquenessIndex
	// ErrorHandler receives every reported error. When nil, errors are
	// logged.
	ErrorHandler errors.HandlerFunc
	// Collector, when set, also records every reported error.
	Collector *errors.ErrorCollector
	Logger    logging.Logger
	// Name identifies the controller in log output.
	Name string
	// Prefix is prepended to every location stack.
	Prefix   location.Stack
	Enricher locationstack.Enricher
	// FollowUp runs after every tracked press.
	FollowUp func(ev *dom.Event)
	// Wait bounds blocking presses that leave their own bounds unset.
	Wait delivery.WaitOptions
	// Flush applies to blocking presses without a flush policy.
	Flush codec.FlushPolicy
}

// Controller owns the tracking state of one root element.
type Controller struct {
	root    *dom.Element
	tracker delivery.Tracker
	index   index.UniquenessIndex
	errs    *errors.Channel
	logger  logging.Logger
	builder *locationstack.Builder
	opts    Options

	ctx         context.Context
	observer    *dom.MutationObserver
	started     bool
	appLoaded   bool
	previousURL string

	elements map[*dom.Element]*tracking
}

// tracking is what the controller holds for one tracked element. It is
// dropped when the element leaves the tree.
type tracking struct {
	stack   location.Stack
	globals []events.GlobalContext
	visible bool

	clicks  *interceptor.Interceptor
	blur    dom.ListenerHandle
	hasBlur bool
}

// New creates a stopped controller for root.
func New(root *dom.Element, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	logger := opts.Logger.WithComponent("autotrack")
	if opts.Name != "" {
		logger = logger.With("tracker", opts.Name)
	}
	if opts.Tracker == nil {
		opts.Tracker = delivery.NewQueue(opts.Logger)
	}
	if opts.Index == nil {
		opts.Index = index.New()
	}

	errs := errors.NewChannel(opts.ErrorHandler, logger)
	if opts.Collector != nil {
		errs = errs.WithCollector(opts.Collector)
	}

	return &Controller{
		root:    root,
		tracker: opts.Tracker,
		index:   opts.Index,
		errs:    errs,
		logger:  logger,
		builder: &locationstack.Builder{
			Prefix:   opts.Prefix,
			Enricher: opts.Enricher,
			Errors:   errs,
		},
		opts:     opts,
		ctx:      context.Background(),
		elements: make(map[*dom.Element]*tracking),
	}
}

// Start scans the existing tree, then observes it for insertions, removals
// and identifier or visibility changes. Starting a started controller does
// nothing. A missing mutation observer is reported and returned.
func (c *Controller) Start(ctx context.Context) (err error) {
	if c.started {
		return nil
	}
	defer c.errs.Recover(ctx, "autotrack")

	if c.observer == nil {
		obs, obsErr := c.root.Document().NewMutationObserver(c.onMutations)
		if obsErr != nil {
			err = errors.NewRuntimeUnavailableError("MutationObserver").WithComponent("autotrack")
			c.errs.Report(ctx, err)
			return err
		}
		c.observer = obs
	}

	c.ctx = ctx
	c.previousURL = c.root.Document().URL()

	tracked := c.TrackNewElements(ctx, c.root)
	c.observer.Observe(c.root, dom.MutationObserverInit{
		ChildList:       true,
		Subtree:         true,
		Attributes:      true,
		AttributeFilter: observedAttributes,
	})
	c.started = true

	if !c.appLoaded {
		c.appLoaded = true
		c.emit(ctx, events.ApplicationLoaded(c.builder.LocateWithPrefix(ctx, nil, c.opts.Prefix)))
	}

	c.logger.Info(ctx, "auto tracking started", "tracked", len(tracked))
	return nil
}

// Stop disconnects observation. Stopping a stopped controller does nothing.
func (c *Controller) Stop() {
	if !c.started {
		return
	}
	c.observer.Disconnect()
	c.started = false
	c.logger.Info(c.ctx, "auto tracking stopped")
}

// IsStarted reports whether the controller is observing its root.
func (c *Controller) IsStarted() bool {
	return c.started
}

// Errors returns the channel the controller reports through.
func (c *Controller) Errors() *errors.Channel {
	return c.errs
}

// LocationStack returns the location stack of el.
func (c *Controller) LocationStack(ctx context.Context, el *dom.Element) location.Stack {
	return c.builder.Build(ctx, el)
}

func (c *Controller) onMutations(records []dom.MutationRecord, _ *dom.MutationObserver) {
	c.ProcessBatch(c.ctx, records)
}

// ProcessBatch handles mutation records in delivery order. Within a record,
// insertions are handled before removals and removals before attribute
// changes. A panic while handling one record is reported and the rest of
// the batch still runs.
func (c *Controller) ProcessBatch(ctx context.Context, records []dom.MutationRecord) {
	if u := c.root.Document().URL(); u != c.previousURL {
		c.logger.Debug(ctx, "location changed", "from", c.previousURL, "to", u)
		c.previousURL = u
	}

	for _, rec := range records {
		c.processRecord(ctx, rec)
	}
}

func (c *Controller) processRecord(ctx context.Context, rec dom.MutationRecord) {
	defer c.errs.Recover(ctx, "autotrack")

	for _, added := range rec.AddedNodes {
		c.TrackNewElements(ctx, added)
	}
	for _, removed := range rec.RemovedNodes {
		c.untrackSubtree(ctx, removed)
	}
	if rec.Type == dom.MutationAttributes {
		c.attributeChanged(ctx, rec)
	}
}

// TrackNewElements tracks el and every tagged element below it that is not
// tracked yet, expanding children queries on the way, and returns the
// elements it newly tracked.
func (c *Controller) TrackNewElements(ctx context.Context, el *dom.Element) []*dom.Element {
	var out []*dom.Element

	candidates := append([]*dom.Element{el}, el.Descendants()...)
	for _, cand := range candidates {
		if codec.IsTracked(cand) {
			continue
		}
		tagged := codec.IsTagged(cand)
		if !tagged && !codec.HasChildQueries(cand) {
			continue
		}

		batch := children.Resolve(ctx, cand, c.errs)
		if tagged {
			batch = append([]*dom.Element{cand}, batch...)
		}
		for _, t := range batch {
			if codec.IsTracked(t) {
				continue
			}
			if c.track(ctx, t) {
				out = append(out, t)
			}
		}
	}
	return out
}

func (c *Controller) track(ctx context.Context, el *dom.Element) bool {
	decoded, err := codec.DecodeElement(el)
	if err != nil {
		c.report(ctx, err, el)
		return false
	}
	if decoded.ElementID == "" {
		decoded.ElementID = uuid.NewString()
		el.SetAttr(codec.AttrElementID, decoded.ElementID)
	}
	el.SetAttr(codec.AttrTracked, "true")

	stack, globals := c.builder.Locate(ctx, el)
	st := &tracking{stack: stack, globals: globals}
	c.elements[el] = st

	if decoded.Validate.LocationUniqueness {
		if err := c.index.Add(decoded.ElementID, stack, stack.Parent()); err != nil {
			c.report(ctx, err, el)
		}
	}

	if vis := decoded.TrackVisibility; vis != nil {
		st.visible = vis.Mode == codec.VisibilityAuto || vis.IsVisible
		if st.visible {
			c.emit(ctx, events.Visible(stack, globals))
		}
	}

	if decoded.TrackClicks != nil {
		c.attachClicks(el, st, decoded.TrackClicks)
	}
	if decoded.TrackBlurs != nil {
		c.attachBlurs(el, st, decoded.TrackBlurs)
	}

	c.logger.Debug(ctx, "element tracked",
		"element_id", decoded.ElementID,
		"location", stack.String())
	return true
}

func (c *Controller) attachClicks(el *dom.Element, st *tracking, opts *codec.ClickTracking) {
	st.clicks = interceptor.Attach(interceptor.Config{
		Element:  el,
		Options:  opts,
		Locate:   c.builder.Locate,
		Tracker:  c.tracker,
		FollowUp: c.opts.FollowUp,
		Errors:   c.errs,
		Logger:   c.opts.Logger,
		Context:  c.ctx,
		Wait:     c.opts.Wait,
		Flush:    c.opts.Flush,
	})
}

func (c *Controller) attachBlurs(el *dom.Element, st *tracking, opts *codec.BlurTracking) {
	trackValue := opts.TrackValue
	st.hasBlur = true
	st.blur = el.AddEventListener(dom.EventBlur, func(*dom.Event) {
		ctx := c.ctx
		defer c.errs.Recover(ctx, "autotrack")

		ev := events.InputChange(c.builder.Locate(ctx, el))
		if trackValue {
			ev = ev.WithAttribute("value", el.GetAttr("value"))
		}
		c.emit(ctx, ev)
	})
}

func (c *Controller) untrackSubtree(ctx context.Context, el *dom.Element) {
	for _, t := range append([]*dom.Element{el}, el.Descendants()...) {
		if codec.IsTracked(t) {
			c.untrack(ctx, t)
		}
	}
}

// untrack releases el: its location is deregistered, its listeners are
// detached and its tracked mark is cleared, so re-inserting the same node
// tracks it afresh.
func (c *Controller) untrack(ctx context.Context, el *dom.Element) {
	st := c.elements[el]
	delete(c.elements, el)

	vis, err := codec.DecodeVisibilityTracking(el.GetAttr(codec.AttrTrackVisibility))
	if err != nil {
		c.report(ctx, err, el)
	} else if vis != nil && vis.Mode == codec.VisibilityAuto {
		// A removed element can no longer see its former ancestors.
		if st != nil {
			c.emit(ctx, events.Hidden(st.stack, st.globals))
		} else {
			c.emit(ctx, events.Hidden(c.builder.Locate(ctx, el)))
		}
	}

	if st != nil {
		if st.clicks != nil {
			st.clicks.Detach()
		}
		if st.hasBlur {
			el.RemoveEventListener(st.blur)
		}
	}
	el.RemoveAttr(codec.AttrTracked)

	c.index.Remove(el.GetAttr(codec.AttrElementID))
	c.logger.Debug(ctx, "element removed", "element_id", el.GetAttr(codec.AttrElementID))
}

func (c *Controller) attributeChanged(ctx context.Context, rec dom.MutationRecord) {
	el := rec.Target
	switch rec.AttributeName {
	case codec.AttrElementID:
		if rec.HadOldValue && rec.OldValue != "" && rec.OldValue != el.GetAttr(codec.AttrElementID) {
			c.index.Remove(rec.OldValue)
			c.logger.Debug(ctx, "element id changed",
				"from", rec.OldValue,
				"to", el.GetAttr(codec.AttrElementID))
		}
	case codec.AttrTrackVisibility:
		if !codec.IsTracked(el) {
			return
		}
		c.visibilityChanged(ctx, el)
	}
}

// visibilityChanged runs both the shown and the hidden check against the
// new value. Each emits only on a change of the last emitted state, so
// repeated identical values emit nothing.
func (c *Controller) visibilityChanged(ctx context.Context, el *dom.Element) {
	vis, err := codec.DecodeVisibilityTracking(el.GetAttr(codec.AttrTrackVisibility))
	if err != nil {
		c.report(ctx, err, el)
		return
	}
	if vis == nil {
		return
	}

	st := c.elements[el]
	if st == nil {
		return
	}
	becomesVisible := vis.Mode == codec.VisibilityAuto || (vis.Mode == codec.VisibilityManual && vis.IsVisible)
	becomesHidden := vis.Mode == codec.VisibilityManual && !vis.IsVisible

	if becomesVisible && !st.visible {
		st.visible = true
		c.emit(ctx, events.Visible(c.builder.Locate(ctx, el)))
	}
	if becomesHidden && st.visible {
		st.visible = false
		c.emit(ctx, events.Hidden(c.builder.Locate(ctx, el)))
	}
}

func (c *Controller) emit(ctx context.Context, ev events.Event) {
	if err := c.tracker.TrackEvent(ctx, ev); err != nil {
		c.errs.Report(ctx, errors.NewDeliveryError(errors.ErrCodeTrackFailed,
			fmt.Sprintf("tracking %s", ev.Type), err).WithComponent("autotrack"))
	}
}

func (c *Controller) report(ctx context.Context, err error, el *dom.Element) {
	var te *errors.TrackerError
	if errors.AsTrackerError(err, &te) {
		if te.Component == "" {
			te.WithComponent("autotrack")
		}
		if te.ElementID == "" {
			te.WithElement(el.GetAttr(codec.AttrElementID))
		}
	}
	c.errs.Report(ctx, err)
}
