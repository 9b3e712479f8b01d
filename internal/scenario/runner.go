package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/conneroisu/autotrack/internal/autotrack"
	"github.com/conneroisu/autotrack/internal/codec"
	"github.com/conneroisu/autotrack/internal/config"
	"github.com/conneroisu/autotrack/internal/delivery"
	"github.com/conneroisu/autotrack/internal/dom"
	"github.com/conneroisu/autotrack/internal/errors"
	"github.com/conneroisu/autotrack/internal/events"
	"github.com/conneroisu/autotrack/internal/location"
	"github.com/conneroisu/autotrack/internal/logging"
)

// TrackedElement describes an element the controller tracks.
type TrackedElement struct {
	ElementID string         `json:"element_id" yaml:"element_id"`
	Tag       string         `json:"tag" yaml:"tag"`
	Stack     location.Stack `json:"location_stack" yaml:"location_stack"`
}

// Result is what a run produced.
type Result struct {
	Name     string           `json:"name" yaml:"name"`
	URL      string           `json:"url,omitempty" yaml:"url,omitempty"`
	Tracked  []TrackedElement `json:"tracked" yaml:"tracked"`
	Events   []events.Event   `json:"events" yaml:"events"`
	Errors   []string         `json:"errors,omitempty" yaml:"errors,omitempty"`
	Failures int              `json:"-" yaml:"-"`
}

// Runner replays scenarios.
type Runner struct {
	// Options seeds every controller. Tracker, Collector and Logger are
	// set by the runner.
	Options autotrack.Options
	// Sinks also receive every event.
	Sinks []delivery.Sink
	// Drain is how often the queue is flushed while steps run. Blocking
	// presses wait on it.
	Drain  time.Duration
	Logger logging.Logger
}

// NewRunner creates a runner configured from cfg.
func NewRunner(cfg *config.Config, logger logging.Logger, sinks ...delivery.Sink) (*Runner, error) {
	prefix, err := cfg.Tracker.PrefixStack()
	if err != nil {
		return nil, err
	}
	return &Runner{
		Options: autotrack.Options{
			Name:   cfg.Tracker.Name,
			Prefix: prefix,
			Wait: delivery.WaitOptions{
				Interval: cfg.Tracker.WaitInterval(),
				Timeout:  cfg.Tracker.WaitTimeout(),
			},
			Flush: codec.FlushPolicy(cfg.Tracker.FlushPolicy),
		},
		Sinks:  sinks,
		Drain:  cfg.Tracker.DrainInterval(),
		Logger: logger,
	}, nil
}

// Scan loads markup, starts a controller on it and reports what it tracks
// without running any step.
func (r *Runner) Scan(ctx context.Context, name, markup string) (*Result, error) {
	return r.Run(ctx, &Scenario{Name: name, HTML: markup})
}

// Run replays s and returns the tracked elements and emitted events.
// A step that cannot be applied fails the run.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("scenario").With("scenario", s.Name)

	markup, err := s.Markup()
	if err != nil {
		return nil, err
	}
	doc, err := dom.ParseString(markup, dom.WithURL(s.URL))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}
	doc.SetDefaultAction(dom.EventClick, navigate(doc))

	recorded := delivery.NewMemorySink()
	queue := delivery.NewQueue(logger, append([]delivery.Sink{recorded}, r.Sinks...)...)
	collector := errors.NewErrorCollector()

	opts := r.Options
	opts.Tracker = queue
	opts.Collector = collector
	opts.Logger = logger
	ctrl := autotrack.New(doc.DocumentElement(), opts)

	drainCtx, stopDrain := context.WithCancel(ctx)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		queue.Run(drainCtx, r.Drain)
	}()

	stepErr := r.steps(ctx, ctrl, doc, s, logger)
	ctrl.Stop()
	stopDrain()
	<-drained
	if stepErr != nil {
		return nil, stepErr
	}
	if err := queue.FlushQueue(ctx); err != nil {
		return nil, err
	}

	result := &Result{
		Name:    s.Name,
		URL:     doc.URL(),
		Tracked: tracked(ctx, ctrl, doc),
		Events:  recorded.Events(),
	}
	for _, err := range collector.GetAllErrors() {
		result.Errors = append(result.Errors, err.Error())
	}
	result.Failures = len(result.Errors)
	return result, nil
}

func (r *Runner) steps(ctx context.Context, ctrl *autotrack.Controller, doc *dom.Document, s *Scenario, logger logging.Logger) error {
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	for i, step := range s.Steps {
		if err := apply(doc, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Kind(), err)
		}
		doc.DeliverMutations()
		logger.Debug(ctx, "step applied", "step", i+1, "kind", step.Kind())
	}
	return nil
}

func tracked(ctx context.Context, ctrl *autotrack.Controller, doc *dom.Document) []TrackedElement {
	var out []TrackedElement
	for _, el := range doc.DocumentElement().Descendants() {
		if !codec.IsTracked(el) {
			continue
		}
		out = append(out, TrackedElement{
			ElementID: el.GetAttr(codec.AttrElementID),
			Tag:       el.TagName(),
			Stack:     ctrl.LocationStack(ctx, el),
		})
	}
	return out
}

// navigate follows links: a click that reaches the default action inside
// an element with an href changes the page location.
func navigate(doc *dom.Document) dom.DefaultAction {
	return func(ev *dom.Event) {
		for el := ev.Target; el != nil; el = el.Parent() {
			if href, ok := el.Attr("href"); ok && href != "" {
				doc.SetURL(resolve(doc.URL(), href))
				return
			}
		}
	}
}

func resolve(base, href string) string {
	if strings.Contains(href, "://") || base == "" {
		return href
	}
	if i := strings.Index(base, "://"); i >= 0 {
		if j := strings.Index(base[i+3:], "/"); j >= 0 {
			base = base[:i+3+j]
		}
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(href, "/")
}

func apply(doc *dom.Document, step Step) error {
	switch step.Kind() {
	case "click":
		el, err := one(doc, step.Click)
		if err != nil {
			return err
		}
		el.Click()
	case "blur":
		el, err := one(doc, step.Blur)
		if err != nil {
			return err
		}
		el.Blur()
	case "input":
		el, err := one(doc, step.Input.Selector)
		if err != nil {
			return err
		}
		el.SetAttr("value", step.Input.Value)
		el.Blur()
	case "remove":
		el, err := one(doc, step.Remove)
		if err != nil {
			return err
		}
		el.Remove()
	case "navigate":
		doc.SetURL(step.Navigate)
	case "set":
		el, err := one(doc, step.Set.Selector)
		if err != nil {
			return err
		}
		if step.Set.Delete {
			el.RemoveAttr(step.Set.Attribute)
		} else {
			el.SetAttr(step.Set.Attribute, step.Set.Value)
		}
	case "append", "replace":
		hs := step.Append
		if hs == nil {
			hs = step.Replace
		}
		el, err := one(doc, hs.Selector)
		if err != nil {
			return err
		}
		nodes, err := doc.ParseFragment(hs.HTML)
		if err != nil {
			return err
		}
		if step.Replace != nil {
			return el.ReplaceChildren(nodes...)
		}
		for _, n := range nodes {
			if err := el.AppendChild(n); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("empty step")
	}
	return nil
}

func one(doc *dom.Document, selector string) (*dom.Element, error) {
	matches, err := doc.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	return matches[0], nil
}
