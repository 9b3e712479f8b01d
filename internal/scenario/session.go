package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/conneroisu/autotrack/internal/autotrack"
	"github.com/conneroisu/autotrack/internal/delivery"
	"github.com/conneroisu/autotrack/internal/dom"
	"github.com/conneroisu/autotrack/internal/errors"
	"github.com/conneroisu/autotrack/internal/logging"
)

// Session keeps one document and controller alive across reloads of the
// page, so an edited page shows up as hidden and visible events instead of
// a fresh application load.
type Session struct {
	doc       *dom.Document
	ctrl      *autotrack.Controller
	queue     *delivery.Queue
	collector *errors.ErrorCollector
	logger    logging.Logger
	stop      context.CancelFunc
	done      chan struct{}
}

// Open parses markup, starts a controller on it and keeps draining events
// into the runner's sinks until Close.
func (r *Runner) Open(ctx context.Context, markup string) (*Session, error) {
	logger := r.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("session")

	doc, err := dom.ParseString(markup)
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}
	doc.SetDefaultAction(dom.EventClick, navigate(doc))

	s := &Session{
		doc:       doc,
		queue:     delivery.NewQueue(logger, r.Sinks...),
		collector: errors.NewErrorCollector(),
		logger:    logger,
		done:      make(chan struct{}),
	}

	opts := r.Options
	opts.Tracker = s.queue
	opts.Collector = s.collector
	opts.Logger = logger
	s.ctrl = autotrack.New(doc.DocumentElement(), opts)

	drainCtx, stop := context.WithCancel(context.Background())
	s.stop = stop
	go func() {
		defer close(s.done)
		s.queue.Run(drainCtx, r.Drain)
	}()

	if err := s.ctrl.Start(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Reload replaces the body of the live document with the body of markup
// and delivers the resulting mutations.
func (s *Session) Reload(ctx context.Context, markup string) error {
	next, err := dom.ParseString(markup)
	if err != nil {
		return fmt.Errorf("parsing page: %w", err)
	}
	nodes, err := s.doc.ParseFragment(bodyHTML(next))
	if err != nil {
		return err
	}
	if err := s.doc.Body().ReplaceChildren(nodes...); err != nil {
		return err
	}
	records := s.doc.DeliverMutations()
	s.logger.Info(ctx, "page reloaded", "mutations", records, "tracked", len(tracked(ctx, s.ctrl, s.doc)))
	return nil
}

// Apply runs one step against the live document.
func (s *Session) Apply(step Step) error {
	if err := apply(s.doc, step); err != nil {
		return err
	}
	s.doc.DeliverMutations()
	return nil
}

// Tracked lists the elements currently tracked.
func (s *Session) Tracked(ctx context.Context) []TrackedElement {
	return tracked(ctx, s.ctrl, s.doc)
}

// Errors returns every error reported since Open.
func (s *Session) Errors() []error {
	return s.collector.GetAllErrors()
}

// Flush drains the queue into the sinks now.
func (s *Session) Flush(ctx context.Context) error {
	return s.queue.FlushQueue(ctx)
}

// Close stops tracking and flushes what is left.
func (s *Session) Close() {
	s.ctrl.Stop()
	s.stop()
	<-s.done
}

func bodyHTML(doc *dom.Document) string {
	var b strings.Builder
	for _, child := range doc.Body().Children() {
		b.WriteString(child.OuterHTML())
	}
	return b.String()
}
