// Package delivery is the in-memory side of event delivery: a queue the
// tracking engine hands events to, drained into sinks either on demand or
// by a background loop. Transport concerns (batching over the network,
// retries) belong to the sinks.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conneroisu/autotrack/internal/events"
	"github.com/conneroisu/autotrack/internal/logging"
)

// WaitOptions bounds WaitForQueue.
type WaitOptions struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Tracker is the delivery collaborator the engine calls into.
type Tracker interface {
	TrackEvent(ctx context.Context, ev events.Event) error
	// WaitForQueue polls until the queue is drained or the timeout elapses
	// and reports whether it drained.
	WaitForQueue(ctx context.Context, opts WaitOptions) (bool, error)
	FlushQueue(ctx context.Context) error
}

// Sink receives drained events.
type Sink interface {
	Name() string
	Send(ctx context.Context, batch []events.Event) error
}

// Default wait bounds.
const (
	DefaultWaitInterval = 100 * time.Millisecond
	DefaultWaitTimeout  = time.Second
)

// Queue is an in-memory Tracker.
type Queue struct {
	mutex   sync.Mutex
	pending []events.Event
	sinks   []Sink
	sent    int
	logger  logging.Logger
}

// NewQueue creates a queue draining into sinks.
func NewQueue(logger logging.Logger, sinks ...Sink) *Queue {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Queue{
		pending: make([]events.Event, 0),
		sinks:   sinks,
		logger:  logger.WithComponent("delivery"),
	}
}

// AddSink attaches another sink.
func (q *Queue) AddSink(s Sink) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.sinks = append(q.sinks, s)
}

// TrackEvent enqueues ev.
func (q *Queue) TrackEvent(ctx context.Context, ev events.Event) error {
	q.mutex.Lock()
	q.pending = append(q.pending, ev)
	size := len(q.pending)
	q.mutex.Unlock()

	q.logger.Debug(ctx, "event queued",
		"type", ev.Type,
		"location", ev.LocationStack.String(),
		"queue_size", size)
	return nil
}

// Len returns the number of undelivered events.
func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.pending)
}

// Sent returns how many events have been handed to sinks.
func (q *Queue) Sent() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.sent
}

// WaitForQueue polls every opts.Interval until the queue is empty, the
// timeout elapses or ctx is done.
func (q *Queue) WaitForQueue(ctx context.Context, opts WaitOptions) (bool, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultWaitInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultWaitTimeout
	}
	if q.Len() == 0 {
		return true, nil
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
			return q.Len() == 0, nil
		case <-ticker.C:
			if q.Len() == 0 {
				return true, nil
			}
		}
	}
}

// FlushQueue hands every pending event to every sink. Events stay queued
// when a sink fails so a later flush can retry them.
func (q *Queue) FlushQueue(ctx context.Context) error {
	q.mutex.Lock()
	batch := q.pending
	q.pending = make([]events.Event, 0)
	sinks := append([]Sink(nil), q.sinks...)
	q.mutex.Unlock()

	if len(batch) == 0 {
		return nil
	}

	for _, s := range sinks {
		if err := s.Send(ctx, batch); err != nil {
			q.mutex.Lock()
			q.pending = append(batch, q.pending...)
			q.mutex.Unlock()
			return fmt.Errorf("sink %s: %w", s.Name(), err)
		}
	}

	q.mutex.Lock()
	q.sent += len(batch)
	q.mutex.Unlock()
	q.logger.Debug(ctx, "queue flushed", "events", len(batch), "sinks", len(sinks))
	return nil
}

// Run flushes the queue every interval until ctx is done, then flushes once
// more.
func (q *Queue) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultWaitInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := q.FlushQueue(context.Background()); err != nil {
				q.logger.Error(ctx, err, "final flush failed")
			}
			return
		case <-ticker.C:
			if err := q.FlushQueue(ctx); err != nil {
				q.logger.Warn(ctx, err, "flush failed, will retry")
			}
		}
	}
}
