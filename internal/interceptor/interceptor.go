// Package interceptor tracks presses on tagged elements and, in blocking
// mode, holds the native default action back until the press event has
// been delivered.
package interceptor

import (
	"context"
	"fmt"
	"time"

	"github.com/conneroisu/autotrack/internal/codec"
	"github.com/conneroisu/autotrack/internal/delivery"
	"github.com/conneroisu/autotrack/internal/dom"
	"github.com/conneroisu/autotrack/internal/errors"
	"github.com/conneroisu/autotrack/internal/events"
	"github.com/conneroisu/autotrack/internal/location"
	"github.com/conneroisu/autotrack/internal/logging"
)

// handledKey is the event detail key carrying the re-dispatch token.
const handledKey = "autotrack.handled"

// handledToken marks a clone this interceptor re-dispatched itself. It is
// compared by identity so only the issuing interceptor honours it.
type handledToken struct{ owner *Interceptor }

// Defaults used when a blocking press leaves a bound unset.
const (
	DefaultInterval = 100 * time.Millisecond
	DefaultTimeout  = time.Second
)

// Config wires an interceptor to its element and collaborators.
type Config struct {
	Element *dom.Element
	Options *codec.ClickTracking
	// Locate resolves the location stack and global contexts of the press.
	Locate  func(ctx context.Context, el *dom.Element) (location.Stack, []events.GlobalContext)
	Tracker delivery.Tracker
	// FollowUp runs after the press has been tracked.
	FollowUp func(ev *dom.Event)
	Errors   *errors.Channel
	Logger   logging.Logger
	// Context bounds the blocking wait. Defaults to context.Background.
	Context context.Context
	// Wait holds the bounds used when a blocking press leaves them unset.
	// Zero fields fall back to DefaultInterval and DefaultTimeout.
	Wait delivery.WaitOptions
	// Flush applies when a blocking press leaves its policy unset.
	Flush codec.FlushPolicy
}

// Interceptor is the click listener of one tagged element.
type Interceptor struct {
	cfg      Config
	handle   dom.ListenerHandle
	attached bool
	token    *handledToken
	presses  int
}

// Attach registers a click interceptor on cfg.Element.
func Attach(cfg Config) *Interceptor {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	cfg.Logger = cfg.Logger.WithComponent("interceptor")
	i := &Interceptor{cfg: cfg}
	i.token = &handledToken{owner: i}
	i.attach()
	return i
}

func (i *Interceptor) attach() {
	if i.attached {
		return
	}
	i.handle = i.cfg.Element.AddEventListener(dom.EventClick, i.handleClick)
	i.attached = true
}

// Detach removes the listener. It is safe to call more than once.
func (i *Interceptor) Detach() {
	if !i.attached {
		return
	}
	i.cfg.Element.RemoveEventListener(i.handle)
	i.attached = false
}

// Attached reports whether the listener is registered.
func (i *Interceptor) Attached() bool {
	return i.attached
}

// Presses returns how many presses this interceptor has tracked.
func (i *Interceptor) Presses() int {
	return i.presses
}

func (i *Interceptor) handleClick(ev *dom.Event) {
	if tok, ok := ev.Detail[handledKey].(*handledToken); ok && tok == i.token {
		return
	}
	if !i.owns(ev) {
		return
	}

	ctx := i.cfg.Context
	defer i.cfg.Errors.Recover(ctx, "interceptor")

	if !i.cfg.Options.Blocking() {
		i.track(ctx)
		i.followUp(ev)
		return
	}
	i.block(ctx, ev)
}

// owns reports whether the press belongs to this element rather than a
// click-tracked element nested inside it.
func (i *Interceptor) owns(ev *dom.Event) bool {
	for el := ev.Target; el != nil && el != i.cfg.Element; el = el.Parent() {
		if !codec.IsTracked(el) {
			continue
		}
		clicks, err := codec.DecodeClickTracking(el.GetAttr(codec.AttrTrackClicks))
		if err == nil && clicks != nil {
			return false
		}
	}
	return true
}

func (i *Interceptor) block(ctx context.Context, ev *dom.Event) {
	ev.PreventDefault()
	ev.StopPropagation()

	i.track(ctx)

	wait := i.cfg.Options.WaitUntilTracked
	opts := delivery.WaitOptions{
		Interval: millis(wait.IntervalMs, orDefault(i.cfg.Wait.Interval, DefaultInterval)),
		Timeout:  millis(wait.TimeoutMs, orDefault(i.cfg.Wait.Timeout, DefaultTimeout)),
	}
	drained, err := i.cfg.Tracker.WaitForQueue(ctx, opts)
	if err != nil {
		i.cfg.Logger.Warn(ctx, err, "wait for queue interrupted")
	}

	policy := wait.FlushQueue
	if policy == "" {
		policy = i.cfg.Flush
	}
	if shouldFlush(policy, drained) {
		if err := i.cfg.Tracker.FlushQueue(ctx); err != nil {
			i.cfg.Errors.Report(ctx, errors.NewDeliveryError(errors.ErrCodeFlushFailed,
				"flushing queue after blocking press", err).WithComponent("interceptor"))
		}
	}

	i.followUp(ev)

	clone := ev.Clone()
	clone.Detail[handledKey] = i.token
	target := ev.Target
	if target == nil {
		target = i.cfg.Element
	}

	// The listener sits out the re-dispatch. A Detach during it is final.
	i.cfg.Element.RemoveEventListener(i.handle)
	target.Dispatch(clone)
	if i.attached {
		i.handle = i.cfg.Element.AddEventListener(dom.EventClick, i.handleClick)
	}
}

func (i *Interceptor) track(ctx context.Context) {
	stack, globals := i.cfg.Locate(ctx, i.cfg.Element)
	press := events.Press(stack, globals)
	if err := i.cfg.Tracker.TrackEvent(ctx, press); err != nil {
		i.cfg.Errors.Report(ctx, errors.NewDeliveryError(errors.ErrCodeTrackFailed,
			fmt.Sprintf("tracking press on %s", stack.String()), err).
			WithComponent("interceptor").
			WithElement(i.cfg.Element.GetAttr(codec.AttrElementID)))
		return
	}
	i.presses++
	i.cfg.Logger.Debug(ctx, "press tracked", "location", stack.String())
}

func (i *Interceptor) followUp(ev *dom.Event) {
	if i.cfg.FollowUp != nil {
		i.cfg.FollowUp(ev)
	}
}

// shouldFlush applies the flush policy; an unset policy flushes only when
// the wait timed out.
func shouldFlush(policy codec.FlushPolicy, drained bool) bool {
	switch policy {
	case codec.FlushAlways:
		return true
	case codec.FlushNever:
		return false
	default:
		return !drained
	}
}

func millis(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
