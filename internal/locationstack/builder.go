// Package locationstack composes the root-first location stack of an
// element from its tagged ancestors.
package locationstack

import (
	"context"
	"fmt"

	"github.com/conneroisu/autotrack/internal/codec"
	"github.com/conneroisu/autotrack/internal/dom"
	"github.com/conneroisu/autotrack/internal/errors"
	"github.com/conneroisu/autotrack/internal/events"
	"github.com/conneroisu/autotrack/internal/location"
	"github.com/conneroisu/autotrack/internal/walker"
)

// Enricher is the plugin hook a freshly built stack passes through.
type Enricher interface {
	Enrich(stack location.Stack, globals []events.GlobalContext) (location.Stack, []events.GlobalContext)
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(location.Stack, []events.GlobalContext) (location.Stack, []events.GlobalContext)

// Enrich calls f.
func (f EnricherFunc) Enrich(stack location.Stack, globals []events.GlobalContext) (location.Stack, []events.GlobalContext) {
	return f(stack, globals)
}

// Builder builds location stacks.
type Builder struct {
	// Prefix is prepended to every stack, e.g. the contexts of an embedding
	// application.
	Prefix location.Stack
	// Enricher runs on every built stack when set.
	Enricher Enricher
	Errors   *errors.Channel
}

// Build returns the location stack of el. It never fails: any error is
// reported and the stack built so far is returned.
func (b *Builder) Build(ctx context.Context, el *dom.Element) location.Stack {
	stack, _ := b.LocateWithPrefix(ctx, el, b.Prefix)
	return stack
}

// BuildWithPrefix is Build with an explicit prefix instead of b.Prefix.
func (b *Builder) BuildWithPrefix(ctx context.Context, el *dom.Element, prefix location.Stack) location.Stack {
	stack, _ := b.LocateWithPrefix(ctx, el, prefix)
	return stack
}

// Locate is Build that also returns the global contexts the enricher
// attached. The globals are never nil.
func (b *Builder) Locate(ctx context.Context, el *dom.Element) (location.Stack, []events.GlobalContext) {
	return b.LocateWithPrefix(ctx, el, b.Prefix)
}

// LocateWithPrefix is Locate with an explicit prefix instead of b.Prefix.
func (b *Builder) LocateWithPrefix(ctx context.Context, el *dom.Element, prefix location.Stack) (stack location.Stack, globals []events.GlobalContext) {
	stack = prefix.Clone()
	globals = []events.GlobalContext{}

	defer func() {
		if r := recover(); r != nil {
			b.Errors.Report(ctx, errors.NewInternalError(errors.ErrCodeRecoveredPanic,
				fmt.Sprintf("building location stack: %v", r), nil).WithComponent("locationstack"))
		}
	}()

	for _, tagged := range walker.Reverse(walker.TaggedAncestors(ctx, el, b.Errors)) {
		locCtx, err := codec.DecodeContext(tagged.GetAttr(codec.AttrContext))
		if err != nil {
			b.report(ctx, err, tagged)
			break
		}
		stack = stack.Append(locCtx)
	}

	if b.Enricher != nil {
		enriched, extra := b.Enricher.Enrich(stack, []events.GlobalContext{})
		if enriched != nil {
			stack = enriched
		}
		if extra != nil {
			globals = extra
		}
	}
	return stack, globals
}

func (b *Builder) report(ctx context.Context, err error, el *dom.Element) {
	var te *errors.TrackerError
	if errors.AsTrackerError(err, &te) {
		te.WithComponent("locationstack").WithElement(el.GetAttr(codec.AttrElementID))
	}
	b.Errors.Report(ctx, err)
}
