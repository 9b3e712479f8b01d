// Package tagging produces the tagging attributes that mark an element for
// automatic tracking. The helpers return templ.Attributes so they can be
// spread directly onto elements in templ components, and Apply writes the
// same attributes onto a live DOM element.
package tagging

import (
	"github.com/a-h/templ"
	"github.com/google/uuid"

	"github.com/conneroisu/autotrack/internal/codec"
	"github.com/conneroisu/autotrack/internal/location"
)

// Toggle turns a tracking feature on or off regardless of the context's
// kind. The zero value keeps the kind default.
type Toggle int

const (
	KindDefault Toggle = iota
	On
	Off
)

// Options controls what a tagged element tracks.
//
// A feature is tracked when its toggle is On, when its options are set, or
// when the kind tracks it by default; Off always wins.
type Options struct {
	// ElementID overrides the generated per-element identifier.
	ElementID string
	// Parent is the element id of a logical parent to use instead of the
	// structural one.
	Parent string

	Clicks          Toggle
	TrackClicks     *codec.ClickTracking
	Blurs           Toggle
	TrackBlurs      *codec.BlurTracking
	Visibility      Toggle
	TrackVisibility *codec.VisibilityTracking

	// Validate defaults to codec.DefaultValidation when nil.
	Validate *codec.Validation
	Children []codec.ChildQuery
}

// enabled returns the options to encode for one feature, or nil when the
// feature is off.
func enabled[T any](opts *T, toggle Toggle, byKind bool, fallback T) *T {
	switch {
	case toggle == Off:
		return nil
	case opts != nil:
		return opts
	case toggle == On || byKind:
		return &fallback
	}
	return nil
}

// TagLocation returns the attributes tagging an element with ctx. Invalid
// contexts or options yield an empty attribute set and the error.
func TagLocation(ctx location.Context, opts Options) (templ.Attributes, error) {
	attrs, err := Attributes(ctx, opts)
	if err != nil {
		return templ.Attributes{}, err
	}
	out := make(templ.Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out, nil
}

// Attributes is TagLocation as a plain tagging payload.
func Attributes(ctx location.Context, opts Options) (codec.TagAttributes, error) {
	if opts.ElementID == "" {
		opts.ElementID = uuid.NewString()
	}
	return attributes(ctx, opts)
}

// attributes builds the payload; an empty opts.ElementID leaves the id out.
func attributes(ctx location.Context, opts Options) (codec.TagAttributes, error) {
	encodedCtx, err := codec.EncodeContext(ctx)
	if err != nil {
		return nil, err
	}

	attrs := codec.TagAttributes{codec.AttrContext: encodedCtx}
	if opts.ElementID != "" {
		attrs[codec.AttrElementID] = opts.ElementID
	}
	if opts.Parent != "" {
		attrs[codec.AttrParentElementID] = opts.Parent
	}

	if clicks := enabled(opts.TrackClicks, opts.Clicks, ctx.Kind.IsPressable(), codec.ClickTracking{}); clicks != nil {
		if attrs[codec.AttrTrackClicks], err = codec.EncodeClickTracking(clicks); err != nil {
			return nil, err
		}
	}

	if blurs := enabled(opts.TrackBlurs, opts.Blurs, ctx.Kind.IsInput(), codec.BlurTracking{}); blurs != nil {
		if attrs[codec.AttrTrackBlurs], err = codec.EncodeBlurTracking(blurs); err != nil {
			return nil, err
		}
	}

	visibility := enabled(opts.TrackVisibility, opts.Visibility, ctx.Kind.IsShowable(),
		codec.VisibilityTracking{Mode: codec.VisibilityAuto})
	if visibility != nil {
		if attrs[codec.AttrTrackVisibility], err = codec.EncodeVisibilityTracking(visibility); err != nil {
			return nil, err
		}
	}

	validation := codec.DefaultValidation
	if opts.Validate != nil {
		validation = *opts.Validate
	}
	if attrs[codec.AttrValidate], err = codec.EncodeValidation(validation); err != nil {
		return nil, err
	}

	if len(opts.Children) > 0 {
		if attrs[codec.AttrTagChildren], err = codec.EncodeChildQueries(opts.Children); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}

// TagContent tags a generic content section.
func TagContent(id string, opts Options) (templ.Attributes, error) {
	return TagLocation(location.NewContext(location.KindContent, id), opts)
}

// TagRootLocation tags the root of a page or application area.
func TagRootLocation(id string, opts Options) (templ.Attributes, error) {
	return TagLocation(location.NewContext(location.KindRootLocation, id), opts)
}

// TagPressable tags a button-like element; clicks are tracked by default.
func TagPressable(id string, opts Options) (templ.Attributes, error) {
	return TagLocation(location.NewContext(location.KindPressable, id), opts)
}

// TagLink tags an anchor; clicks are tracked by default.
func TagLink(id, href string, opts Options) (templ.Attributes, error) {
	return TagLocation(location.NewLink(id, href), opts)
}

// TagInput tags an input; blurs are tracked by default.
func TagInput(id string, opts Options) (templ.Attributes, error) {
	return TagLocation(location.NewContext(location.KindInput, id), opts)
}

// TagOverlay tags a modal or popover; visibility is tracked automatically.
func TagOverlay(id string, opts Options) (templ.Attributes, error) {
	return TagLocation(location.NewContext(location.KindOverlay, id), opts)
}

// TagExpandable tags a collapsible section; visibility is tracked
// automatically.
func TagExpandable(id string, opts Options) (templ.Attributes, error) {
	return TagLocation(location.NewContext(location.KindExpandable, id), opts)
}

// TagNavigation tags a navigation area.
func TagNavigation(id string, opts Options) (templ.Attributes, error) {
	return TagLocation(location.NewContext(location.KindNavigation, id), opts)
}

// TagMediaPlayer tags a media player.
func TagMediaPlayer(id string, opts Options) (templ.Attributes, error) {
	return TagLocation(location.NewContext(location.KindMediaPlayer, id), opts)
}

// TagChildren returns the attribute declaring children-tagging queries on an
// element that is not itself tagged.
func TagChildren(queries ...codec.ChildQuery) (templ.Attributes, error) {
	encoded, err := codec.EncodeChildQueries(queries)
	if err != nil {
		return templ.Attributes{}, err
	}
	return templ.Attributes{codec.AttrTagChildren: encoded}, nil
}

// TagChild builds a children query tagging every match of selector with ctx.
// Unless opts names an element id, each match gets its own id at resolution
// time.
func TagChild(selector string, ctx location.Context, opts Options) (codec.ChildQuery, error) {
	attrs, err := attributes(ctx, opts)
	if err != nil {
		return codec.ChildQuery{}, err
	}
	return codec.NewChildQuery(selector, attrs)
}
