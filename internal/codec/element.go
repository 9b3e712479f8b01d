package codec

import (
	"github.com/conneroisu/autotrack/internal/errors"
	"github.com/conneroisu/autotrack/internal/location"
)

// TaggedElement is the decoded view of an element's tagging attributes.
type TaggedElement struct {
	ElementID       string
	ParentElementID string
	Context         location.Context
	TrackClicks     *ClickTracking
	TrackBlurs      *BlurTracking
	TrackVisibility *VisibilityTracking
	Validate        Validation
	Children        []ChildQuery
	Tracked         bool
}

// IsTagged reports whether the element carries a location context.
func IsTagged(el Attributer) bool {
	_, ok := el.Attr(AttrContext)
	return ok
}

// HasChildQueries reports whether the element declares children queries.
func HasChildQueries(el Attributer) bool {
	_, ok := el.Attr(AttrTagChildren)
	return ok
}

// IsTracked reports whether the element has been marked as tracked.
func IsTracked(el Attributer) bool {
	v, ok := el.Attr(AttrTracked)
	return ok && v == "true"
}

// DecodeElement decodes every tagging attribute of el. The location context
// is required; any option that fails to decode fails the element.
func DecodeElement(el Attributer) (*TaggedElement, error) {
	get := func(name string) string {
		v, _ := el.Attr(name)
		return v
	}

	rawCtx, ok := el.Attr(AttrContext)
	if !ok {
		return nil, errors.NewDecodeError(AttrContext, errors.ErrCodeMissingAttribute,
			"element has no location context", nil)
	}
	ctx, err := DecodeContext(rawCtx)
	if err != nil {
		return nil, err
	}

	out := &TaggedElement{
		ElementID:       get(AttrElementID),
		ParentElementID: get(AttrParentElementID),
		Context:         ctx,
		Tracked:         IsTracked(el),
	}
	if out.TrackClicks, err = DecodeClickTracking(get(AttrTrackClicks)); err != nil {
		return nil, err
	}
	if out.TrackBlurs, err = DecodeBlurTracking(get(AttrTrackBlurs)); err != nil {
		return nil, err
	}
	if out.TrackVisibility, err = DecodeVisibilityTracking(get(AttrTrackVisibility)); err != nil {
		return nil, err
	}
	if out.Validate, err = DecodeValidation(get(AttrValidate)); err != nil {
		return nil, err
	}
	if raw, ok := el.Attr(AttrTagChildren); ok {
		if out.Children, err = DecodeChildQueries(raw); err != nil {
			return nil, err
		}
	}
	return out, nil
}
