// Package walker resolves the chain of tagged ancestors of an element.
package walker

import (
	"context"
	"fmt"

	"github.com/conneroisu/autotrack/internal/codec"
	"github.com/conneroisu/autotrack/internal/dom"
	"github.com/conneroisu/autotrack/internal/errors"
)

// TaggedAncestors returns el (when tagged) and its tagged ancestors, leaf
// first. An element declaring a parent override continues the walk from
// the tagged element carrying that id instead of its structural parent.
// When an override cannot be resolved, or leads back to an element already
// on the chain, the walk stops, the failure is reported on errs and the
// partial result is returned.
func TaggedAncestors(ctx context.Context, el *dom.Element, errs *errors.Channel) []*dom.Element {
	var result []*dom.Element
	seen := make(map[*dom.Element]bool)

	for cur := el; cur != nil; {
		if !codec.IsTagged(cur) {
			cur = cur.Parent()
			continue
		}
		if seen[cur] {
			id := cur.GetAttr(codec.AttrElementID)
			err := errors.NewResolutionError(id, fmt.Sprintf("parent element chain loops back to %q", id)).
				WithComponent("walker").
				WithElement(result[len(result)-1].GetAttr(codec.AttrElementID))
			err.Code = errors.ErrCodeParentCycle
			errs.Report(ctx, err)
			return result
		}
		seen[cur] = true
		result = append(result, cur)

		parentID, ok := cur.Attr(codec.AttrParentElementID)
		if !ok || parentID == "" {
			cur = cur.Parent()
			continue
		}

		parent := cur.Document().FindByAttr(codec.AttrElementID, parentID)
		if parent == nil || !codec.IsTagged(parent) {
			errs.Report(ctx, errors.NewResolutionError(parentID,
				fmt.Sprintf("parent element %q not found or not tagged", parentID)).
				WithComponent("walker").
				WithElement(cur.GetAttr(codec.AttrElementID)))
			return result
		}
		cur = parent
	}

	return result
}

// Reverse returns the elements root first.
func Reverse(elements []*dom.Element) []*dom.Element {
	out := make([]*dom.Element, len(elements))
	for i, el := range elements {
		out[len(elements)-1-i] = el
	}
	return out
}
