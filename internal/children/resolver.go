// Package children expands declarative children-tagging queries into
// concretely tagged descendants.
package children

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/conneroisu/autotrack/internal/codec"
	"github.com/conneroisu/autotrack/internal/dom"
	"github.com/conneroisu/autotrack/internal/errors"
)

// Resolve evaluates the children queries declared on el against its current
// subtree, writes each query's tagging payload onto its matches and returns
// the newly tagged elements in query order.
//
// Queries without a valid payload are disabled placeholders and are skipped
// silently. A query whose selector does not compile is reported and skipped
// without affecting its siblings. An undecodable query list is reported and
// yields nothing. A payload element id is only honoured when its query
// matches a single element; otherwise it is reported and every match gets
// its own id.
func Resolve(ctx context.Context, el *dom.Element, errs *errors.Channel) []*dom.Element {
	raw, ok := el.Attr(codec.AttrTagChildren)
	if !ok {
		return nil
	}
	queries, err := codec.DecodeChildQueries(raw)
	if err != nil {
		var te *errors.TrackerError
		if errors.AsTrackerError(err, &te) {
			te.WithComponent("children").WithElement(el.GetAttr(codec.AttrElementID))
		}
		errs.Report(ctx, err)
		return nil
	}

	var tagged []*dom.Element
	for _, q := range queries {
		payload, err := q.Attributes()
		if err != nil {
			continue
		}
		matches, err := el.QuerySelectorAll(q.QueryAll)
		if err != nil {
			errs.Report(ctx, errors.NewDecodeError(codec.AttrTagChildren, errors.ErrCodeInvalidSelector,
				"children query selector does not compile", err).
				WithComponent("children").
				WithElement(el.GetAttr(codec.AttrElementID)).
				WithContext("query", q.QueryAll))
			continue
		}
		if id, ok := payload[codec.AttrElementID]; ok && len(matches) > 1 {
			errs.Report(ctx, errors.NewDecodeError(codec.AttrTagChildren, errors.ErrCodeSharedElementID,
				fmt.Sprintf("children query matches %d elements but names element id %q", len(matches), id), nil).
				WithComponent("children").
				WithElement(el.GetAttr(codec.AttrElementID)).
				WithContext("query", q.QueryAll))
			delete(payload, codec.AttrElementID)
		}
		for _, match := range matches {
			apply(match, payload)
			tagged = append(tagged, match)
		}
	}
	return tagged
}

// apply writes payload onto el. Every match gets its own element id unless
// the payload names one.
func apply(el *dom.Element, payload codec.TagAttributes) {
	for _, name := range payload.Names() {
		el.SetAttr(name, payload[name])
	}
	if _, ok := payload[codec.AttrElementID]; !ok && !el.HasAttr(codec.AttrElementID) {
		el.SetAttr(codec.AttrElementID, uuid.NewString())
	}
}
