package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/conneroisu/autotrack/internal/errors"
)

// TagAttributes is a tagging payload: tagging attribute names mapped to
// their encoded values.
type TagAttributes map[string]string

// Names returns the attribute names in a stable order.
func (t TagAttributes) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every key belongs to the protocol and that the
// payload carries a decodable location context.
func (t TagAttributes) Validate() error {
	if len(t) == 0 {
		return errors.NewDecodeError(AttrTagChildren, errors.ErrCodeMissingAttribute,
			"tagging payload is empty", nil)
	}
	for name := range t {
		if !IsTagAttribute(name) || name == AttrTracked {
			return errors.NewDecodeError(AttrTagChildren, errors.ErrCodeInvalidShape,
				fmt.Sprintf("%q is not a tagging attribute", name), nil)
		}
	}
	value, ok := t[AttrContext]
	if !ok {
		return errors.NewDecodeError(AttrTagChildren, errors.ErrCodeMissingAttribute,
			"tagging payload has no context", nil)
	}
	if _, err := DecodeContext(value); err != nil {
		return err
	}
	return nil
}

// DecodeTagAttributes decodes and validates a tagging payload.
func DecodeTagAttributes(value string) (TagAttributes, error) {
	var attrs TagAttributes
	if err := unmarshalStrict(AttrTagChildren, value, &attrs); err != nil {
		return nil, err
	}
	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	return attrs, nil
}

// ChildQuery tags the descendants matching QueryAll with the TagAs payload.
// TagAs is kept raw: a query whose payload is missing or invalid is a
// disabled placeholder, not an error.
type ChildQuery struct {
	QueryAll string          `json:"queryAll"`
	TagAs    json.RawMessage `json:"tagAs,omitempty"`
}

// Attributes decodes the query's tagging payload.
func (q ChildQuery) Attributes() (TagAttributes, error) {
	if len(q.TagAs) == 0 || strings.TrimSpace(string(q.TagAs)) == "null" {
		return nil, errors.NewDecodeError(AttrTagChildren, errors.ErrCodeMissingAttribute,
			"query "+q.QueryAll+" has no tagAs payload", nil)
	}
	return DecodeTagAttributes(string(q.TagAs))
}

// NewChildQuery builds a query from a selector and a payload.
func NewChildQuery(queryAll string, tagAs TagAttributes) (ChildQuery, error) {
	q := ChildQuery{QueryAll: queryAll}
	if tagAs != nil {
		encoded, err := marshal(tagAs)
		if err != nil {
			return ChildQuery{}, err
		}
		q.TagAs = json.RawMessage(encoded)
	}
	return q, nil
}

// EncodeChildQueries encodes a children-tagging query list.
func EncodeChildQueries(queries []ChildQuery) (string, error) {
	for i, q := range queries {
		if err := validateQuery(i, q); err != nil {
			return "", err
		}
	}
	if queries == nil {
		queries = []ChildQuery{}
	}
	return marshal(queries)
}

// DecodeChildQueries decodes a children-tagging query list. Any invalid
// entry fails the whole list.
func DecodeChildQueries(value string) ([]ChildQuery, error) {
	var queries []ChildQuery
	if err := unmarshalStrict(AttrTagChildren, value, &queries); err != nil {
		return nil, err
	}
	if queries == nil {
		return nil, errors.NewDecodeError(AttrTagChildren, errors.ErrCodeInvalidShape,
			"children queries must be a list", nil)
	}
	for i, q := range queries {
		if err := validateQuery(i, q); err != nil {
			return nil, err
		}
	}
	return queries, nil
}

func validateQuery(i int, q ChildQuery) error {
	if strings.TrimSpace(q.QueryAll) == "" {
		return errors.NewDecodeError(AttrTagChildren, errors.ErrCodeInvalidShape,
			fmt.Sprintf("query %d has no queryAll selector", i), nil)
	}
	if len(q.TagAs) > 0 {
		trimmed := strings.TrimSpace(string(q.TagAs))
		if trimmed != "null" && !strings.HasPrefix(trimmed, "{") {
			return errors.NewDecodeError(AttrTagChildren, errors.ErrCodeInvalidShape,
				fmt.Sprintf("query %d tagAs must be an object", i), nil)
		}
	}
	return nil
}
