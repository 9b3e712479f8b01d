package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/conneroisu/autotrack/internal/errors"
	"github.com/conneroisu/autotrack/internal/location"
)

type rawContext struct {
	Type *string `json:"_type"`
	ID   *string `json:"id"`
	Href *string `json:"href,omitempty"`
}

// EncodeContext encodes a location context. It fails when the context has
// no valid type or no identifier.
func EncodeContext(ctx location.Context) (string, error) {
	if err := ctx.Validate(); err != nil {
		return "", errors.NewDecodeError(AttrContext, errors.ErrCodeInvalidShape,
			"cannot encode location context", err)
	}
	raw := rawContext{Type: strPtr(string(ctx.Kind)), ID: strPtr(ctx.ID)}
	if ctx.Href != "" {
		raw.Href = strPtr(ctx.Href)
	}
	return marshal(raw)
}

// DecodeContext decodes a location context value.
func DecodeContext(value string) (location.Context, error) {
	var raw rawContext
	if err := unmarshalStrict(AttrContext, value, &raw); err != nil {
		return location.Context{}, err
	}
	if raw.Type == nil {
		return location.Context{}, errors.NewDecodeError(AttrContext, errors.ErrCodeInvalidShape,
			"location context has no _type", nil)
	}
	kind, ok := location.ParseKind(*raw.Type)
	if !ok {
		return location.Context{}, errors.NewDecodeError(AttrContext, errors.ErrCodeUnknownKind,
			fmt.Sprintf("unknown location context type %q", *raw.Type), nil)
	}
	if raw.ID == nil || *raw.ID == "" {
		return location.Context{}, errors.NewDecodeError(AttrContext, errors.ErrCodeMissingID,
			"location context has no id", nil)
	}

	ctx := location.Context{Kind: kind, ID: *raw.ID}
	if raw.Href != nil {
		ctx.Href = *raw.Href
	}
	if err := ctx.Validate(); err != nil {
		return location.Context{}, errors.NewDecodeError(AttrContext, errors.ErrCodeInvalidShape,
			"invalid location context", err)
	}
	return ctx, nil
}

func marshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", errors.NewInternalError(errors.ErrCodeInternalError, "cannot encode attribute", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// unmarshalStrict decodes a JSON value, rejecting unknown fields and
// trailing data.
func unmarshalStrict(attribute, value string, v any) error {
	dec := json.NewDecoder(strings.NewReader(value))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewDecodeError(attribute, errors.ErrCodeInvalidJSON,
			"cannot parse attribute value", err)
	}
	if dec.More() {
		return errors.NewDecodeError(attribute, errors.ErrCodeInvalidJSON,
			"unexpected data after attribute value", nil)
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}
