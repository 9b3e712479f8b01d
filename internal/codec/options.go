package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/conneroisu/autotrack/internal/errors"
)

// FlushPolicy decides whether a blocking press flushes the delivery queue
// after waiting for it.
type FlushPolicy string

const (
	FlushAlways    FlushPolicy = "always"
	FlushNever     FlushPolicy = "never"
	FlushOnTimeout FlushPolicy = "onTimeout"
)

// MarshalJSON encodes always/never as booleans and onTimeout as a string.
func (p FlushPolicy) MarshalJSON() ([]byte, error) {
	switch p {
	case FlushAlways:
		return []byte("true"), nil
	case FlushNever:
		return []byte("false"), nil
	case FlushOnTimeout:
		return []byte(`"onTimeout"`), nil
	default:
		return nil, fmt.Errorf("unknown flush policy %q", string(p))
	}
}

// UnmarshalJSON accepts true, false or "onTimeout".
func (p *FlushPolicy) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true":
		*p = FlushAlways
	case "false":
		*p = FlushNever
	case `"onTimeout"`:
		*p = FlushOnTimeout
	default:
		return fmt.Errorf("flushQueue must be true, false or \"onTimeout\", got %s", data)
	}
	return nil
}

// WaitUntilTracked configures a blocking press.
type WaitUntilTracked struct {
	IntervalMs int         `json:"intervalMs,omitempty" yaml:"intervalMs,omitempty"`
	TimeoutMs  int         `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
	FlushQueue FlushPolicy `json:"flushQueue,omitempty" yaml:"flushQueue,omitempty"`
}

// ClickTracking configures automatic press tracking. A nil WaitUntilTracked
// means fire-and-forget.
type ClickTracking struct {
	WaitUntilTracked *WaitUntilTracked `json:"waitUntilTracked,omitempty" yaml:"waitUntilTracked,omitempty"`
}

// Blocking reports whether presses wait for the delivery queue.
func (c *ClickTracking) Blocking() bool {
	return c != nil && c.WaitUntilTracked != nil
}

// BlurTracking configures automatic input change tracking on blur.
type BlurTracking struct {
	TrackValue bool `json:"trackValue,omitempty" yaml:"trackValue,omitempty"`
}

// VisibilityMode selects how visibility is decided.
type VisibilityMode string

const (
	VisibilityAuto   VisibilityMode = "auto"
	VisibilityManual VisibilityMode = "manual"
)

// VisibilityTracking configures shown/hidden events. IsVisible is only
// meaningful in manual mode.
type VisibilityTracking struct {
	Mode      VisibilityMode `json:"mode" yaml:"mode"`
	IsVisible bool           `json:"isVisible,omitempty" yaml:"isVisible,omitempty"`
}

// Validation configures runtime checks for a tagged element.
type Validation struct {
	LocationUniqueness bool `json:"locationUniqueness" yaml:"locationUniqueness"`
}

// DefaultValidation is what an element without a validate attribute gets.
var DefaultValidation = Validation{LocationUniqueness: true}

// EncodeClickTracking encodes click options; nil encodes as false.
func EncodeClickTracking(c *ClickTracking) (string, error) {
	if c == nil {
		return "false", nil
	}
	if c.WaitUntilTracked == nil {
		return "true", nil
	}
	if err := validateWait(c.WaitUntilTracked); err != nil {
		return "", err
	}
	return marshal(c)
}

// DecodeClickTracking decodes click options. A missing value or false is
// nil; true expands to fire-and-forget tracking.
func DecodeClickTracking(value string) (*ClickTracking, error) {
	var out *ClickTracking
	err := decodeOption(AttrTrackClicks, value, func(enabled bool) {
		if enabled {
			out = &ClickTracking{}
		}
	}, func() error {
		var raw struct {
			WaitUntilTracked json.RawMessage `json:"waitUntilTracked"`
		}
		if err := unmarshalStrict(AttrTrackClicks, value, &raw); err != nil {
			return err
		}
		c := &ClickTracking{}
		w, err := decodeWait(raw.WaitUntilTracked)
		if err != nil {
			return err
		}
		c.WaitUntilTracked = w
		out = c
		return nil
	})
	return out, err
}

// decodeWait accepts a missing value, false, true or an options object.
func decodeWait(raw json.RawMessage) (*WaitUntilTracked, error) {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "false":
		return nil, nil
	case "true":
		return &WaitUntilTracked{}, nil
	}
	var w WaitUntilTracked
	if err := unmarshalStrict(AttrTrackClicks, string(raw), &w); err != nil {
		return nil, err
	}
	if err := validateWait(&w); err != nil {
		return nil, err
	}
	return &w, nil
}

func validateWait(w *WaitUntilTracked) error {
	if w.IntervalMs < 0 || w.TimeoutMs < 0 {
		return errors.NewDecodeError(AttrTrackClicks, errors.ErrCodeInvalidOption,
			"waitUntilTracked durations must not be negative", nil)
	}
	switch w.FlushQueue {
	case "", FlushAlways, FlushNever, FlushOnTimeout:
		return nil
	default:
		return errors.NewDecodeError(AttrTrackClicks, errors.ErrCodeInvalidOption,
			fmt.Sprintf("unknown flush policy %q", w.FlushQueue), nil)
	}
}

// EncodeBlurTracking encodes blur options; nil encodes as false.
func EncodeBlurTracking(b *BlurTracking) (string, error) {
	if b == nil {
		return "false", nil
	}
	if !b.TrackValue {
		return "true", nil
	}
	return marshal(b)
}

// DecodeBlurTracking decodes blur options.
func DecodeBlurTracking(value string) (*BlurTracking, error) {
	var out *BlurTracking
	err := decodeOption(AttrTrackBlurs, value, func(enabled bool) {
		if enabled {
			out = &BlurTracking{}
		}
	}, func() error {
		var b BlurTracking
		if err := unmarshalStrict(AttrTrackBlurs, value, &b); err != nil {
			return err
		}
		out = &b
		return nil
	})
	return out, err
}

// EncodeVisibilityTracking encodes visibility options; nil encodes as false.
func EncodeVisibilityTracking(v *VisibilityTracking) (string, error) {
	if v == nil {
		return "false", nil
	}
	switch v.Mode {
	case VisibilityAuto:
		if v.IsVisible {
			return "", errors.NewDecodeError(AttrTrackVisibility, errors.ErrCodeInvalidOption,
				"isVisible is only allowed in manual mode", nil)
		}
		return marshal(struct {
			Mode VisibilityMode `json:"mode"`
		}{v.Mode})
	case VisibilityManual:
		return marshal(struct {
			Mode      VisibilityMode `json:"mode"`
			IsVisible bool           `json:"isVisible"`
		}{v.Mode, v.IsVisible})
	default:
		return "", errors.NewDecodeError(AttrTrackVisibility, errors.ErrCodeInvalidOption,
			fmt.Sprintf("unknown visibility mode %q", v.Mode), nil)
	}
}

// DecodeVisibilityTracking decodes visibility options; true expands to
// automatic mode.
func DecodeVisibilityTracking(value string) (*VisibilityTracking, error) {
	var out *VisibilityTracking
	err := decodeOption(AttrTrackVisibility, value, func(enabled bool) {
		if enabled {
			out = &VisibilityTracking{Mode: VisibilityAuto}
		}
	}, func() error {
		var raw struct {
			Mode      *VisibilityMode `json:"mode"`
			IsVisible *bool           `json:"isVisible"`
		}
		if err := unmarshalStrict(AttrTrackVisibility, value, &raw); err != nil {
			return err
		}
		if raw.Mode == nil {
			return errors.NewDecodeError(AttrTrackVisibility, errors.ErrCodeInvalidShape,
				"visibility options have no mode", nil)
		}
		switch *raw.Mode {
		case VisibilityAuto:
			if raw.IsVisible != nil {
				return errors.NewDecodeError(AttrTrackVisibility, errors.ErrCodeInvalidOption,
					"isVisible is only allowed in manual mode", nil)
			}
			out = &VisibilityTracking{Mode: VisibilityAuto}
		case VisibilityManual:
			if raw.IsVisible == nil {
				return errors.NewDecodeError(AttrTrackVisibility, errors.ErrCodeInvalidShape,
					"manual visibility requires isVisible", nil)
			}
			out = &VisibilityTracking{Mode: VisibilityManual, IsVisible: *raw.IsVisible}
		default:
			return errors.NewDecodeError(AttrTrackVisibility, errors.ErrCodeInvalidOption,
				fmt.Sprintf("unknown visibility mode %q", *raw.Mode), nil)
		}
		return nil
	})
	return out, err
}

// EncodeValidation encodes validation options.
func EncodeValidation(v Validation) (string, error) {
	return marshal(v)
}

// DecodeValidation decodes validation options. A missing value yields
// DefaultValidation; true is DefaultValidation and false disables every
// check.
func DecodeValidation(value string) (Validation, error) {
	out := DefaultValidation
	err := decodeOption(AttrValidate, value, func(enabled bool) {
		if !enabled {
			out = Validation{}
		}
	}, func() error {
		var raw struct {
			LocationUniqueness *bool `json:"locationUniqueness"`
		}
		if err := unmarshalStrict(AttrValidate, value, &raw); err != nil {
			return err
		}
		if raw.LocationUniqueness != nil {
			out.LocationUniqueness = *raw.LocationUniqueness
		}
		return nil
	})
	if err != nil {
		return Validation{}, err
	}
	return out, nil
}

// decodeOption dispatches on the three surface forms of an option value:
// missing, boolean shorthand, or object.
func decodeOption(attribute, value string, onBool func(bool), onObject func() error) error {
	trimmed := strings.TrimSpace(value)
	switch {
	case trimmed == "":
		return nil
	case trimmed == "true":
		onBool(true)
		return nil
	case trimmed == "false":
		onBool(false)
		return nil
	case strings.HasPrefix(trimmed, "{"):
		return onObject()
	default:
		return errors.NewDecodeError(attribute, errors.ErrCodeInvalidShape,
			"expected a boolean or an object", nil)
	}
}
