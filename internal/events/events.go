// Package events defines the tracking events emitted by the engine.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/autotrack/internal/location"
)

// Type identifies an event.
type Type string

const (
	TypePress             Type = "PressEvent"
	TypeInputChange       Type = "InputChangeEvent"
	TypeVisible           Type = "VisibleEvent"
	TypeHidden            Type = "HiddenEvent"
	TypeApplicationLoaded Type = "ApplicationLoadedEvent"
)

// GlobalContext is context that applies to a whole event rather than a
// position in the location stack, such as the application or the path.
type GlobalContext struct {
	Kind  string `json:"_type" yaml:"_type"`
	ID    string `json:"id" yaml:"id"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Event is one tracked occurrence.
type Event struct {
	ID             string          `json:"id" yaml:"id"`
	Type           Type            `json:"_type" yaml:"_type"`
	Time           time.Time       `json:"time" yaml:"time"`
	LocationStack  location.Stack  `json:"location_stack" yaml:"location_stack"`
	GlobalContexts []GlobalContext `json:"global_contexts" yaml:"global_contexts"`
	Attributes     map[string]any  `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// New creates an event with a fresh id and timestamp.
func New(typ Type, stack location.Stack, globals []GlobalContext) Event {
	if globals == nil {
		globals = []GlobalContext{}
	}
	return Event{
		ID:             uuid.NewString(),
		Type:           typ,
		Time:           time.Now().UTC(),
		LocationStack:  stack.Clone(),
		GlobalContexts: append([]GlobalContext(nil), globals...),
	}
}

// WithAttribute returns a copy of e with an extra attribute.
func (e Event) WithAttribute(key string, value any) Event {
	attrs := make(map[string]any, len(e.Attributes)+1)
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	attrs[key] = value
	e.Attributes = attrs
	return e
}

// Press creates a press event.
func Press(stack location.Stack, globals []GlobalContext) Event {
	return New(TypePress, stack, globals)
}

// InputChange creates an input change event.
func InputChange(stack location.Stack, globals []GlobalContext) Event {
	return New(TypeInputChange, stack, globals)
}

// Visible creates a visibility event for an element that became shown.
func Visible(stack location.Stack, globals []GlobalContext) Event {
	return New(TypeVisible, stack, globals)
}

// Hidden creates a visibility event for an element that became hidden.
func Hidden(stack location.Stack, globals []GlobalContext) Event {
	return New(TypeHidden, stack, globals)
}

// ApplicationLoaded creates the application startup event.
func ApplicationLoaded(stack location.Stack, globals []GlobalContext) Event {
	return New(TypeApplicationLoaded, stack, globals)
}
