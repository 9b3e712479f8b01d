// Package location defines location contexts and location stacks: the
// typed, identified nodes that describe where in a UI an event happened.
package location

import (
	"fmt"
	"strings"
)

// Kind is the closed set of location context types.
type Kind string

const (
	KindRootLocation Kind = "RootLocationContext"
	KindContent      Kind = "ContentContext"
	KindExpandable   Kind = "ExpandableContext"
	KindInput        Kind = "InputContext"
	KindLink         Kind = "LinkContext"
	KindMediaPlayer  Kind = "MediaPlayerContext"
	KindNavigation   Kind = "NavigationContext"
	KindOverlay      Kind = "OverlayContext"
	KindPressable    Kind = "PressableContext"
)

// Kinds lists every valid kind.
var Kinds = []Kind{
	KindRootLocation,
	KindContent,
	KindExpandable,
	KindInput,
	KindLink,
	KindMediaPlayer,
	KindNavigation,
	KindOverlay,
	KindPressable,
}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// IsPressable reports whether contexts of this kind are pressed by users.
func (k Kind) IsPressable() bool {
	return k == KindPressable || k == KindLink
}

// IsInput reports whether contexts of this kind receive user input.
func (k Kind) IsInput() bool {
	return k == KindInput
}

// IsShowable reports whether contexts of this kind appear and disappear.
func (k Kind) IsShowable() bool {
	return k == KindOverlay || k == KindExpandable
}

// Context is an immutable location context value.
type Context struct {
	Kind Kind   `json:"_type" yaml:"_type"`
	ID   string `json:"id" yaml:"id"`
	// Href is set for link contexts only.
	Href string `json:"href,omitempty" yaml:"href,omitempty"`
}

// NewContext builds a context of the given kind.
func NewContext(kind Kind, id string) Context {
	return Context{Kind: kind, ID: id}
}

// NewLink builds a link context.
func NewLink(id, href string) Context {
	return Context{Kind: KindLink, ID: id, Href: href}
}

// Validate checks the context against its kind's shape.
func (c Context) Validate() error {
	if _, ok := ParseKind(string(c.Kind)); !ok {
		return fmt.Errorf("unknown location context type %q", c.Kind)
	}
	if c.ID == "" {
		return fmt.Errorf("%s is missing an id", c.Kind)
	}
	if c.Kind == KindLink && c.Href == "" {
		return fmt.Errorf("%s %q is missing an href", c.Kind, c.ID)
	}
	if c.Kind != KindLink && c.Href != "" {
		return fmt.Errorf("%s %q does not accept an href", c.Kind, c.ID)
	}
	return nil
}

// String renders the context as Kind:id.
func (c Context) String() string {
	return strings.TrimSuffix(string(c.Kind), "Context") + ":" + c.ID
}

// Stack is a root-first sequence of location contexts.
type Stack []Context

// Append returns a new stack with ctxs appended; s is never modified.
func (s Stack) Append(ctxs ...Context) Stack {
	out := make(Stack, 0, len(s)+len(ctxs))
	out = append(out, s...)
	return append(out, ctxs...)
}

// Clone returns a copy of the stack.
func (s Stack) Clone() Stack {
	return s.Append()
}

// Equal reports whether two stacks hold the same contexts in the same order.
func (s Stack) Equal(other Stack) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Parent returns the stack without its last context.
func (s Stack) Parent() Stack {
	if len(s) == 0 {
		return nil
	}
	return s[:len(s)-1].Clone()
}

// Leaf returns the last context of the stack.
func (s Stack) Leaf() (Context, bool) {
	if len(s) == 0 {
		return Context{}, false
	}
	return s[len(s)-1], true
}

// String renders the stack as "Kind:id / Kind:id".
func (s Stack) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.String()
	}
	return strings.Join(parts, " / ")
}

// Key is a stable map key for the stack.
func (s Stack) Key() string {
	var b strings.Builder
	for _, c := range s {
		b.WriteString(string(c.Kind))
		b.WriteByte(0)
		b.WriteString(c.ID)
		b.WriteByte(0)
		b.WriteString(c.Href)
		b.WriteByte(1)
	}
	return b.String()
}

// IDs returns the ids of the contexts in order.
func (s Stack) IDs() []string {
	ids := make([]string, len(s))
	for i, c := range s {
		ids[i] = c.ID
	}
	return ids
}
