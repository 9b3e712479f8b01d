package dom

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Element is a stable handle on an element node. Two lookups of the same
// node return the same *Element.
type Element struct {
	node *html.Node
	doc  *Document
}

// Document returns the owning document.
func (e *Element) Document() *Document {
	return e.doc
}

// TagName returns the lower-case tag name.
func (e *Element) TagName() string {
	return e.node.Data
}

// Attr returns an attribute value and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	return attr(e.node, name)
}

// GetAttr returns an attribute value, or "" when absent.
func (e *Element) GetAttr(name string) string {
	v, _ := e.Attr(name)
	return v
}

// HasAttr reports whether the attribute is present.
func (e *Element) HasAttr(name string) bool {
	_, ok := e.Attr(name)
	return ok
}

// Attrs returns a copy of the attributes as a map.
func (e *Element) Attrs() map[string]string {
	out := make(map[string]string, len(e.node.Attr))
	for _, a := range e.node.Attr {
		out[a.Key] = a.Val
	}
	return out
}

// SetAttr sets an attribute and queues an attribute mutation.
func (e *Element) SetAttr(name, value string) {
	name = strings.ToLower(name)
	old, had := e.Attr(name)
	if had {
		for i := range e.node.Attr {
			if e.node.Attr[i].Namespace == "" && e.node.Attr[i].Key == name {
				e.node.Attr[i].Val = value
				break
			}
		}
	} else {
		e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
	}
	e.doc.queueAttribute(e, name, old, had)
}

// RemoveAttr removes an attribute and queues an attribute mutation when it
// was present.
func (e *Element) RemoveAttr(name string) {
	name = strings.ToLower(name)
	old, had := e.Attr(name)
	if !had {
		return
	}
	kept := e.node.Attr[:0]
	for _, a := range e.node.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		kept = append(kept, a)
	}
	e.node.Attr = kept
	e.doc.queueAttribute(e, name, old, true)
}

// ID returns the id attribute.
func (e *Element) ID() string {
	return e.GetAttr("id")
}

// Parent returns the parent element, or nil at the top of the tree.
func (e *Element) Parent() *Element {
	return e.doc.wrap(e.node.Parent)
}

// Children returns the child elements.
func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.wrap(c))
		}
	}
	return out
}

// Descendants returns every element below e in document order.
func (e *Element) Descendants() []*Element {
	var out []*Element
	walkElements(e.node, func(n *html.Node) bool {
		out = append(out, e.doc.wrap(n))
		return true
	})
	return out
}

// Contains reports whether other is e or one of its descendants.
func (e *Element) Contains(other *Element) bool {
	if other == nil {
		return false
	}
	for n := other.node; n != nil; n = n.Parent {
		if n == e.node {
			return true
		}
	}
	return false
}

// IsConnected reports whether the element is attached to its document.
func (e *Element) IsConnected() bool {
	return e.doc.isConnected(e.node)
}

// AppendChild attaches child as the last child of e. A child that already
// has a parent is moved, which queues its removal first.
func (e *Element) AppendChild(child *Element) error {
	return e.InsertBefore(child, nil)
}

// InsertBefore attaches child before ref; a nil ref appends.
func (e *Element) InsertBefore(child, ref *Element) error {
	if child == nil {
		return fmt.Errorf("dom: nil child")
	}
	if child.doc != e.doc {
		return fmt.Errorf("dom: element belongs to another document")
	}
	if child.Contains(e) {
		return fmt.Errorf("dom: cannot insert <%s> into its own subtree", child.TagName())
	}
	if ref != nil && ref.node.Parent != e.node {
		return fmt.Errorf("dom: reference node is not a child of <%s>", e.TagName())
	}
	if child == ref {
		return nil
	}
	if child.node.Parent != nil {
		child.Remove()
	}

	var refNode *html.Node
	if ref != nil {
		refNode = ref.node
	}
	e.node.InsertBefore(child.node, refNode)
	e.doc.queueChildList(e, []*Element{child}, nil)
	return nil
}

// Remove detaches e from its parent.
func (e *Element) Remove() {
	parent := e.node.Parent
	if parent == nil {
		return
	}
	parent.RemoveChild(e.node)
	if p := e.doc.wrap(parent); p != nil {
		e.doc.queueChildList(p, nil, []*Element{e})
	}
}

// ReplaceChildren removes every child of e and appends the given elements.
func (e *Element) ReplaceChildren(children ...*Element) error {
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode {
			e.doc.wrap(c).Remove()
		} else {
			e.node.RemoveChild(c)
		}
		c = next
	}
	for _, c := range children {
		if err := e.AppendChild(c); err != nil {
			return err
		}
	}
	return nil
}

// QuerySelectorAll returns the descendants of e matching a CSS selector.
func (e *Element) QuerySelectorAll(selector string) ([]*Element, error) {
	group, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("dom: invalid selector %q: %w", selector, err)
	}
	var out []*Element
	for _, n := range cascadia.QueryAll(e.node, group) {
		out = append(out, e.doc.wrap(n))
	}
	return out, nil
}

// QuerySelector returns the first descendant matching selector, or nil.
func (e *Element) QuerySelector(selector string) (*Element, error) {
	matches, err := e.QuerySelectorAll(selector)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

// Matches reports whether e itself matches a CSS selector.
func (e *Element) Matches(selector string) (bool, error) {
	group, err := cascadia.ParseGroup(selector)
	if err != nil {
		return false, fmt.Errorf("dom: invalid selector %q: %w", selector, err)
	}
	return group.Match(e.node), nil
}

// OuterHTML renders e and its subtree.
func (e *Element) OuterHTML() string {
	var b strings.Builder
	if err := html.Render(&b, e.node); err != nil {
		return ""
	}
	return b.String()
}

// String describes the element for logs.
func (e *Element) String() string {
	if id := e.ID(); id != "" {
		return "<" + e.TagName() + "#" + id + ">"
	}
	return "<" + e.TagName() + ">"
}
