// Package dom is a small, single-threaded, in-process DOM built on
// golang.org/x/net/html. It provides what the tracking engine needs from a
// browser host: mutable elements with attributes, CSS selector queries,
// bubbling events with cancelable default actions, and mutation
// observation delivered in batches.
//
// A Document and everything reachable from it must be used from one
// goroutine at a time. Callers that mutate a document from several
// goroutines serialise access themselves.
package dom

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrMutationObserverUnavailable is returned when the document was built
// without mutation observation support.
var ErrMutationObserverUnavailable = errors.New("dom: mutation observer unavailable")

// maxDeliveryRounds bounds how many times DeliverMutations re-runs observer
// callbacks that keep producing new records.
const maxDeliveryRounds = 64

// DefaultAction runs after an event dispatch that was not canceled.
type DefaultAction func(ev *Event)

// Option configures a Document.
type Option func(*Document)

// WithoutMutationObserver builds a document that lacks mutation observation,
// like a host environment missing the primitive.
func WithoutMutationObserver() Option {
	return func(d *Document) {
		d.noObserver = true
	}
}

// WithURL sets the initial page location.
func WithURL(u string) Option {
	return func(d *Document) {
		d.url = u
	}
}

// Document owns a node tree and the listeners and observers attached to it.
type Document struct {
	root       *html.Node
	elements   map[*html.Node]*Element
	listeners  map[*html.Node][]*listenerEntry
	observers  []*MutationObserver
	defaults   map[string]DefaultAction
	noObserver bool
	url        string
	nextID     int
}

// Parse builds a document from HTML markup.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	d := &Document{
		root:      root,
		elements:  make(map[*html.Node]*Element),
		listeners: make(map[*html.Node][]*listenerEntry),
		defaults:  make(map[string]DefaultAction),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// ParseString builds a document from an HTML string.
func ParseString(markup string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(markup), opts...)
}

// New returns an empty document.
func New(opts ...Option) *Document {
	d, _ := ParseString("<html><head></head><body></body></html>", opts...)
	return d
}

// URL returns the current page location.
func (d *Document) URL() string {
	return d.url
}

// SetURL changes the current page location.
func (d *Document) SetURL(u string) {
	d.url = u
}

// DocumentElement returns the <html> element.
func (d *Document) DocumentElement() *Element {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.wrap(c)
		}
	}
	return nil
}

// Body returns the <body> element.
func (d *Document) Body() *Element {
	doc := d.DocumentElement()
	if doc == nil {
		return nil
	}
	for _, c := range doc.Children() {
		if c.node.DataAtom == atom.Body {
			return c
		}
	}
	return nil
}

// CreateElement returns a new detached element.
func (d *Document) CreateElement(tag string) *Element {
	tag = strings.ToLower(tag)
	return d.wrap(&html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	})
}

// ParseFragment parses markup in the context of <body> and returns the
// detached top-level elements. Top-level text nodes are dropped.
func (d *Document) ParseFragment(markup string) ([]*Element, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, err
	}

	var out []*Element
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, d.wrap(n))
		}
	}
	return out, nil
}

// QuerySelectorAll evaluates a CSS selector against the whole document.
func (d *Document) QuerySelectorAll(selector string) ([]*Element, error) {
	root := d.DocumentElement()
	if root == nil {
		return nil, nil
	}
	matches, err := root.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	if ok, _ := root.Matches(selector); ok {
		matches = append([]*Element{root}, matches...)
	}
	return matches, nil
}

// FindByAttr returns the first connected element whose attribute equals value.
func (d *Document) FindByAttr(name, value string) *Element {
	var found *Element
	walkElements(d.root, func(n *html.Node) bool {
		if v, ok := attr(n, name); ok && v == value {
			found = d.wrap(n)
			return false
		}
		return true
	})
	return found
}

// SetDefaultAction registers the native behavior for an event type. It runs
// once per dispatch, after listeners, unless the event was canceled.
func (d *Document) SetDefaultAction(eventType string, action DefaultAction) {
	if action == nil {
		delete(d.defaults, eventType)
		return
	}
	d.defaults[eventType] = action
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// wrap returns the stable Element wrapper for an element node.
func (d *Document) wrap(n *html.Node) *Element {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	if el, ok := d.elements[n]; ok {
		return el
	}
	el := &Element{node: n, doc: d}
	d.elements[n] = el
	return el
}

func (d *Document) isConnected(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// walkElements visits element nodes under n in document order, stopping when
// visit returns false. It is iterative so deep trees cannot exhaust the stack.
func walkElements(n *html.Node, visit func(*html.Node) bool) {
	stack := []*html.Node{}
	for c := n.LastChild; c != nil; c = c.PrevSibling {
		stack = append(stack, c)
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.Type == html.ElementNode && !visit(cur) {
			return
		}
		for c := cur.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}
