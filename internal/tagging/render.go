package tagging

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/a-h/templ"
)

// Setter is anything attributes can be written to, such as a DOM element.
type Setter interface {
	SetAttr(name, value string)
}

// Apply writes attrs onto el in a stable order.
func Apply(el Setter, attrs templ.Attributes) {
	for _, name := range sortedNames(attrs) {
		el.SetAttr(name, fmt.Sprint(attrs[name]))
	}
}

// Element renders an element with the given attributes and children. Text
// is escaped; children are rendered in order.
func Element(tag string, attrs templ.Attributes, children ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<"+tag); err != nil {
			return err
		}
		for _, name := range sortedNames(attrs) {
			value := templ.EscapeString(fmt.Sprint(attrs[name]))
			if _, err := fmt.Fprintf(w, ` %s="%s"`, name, value); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, ">"); err != nil {
			return err
		}
		for _, child := range children {
			if err := child.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</"+tag+">")
		return err
	})
}

// Text renders escaped text.
func Text(s string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, templ.EscapeString(s))
		return err
	})
}

// Merge combines attribute sets; later sets win.
func Merge(sets ...templ.Attributes) templ.Attributes {
	out := templ.Attributes{}
	for _, set := range sets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}

func sortedNames(attrs templ.Attributes) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
