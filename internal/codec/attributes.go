// Package codec encodes and decodes the tagging attribute protocol: the
// printable attribute values that carry a location context, behavior
// options and children-tagging queries on DOM elements.
//
// The attribute names are a cross-tool wire format and must not change.
// Every structured value is JSON. Decoders return either a fully validated
// value or a *errors.TrackerError of type decode; they never return a
// partially valid value.
package codec

// Attribute names.
const (
	AttrElementID       = "element-id"
	AttrParentElementID = "parent-element-id"
	AttrContext         = "context"
	AttrTrackClicks     = "track-clicks"
	AttrTrackBlurs      = "track-blurs"
	AttrTrackVisibility = "track-visibility"
	AttrTagChildren     = "tag-children"
	AttrTracked         = "tracked"
	AttrValidate        = "validate"
)

// TagAttributeNames lists the attributes a tagging payload may carry.
var TagAttributeNames = []string{
	AttrElementID,
	AttrParentElementID,
	AttrContext,
	AttrTrackClicks,
	AttrTrackBlurs,
	AttrTrackVisibility,
	AttrTagChildren,
	AttrValidate,
}

// Attributer is anything attributes can be read from, such as a DOM element.
type Attributer interface {
	Attr(name string) (string, bool)
}

// IsTagAttribute reports whether name belongs to the tagging protocol.
func IsTagAttribute(name string) bool {
	if name == AttrTracked {
		return true
	}
	for _, n := range TagAttributeNames {
		if n == name {
			return true
		}
	}
	return false
}
