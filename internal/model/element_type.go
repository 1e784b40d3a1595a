package model

import "strings"

// ElementType classifies what a chunk represents in the page layout.
// A nil *ElementType on a chunk means legacy or unclassified content.
type ElementType string

const (
	ElementParagraph     ElementType = "paragraph"
	ElementTitle         ElementType = "title"
	ElementFigureCaption ElementType = "figure_caption"
	ElementTableText     ElementType = "table_text"
	ElementListItem      ElementType = "list_item"
	ElementHeader        ElementType = "header"
	ElementFooter        ElementType = "footer"
	ElementFootnote      ElementType = "footnote"
)

// UnknownElementBucket is the distribution key used for chunks without a type.
const UnknownElementBucket = "unknown"

var elementTypes = []ElementType{
	ElementParagraph,
	ElementTitle,
	ElementFigureCaption,
	ElementTableText,
	ElementListItem,
	ElementHeader,
	ElementFooter,
	ElementFootnote,
}

// ElementTypes returns the closed set of element types.
func ElementTypes() []ElementType {
	out := make([]ElementType, len(elementTypes))
	copy(out, elementTypes)
	return out
}

func (t ElementType) Valid() bool {
	for _, et := range elementTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Label is the upper-case form used in assembled context lines.
func (t ElementType) Label() string {
	return strings.ToUpper(string(t))
}

// ValidateElementType accepts nil or a member of the closed enumeration, given
// either as an ElementType or a plain string. Anything else is rejected.
func ValidateElementType(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case ElementType:
		return v.Valid()
	case *ElementType:
		return v == nil || v.Valid()
	case string:
		return ElementType(v).Valid()
	case *string:
		return v == nil || ElementType(*v).Valid()
	default:
		return false
	}
}

// ParseElementType converts a raw string into an ElementType. The empty string
// and "null" map to nil (unclassified).
func ParseElementType(raw string) (*ElementType, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, true
	}
	et := ElementType(strings.ToLower(raw))
	if !et.Valid() {
		return nil, false
	}
	return &et, true
}

// DistributionKey returns the element type bucket name for a possibly nil type.
func DistributionKey(t *ElementType) string {
	if t == nil {
		return UnknownElementBucket
	}
	return string(*t)
}
