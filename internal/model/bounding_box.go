package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// BoundingBox is an axis-aligned rectangle locating a chunk on its page.
// Extractors emit it either as a 4-tuple [x1,y1,x2,y2] or as an object with
// optional confidence; both decode into this one canonical quadruple. It is
// always written back in object form.
type BoundingBox struct {
	X1         float64  `json:"x1"`
	Y1         float64  `json:"y1"`
	X2         float64  `json:"x2"`
	Y2         float64  `json:"y2"`
	Confidence *float64 `json:"confidence,omitempty"`
}

var errMalformedBoundingBox = errors.New("malformed bounding box")

// Intersects reports whether two boxes overlap. Touching edges count as
// overlap. Degenerate boxes (x2 < x1) are not rejected; the result is whatever
// the comparison yields.
func (b BoundingBox) Intersects(other BoundingBox) bool {
	return !(b.X2 < other.X1 || b.X1 > other.X2 || b.Y2 < other.Y1 || b.Y1 > other.Y2)
}

// Tuple returns the box as [x1, y1, x2, y2].
func (b BoundingBox) Tuple() [4]float64 {
	return [4]float64{b.X1, b.Y1, b.X2, b.Y2}
}

func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode bounding box: %w", err)
	}
	parsed, ok := ParseBoundingBox(raw)
	if !ok || parsed == nil {
		return errMalformedBoundingBox
	}
	*b = *parsed
	return nil
}

// DecodeBoundingBox reads a persisted bounding box in either form. Empty input
// and JSON null decode to nil.
func DecodeBoundingBox(data []byte) (*BoundingBox, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var b BoundingBox
	if err := json.Unmarshal(trimmed, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ValidateBoundingBox accepts nil, a 4-tuple of numbers, or an object with at
// least numeric x1, y1, x2, y2 fields.
func ValidateBoundingBox(value any) bool {
	_, ok := ParseBoundingBox(value)
	return ok
}

// ParseBoundingBox normalizes any accepted bounding box shape into a
// BoundingBox. A nil value yields (nil, true); a malformed one yields
// (nil, false).
func ParseBoundingBox(value any) (*BoundingBox, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case BoundingBox:
		return &v, true
	case *BoundingBox:
		if v == nil {
			return nil, true
		}
		cp := *v
		return &cp, true
	case json.RawMessage:
		b, err := DecodeBoundingBox(v)
		return b, err == nil
	case [4]float64:
		return &BoundingBox{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, true
	case []float64:
		if len(v) != 4 {
			return nil, false
		}
		return &BoundingBox{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, true
	case []float32:
		if len(v) != 4 {
			return nil, false
		}
		return &BoundingBox{X1: float64(v[0]), Y1: float64(v[1]), X2: float64(v[2]), Y2: float64(v[3])}, true
	case []int:
		if len(v) != 4 {
			return nil, false
		}
		return &BoundingBox{X1: float64(v[0]), Y1: float64(v[1]), X2: float64(v[2]), Y2: float64(v[3])}, true
	case []any:
		return tupleBox(v)
	case map[string]any:
		return objectBox(v)
	case map[string]float64:
		generic := make(map[string]any, len(v))
		for k, f := range v {
			generic[k] = f
		}
		return objectBox(generic)
	default:
		return nil, false
	}
}

func tupleBox(values []any) (*BoundingBox, bool) {
	if len(values) != 4 {
		return nil, false
	}
	var coords [4]float64
	for i, raw := range values {
		f, ok := toFloat(raw)
		if !ok {
			return nil, false
		}
		coords[i] = f
	}
	return &BoundingBox{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}, true
}

func objectBox(values map[string]any) (*BoundingBox, bool) {
	var coords [4]float64
	for i, key := range [4]string{"x1", "y1", "x2", "y2"} {
		raw, ok := values[key]
		if !ok {
			return nil, false
		}
		f, ok := toFloat(raw)
		if !ok {
			return nil, false
		}
		coords[i] = f
	}
	box := &BoundingBox{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}
	if raw, ok := values["confidence"]; ok && raw != nil {
		if c, ok := toFloat(raw); ok {
			box.Confidence = &c
		}
	}
	return box, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
