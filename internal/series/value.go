// Package series holds the in-memory time series container, the cell codec
// and the aggregation machinery. A series is an ordered sequence of
// (ts, ts_offset, value) points; values are either float32 samples or
// JSON-shaped maps, never mixed within one series.
package series

import "fmt"

// Kind tags the payload of a Value and doubles as the on-disk cell tag byte.
type Kind byte

const (
	// FloatKind marks float32 samples.
	FloatKind Kind = 1
	// DictKind marks map payloads.
	DictKind Kind = 2
)

func (k Kind) String() string {
	switch k {
	case FloatKind:
		return "float"
	case DictKind:
		return "dict"
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// Value is the tagged union of the two point payload types.
type Value struct {
	kind Kind
	f    float32
	d    map[string]any
}

// Float wraps a float32 sample.
func Float(f float32) Value {
	return Value{kind: FloatKind, f: f}
}

// Dict wraps a map payload. The map is not copied.
func Dict(m map[string]any) Value {
	return Value{kind: DictKind, d: m}
}

// Kind reports the payload tag.
func (v Value) Kind() Kind { return v.kind }

// Float returns the float payload; zero for dict values.
func (v Value) Float() float32 { return v.f }

// Dict returns the map payload; nil for float values.
func (v Value) Dict() map[string]any { return v.d }
