package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is the payload of a record: one of integer, float, string, boolean,
// or absent. Absent means "no value carried, metadata only" — a meta-only
// record never sets a slot's value in the materialized store.
//
// The zero Value is absent.
type Value struct {
	data    any
	present bool
}

// None returns the absent value.
func None() Value {
	return Value{}
}

// Int returns an integer value.
func Int(v int64) Value {
	return Value{data: v, present: true}
}

// Float returns a floating-point value.
func Float(v float64) Value {
	return Value{data: v, present: true}
}

// String returns a string value.
func String(v string) Value {
	return Value{data: v, present: true}
}

// Bool returns a boolean value.
func Bool(v bool) Value {
	return Value{data: v, present: true}
}

// FromAny converts a raw scalar (as produced by JSON decoding or handed in
// by a transport) into a Value. Integer-typed inputs are widened to int64,
// float32 to float64. The second return is false for nil and for
// non-scalar shapes (maps, slices, structs).
func FromAny(v any) (Value, bool) {
	switch x := v.(type) {
	case nil:
		return None(), false
	case bool:
		return Bool(x), true
	case string:
		return String(x), true
	case float64:
		return Float(x), true
	case float32:
		return Float(float64(x)), true
	case int:
		return Int(int64(x)), true
	case int8:
		return Int(int64(x)), true
	case int16:
		return Int(int64(x)), true
	case int32:
		return Int(int64(x)), true
	case int64:
		return Int(x), true
	case uint:
		return Int(int64(x)), true
	case uint8:
		return Int(int64(x)), true
	case uint16:
		return Int(int64(x)), true
	case uint32:
		return Int(int64(x)), true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), true
		}
		if f, err := x.Float64(); err == nil {
			return Float(f), true
		}
		return None(), false
	default:
		return None(), false
	}
}

// Present reports whether the value carries data.
func (v Value) Present() bool {
	return v.present
}

// Any returns the underlying data (int64, float64, string, or bool),
// or nil if the value is absent.
func (v Value) Any() any {
	if !v.present {
		return nil
	}
	return v.data
}

// Float64 returns the value as a float64 if it is numeric.
// Integers are converted; strings and booleans are not.
func (v Value) Float64() (float64, bool) {
	switch x := v.data.(type) {
	case float64:
		return x, v.present
	case int64:
		return float64(x), v.present
	default:
		return 0, false
	}
}

// Equal reports whether two values are the same kind and data.
func (v Value) Equal(o Value) bool {
	if v.present != o.present {
		return false
	}
	if !v.present {
		return true
	}
	return v.data == o.data
}

// String implements fmt.Stringer for logging and diagnostics.
func (v Value) String() string {
	if !v.present {
		return "<absent>"
	}
	return fmt.Sprintf("%v", v.data)
}

// MarshalJSON encodes the underlying data, or null when absent.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes the symmetric forms of MarshalJSON: null becomes
// absent, numbers without a fraction or exponent become integers, and
// everything else maps to its scalar kind. Non-scalar JSON is an error.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	if raw == nil {
		*v = None()
		return nil
	}

	decoded, ok := FromAny(raw)
	if !ok {
		return fmt.Errorf("%w: non-scalar JSON value", ErrInvalidRecord)
	}
	*v = decoded
	return nil
}
