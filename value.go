package adapt

import (
	"math"
	"sort"
)

// Kind tags the variants of the intermediate Value union. The union is
// closed: converters and codecs exchange nothing but these eight shapes.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt // fixed 64-bit signed; see Int.
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is the canonical, format-agnostic representation every conversion
// targets. It is a closed tagged union over null, bool, int, float, string,
// bytes, list and string-keyed map.
//
// Integers are fixed 64-bit signed. Values that do not fit (for example a
// uint64 above math.MaxInt64) fail with range_error at conversion time
// rather than truncating. Floats are 64-bit and round-trip exactly.
//
// Maps preserve insertion order for codecs that consume it (CSV headers,
// Avro field order), but equality between maps is order-insensitive: two
// maps holding the same entries are equal regardless of order.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
	list []Value
	keys []string
	m    map[string]Value
}

// Entry is a single key/value pair used to construct map Values.
type Entry struct {
	Key   string
	Value Value
}

// Null returns the absent/null Value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer Value (64-bit signed).
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point Value (64-bit).
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a text Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes returns a raw byte sequence Value. The slice is not copied.
func Bytes(p []byte) Value { return Value{kind: KindBytes, raw: p} }

// List returns an ordered sequence Value.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Map returns a string-keyed mapping Value. Insertion order follows the
// entry order; re-setting an existing key replaces the value but keeps the
// first position, so construction is deterministic.
func Map(entries ...Entry) Value {
	v := Value{kind: KindMap, m: make(map[string]Value, len(entries))}
	for _, e := range entries {
		if _, seen := v.m[e.Key]; !seen {
			v.keys = append(v.keys, e.Key)
		}
		v.m[e.Key] = e.Value
	}
	return v
}

// Kind reports the union tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the Value is the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload. Valid only when Kind() == KindBool.
func (v Value) Bool() bool { return v.b }

// Int returns the integer payload. Valid only when Kind() == KindInt.
func (v Value) Int() int64 { return v.i }

// Float returns the float payload. Valid only when Kind() == KindFloat.
func (v Value) Float() float64 { return v.f }

// Str returns the text payload. Valid only when Kind() == KindString.
func (v Value) Str() string { return v.s }

// Bytes returns the raw byte payload. Valid only when Kind() == KindBytes.
func (v Value) Bytes() []byte { return v.raw }

// Len returns the element count for list and map Values, zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.keys)
	default:
		return 0
	}
}

// Index returns the i-th element of a list Value.
func (v Value) Index(i int) Value { return v.list[i] }

// Items returns the backing slice of a list Value. Callers must not mutate.
func (v Value) Items() []Value { return v.list }

// Keys returns the map keys in insertion order. Callers must not mutate.
func (v Value) Keys() []string { return v.keys }

// Get returns the value stored under key in a map Value.
func (v Value) Get(key string) (Value, bool) {
	e, ok := v.m[key]
	return e, ok
}

// Equal reports structural equality under the intermediate model: lists
// compare element-wise in order, maps compare by entry set ignoring order,
// numbers compare within their own kind (Int(1) != Float(1)).
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		// NaN never equals anything, matching float64 semantics.
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindBytes:
		if len(v.raw) != len(o.raw) {
			return false
		}
		for i := range v.raw {
			if v.raw[i] != o.raw[i] {
				return false
			}
		}
		return true
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.keys) != len(o.keys) {
			return false
		}
		for k, ve := range v.m {
			oe, ok := o.m[k]
			if !ok || !ve.Equal(oe) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Native lowers a Value into plain Go data (nil, bool, int64, float64,
// string, []byte, []any, map[string]any) for codec drivers that marshal
// native structures. Map insertion order is lost; drivers that need order
// walk Keys() instead.
func (v Value) Native() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.raw
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Native()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.keys))
		for _, k := range v.keys {
			out[k] = v.m[k].Native()
		}
		return out
	default:
		return nil
	}
}

// FromNative lifts plain Go data produced by a codec driver back into a
// Value. Map keys are visited in sorted order so the result is
// deterministic; the order-insensitive map equality makes this safe.
// Unsigned integers above math.MaxInt64 fail with range_error.
func FromNative(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Int(int64(t)), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Null(), singleIssue(CodeRange, "unsigned integer exceeds 64-bit signed range")
		}
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			ev, err := FromNative(e)
			if err != nil {
				return Null(), err
			}
			items[i] = ev
		}
		return List(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]Entry, 0, len(keys))
		for _, k := range keys {
			ev, err := FromNative(t[k])
			if err != nil {
				return Null(), err
			}
			entries = append(entries, Entry{Key: k, Value: ev})
		}
		return Map(entries...), nil
	default:
		return Null(), singleIssue(CodeUnsupportedType, "native value has no intermediate representation")
	}
}
