package schema

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Value is an immutable, typed configuration value.
// The zero Value is invalid and reports IsValid() == false.
type Value struct {
	typ  ValueType
	b    bool
	i    int64
	s    string
	d    time.Duration
	list []Value
	m    map[string]Value
	raw  any
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{typ: TypeBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{typ: TypeInt, i: i} }

// String returns a string value.
func String(s string) Value { return Value{typ: TypeString, s: s} }

// Duration returns a duration value.
func Duration(d time.Duration) Value { return Value{typ: TypeDuration, d: d} }

// Null returns the null value (an explicit nil assignment).
func Null() Value { return Value{typ: TypeNull} }

// Opaque wraps a decoded value that has no closed-set equivalent.
func Opaque(v any) Value { return Value{typ: TypeOpaque, raw: v} }

// List returns a list value holding a copy of items.
func List(items ...Value) Value {
	l := make([]Value, len(items))
	copy(l, items)
	return Value{typ: TypeList, list: l}
}

// Strings is a convenience for a list of string values.
func Strings(items ...string) Value {
	l := make([]Value, len(items))
	for i, s := range items {
		l[i] = String(s)
	}
	return Value{typ: TypeList, list: l}
}

// Map returns a map value holding a copy of entries.
func Map(entries map[string]Value) Value {
	m := make(map[string]Value, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return Value{typ: TypeMap, m: m}
}

// Type returns the value's type tag.
func (v Value) Type() ValueType { return v.typ }

// IsValid reports whether v was built by a constructor.
func (v Value) IsValid() bool { return v.typ != "" }

// AsBool returns the boolean payload (false for other types).
func (v Value) AsBool() bool { return v.typ == TypeBool && v.b }

// AsInt returns the integer payload.
func (v Value) AsInt() int64 { return v.i }

// AsString returns the string payload. Use Text for a rendering of any type.
func (v Value) AsString() string { return v.s }

// AsDuration returns the duration payload.
func (v Value) AsDuration() time.Duration { return v.d }

// Raw returns the payload of an opaque value.
func (v Value) Raw() any { return v.raw }

// Items returns a copy of the list payload.
func (v Value) Items() []Value {
	l := make([]Value, len(v.list))
	copy(l, v.list)
	return l
}

// Entries returns a copy of the map payload.
func (v Value) Entries() map[string]Value {
	m := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		m[k] = e
	}
	return m
}

// MapKeys returns the map keys in lexicographic order.
func (v Value) MapKeys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsFalse reports whether v is the boolean false.
func (v Value) IsFalse() bool { return v.typ == TypeBool && !v.b }

// IsEmpty reports whether v carries no information: invalid, null, an empty
// string, or an empty list or map.
func (v Value) IsEmpty() bool {
	switch v.typ {
	case "", TypeNull:
		return true
	case TypeString:
		return v.s == ""
	case TypeList:
		return len(v.list) == 0
	case TypeMap:
		return len(v.m) == 0
	}
	return false
}

// Equal reports deep equality. Strings compare byte for byte.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeBool:
		return v.b == o.b
	case TypeInt:
		return v.i == o.i
	case TypeString:
		return v.s == o.s
	case TypeDuration:
		return v.d == o.d
	case TypeList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case TypeMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, e := range v.m {
			oe, ok := o.m[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	case TypeOpaque:
		return reflect.DeepEqual(v.raw, o.raw)
	}
	return true
}

// Text returns a canonical, human-readable rendering of v. It is used by
// invariants, artifacts and reports; it is not a configuration syntax.
func (v Value) Text() string {
	switch v.typ {
	case TypeBool:
		return strconv.FormatBool(v.b)
	case TypeInt:
		return strconv.FormatInt(v.i, 10)
	case TypeString:
		return v.s
	case TypeDuration:
		return v.d.String()
	case TypeNull:
		return "null"
	case TypeList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.Text()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeMap:
		keys := v.MapKeys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.m[k].Text()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case TypeOpaque:
		return fmt.Sprint(v.raw)
	}
	return ""
}

// String implements fmt.Stringer.
func (v Value) String() string { return v.Text() }

// Interface converts v to plain Go values for encoders. Durations become
// their Go string form.
func (v Value) Interface() any {
	switch v.typ {
	case TypeBool:
		return v.b
	case TypeInt:
		return v.i
	case TypeString:
		return v.s
	case TypeDuration:
		return v.d.String()
	case TypeList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Interface()
		}
		return out
	case TypeMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Interface()
		}
		return out
	case TypeOpaque:
		return v.raw
	}
	return nil
}

// FromAny converts a value decoded by a YAML, TOML or JSON library.
// Integral floats become integers; anything without a closed-set
// equivalent becomes opaque.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return Int(int64(t))
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		if t > math.MaxInt64 {
			return Opaque(t)
		}
		return Int(int64(t))
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return Int(int64(t))
		}
		return Opaque(t)
	case float32:
		return FromAny(float64(t))
	case string:
		return String(t)
	case time.Duration:
		return Duration(t)
	case []any:
		l := make([]Value, len(t))
		for i, e := range t {
			l[i] = FromAny(e)
		}
		return Value{typ: TypeList, list: l}
	case []string:
		return Strings(t...)
	case []map[string]any:
		l := make([]Value, len(t))
		for i, e := range t {
			l[i] = FromAny(e)
		}
		return Value{typ: TypeList, list: l}
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = FromAny(e)
		}
		return Value{typ: TypeMap, m: m}
	case map[any]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = FromAny(e)
		}
		return Value{typ: TypeMap, m: m}
	}
	return Opaque(x)
}
