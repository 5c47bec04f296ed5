package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Kind names a Value's dynamic type.
type Kind string

const (
	KindNull   Kind = "null"
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindList   Kind = "list"
	KindObject Kind = "object"
)

// Value is a sealed interface over the values a graph state can hold.
// Only Null, String, Int, Bool, List and Object implement it.
type Value interface {
	Kind() Kind
}

// Null is the absent value.
type Null struct{}

// String is a text value.
type String string

// Int is an integer value. There is no float kind.
type Int int64

// Bool is a boolean value.
type Bool bool

// List is an ordered sequence of values.
type List []Value

// Object maps keys to values. Iterate with SortedKeys for a stable order.
type Object map[string]Value

func (Null) Kind() Kind   { return KindNull }
func (String) Kind() Kind { return KindString }
func (Int) Kind() Kind    { return KindInt }
func (Bool) Kind() Kind   { return KindBool }
func (List) Kind() Kind   { return KindList }
func (Object) Kind() Kind { return KindObject }

// KindOf returns v's kind; a nil Value is null.
func KindOf(v Value) Kind {
	if v == nil {
		return KindNull
	}
	return v.Kind()
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units), which
// differs from Go's byte order for characters outside the BMP.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (l List) MarshalJSON() ([]byte, error) { return MarshalCanonical(l) }

func (o Object) MarshalJSON() ([]byte, error) { return MarshalCanonical(o) }

// UnmarshalJSON decodes a JSON array, rejecting floats.
func (l *List) UnmarshalJSON(data []byte) error {
	v, err := Unmarshal(data)
	if err != nil {
		return err
	}
	list, ok := v.(List)
	if !ok {
		return fmt.Errorf("expected list, got %s", v.Kind())
	}
	*l = list
	return nil
}

// UnmarshalJSON decodes a JSON object, rejecting floats.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := Unmarshal(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected object, got %s", v.Kind())
	}
	*o = obj
	return nil
}

// Unmarshal decodes JSON into a Value. Non-integral numbers are rejected.
func Unmarshal(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode value: trailing data")
	}
	return FromAny(raw)
}

// FromAny converts decoded JSON, YAML or TOML data to a Value. Floats are
// accepted only when integral.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || val > math.MaxInt64 || val < math.MinInt64 {
			return nil, fmt.Errorf("floats are not allowed: %v", val)
		}
		return Int(val), nil
	case json.Number:
		n, err := strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("floats are not allowed: %s", val)
		}
		return Int(n), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			item, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = item
		}
		return list, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			item, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = item
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// ToAny converts v to plain Go data (nil, string, int64, bool, []any,
// map[string]any).
func ToAny(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}

// Equal reports structural equality. Null and a nil Value are equal.
func Equal(a, b Value) bool {
	if KindOf(a) != KindOf(b) {
		return false
	}
	switch x := a.(type) {
	case List:
		y := b.(List)
		return slices.EqualFunc(x, y, Equal)
	case Object:
		y := b.(Object)
		if len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	case nil, Null:
		return true
	default:
		return a == b
	}
}

// AsInt returns v as an integer. Bools count as 0 and 1.
func AsInt(v Value) (int64, bool) {
	switch val := v.(type) {
	case Int:
		return int64(val), true
	case Bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Truthy follows the usual scripting rules: null, false, 0, "" and empty
// collections are false.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case String:
		return val != ""
	case Int:
		return val != 0
	case Bool:
		return bool(val)
	case List:
		return len(val) > 0
	case Object:
		return len(val) > 0
	default:
		return false
	}
}

// Len returns the length of strings, lists and objects.
func Len(v Value) (int, bool) {
	switch val := v.(type) {
	case String:
		return len([]rune(string(val))), true
	case List:
		return len(val), true
	case Object:
		return len(val), true
	default:
		return 0, false
	}
}

// Format renders v as canonical JSON, falling back to Go formatting for
// values that cannot be serialized.
func Format(v Value) string {
	if v == nil {
		return "null"
	}
	data, err := MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
