package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueKind identifies the dynamic type held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	default:
		return "null"
	}
}

// Value is a single dataset cell: a string, a number, or null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
}

// Null returns the missing value.
func Null() Value { return Value{} }

// Str returns a string value.
func Str(s string) Value { return Value{kind: KindString, str: s} }

// Num returns a numeric value.
func Num(f float64) Value { return Value{kind: KindNumber, num: f} }

// FromAny converts a loosely typed cell (as produced by database drivers or
// JSON decoding) into a Value.
func FromAny(v interface{}) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return Str(x), nil
	case []byte:
		return Str(string(x)), nil
	case bool:
		return Str(strconv.FormatBool(x)), nil
	case float64:
		return Num(x), nil
	case float32:
		return Num(float64(x)), nil
	case int:
		return Num(float64(x)), nil
	case int32:
		return Num(float64(x)), nil
	case int64:
		return Num(float64(x)), nil
	case uint:
		return Num(float64(x)), nil
	case uint32:
		return Num(float64(x)), nil
	case uint64:
		return Num(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", x.String(), err)
		}
		return Num(f), nil
	case fmt.Stringer:
		return Str(x.String()), nil
	default:
		return Null(), fmt.Errorf("unsupported cell type %T", v)
	}
}

// Kind returns the dynamic type of the value.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is missing.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Float64 returns the numeric payload and whether the value is a number.
func (v Value) Float64() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// String renders the value for display. Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Key is the grouping identity of the value. Values with equal keys fall in
// the same bucket; null only matches null, and "1" (string) never matches 1
// (number).
func (v Value) Key() string {
	switch v.kind {
	case KindString:
		return "s:" + v.str
	case KindNumber:
		if v.num == 0 {
			// collapse -0 onto 0
			return "n:0"
		}
		return "n:" + strconv.FormatFloat(v.num, 'g', -1, 64)
	default:
		return "null"
	}
}

// Equal reports whether two values share a grouping key.
func (v Value) Equal(other Value) bool {
	return v.Key() == other.Key()
}

// MarshalJSON encodes null, string or number.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, string, number or bool.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML renders the value as a plain scalar.
func (v Value) MarshalYAML() (interface{}, error) {
	switch v.kind {
	case KindString:
		return v.str, nil
	case KindNumber:
		return v.num, nil
	default:
		return nil, nil
	}
}
