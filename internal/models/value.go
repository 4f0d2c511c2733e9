// internal/models/value.go
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ValueKind discriminates the dynamic shape of a result cell.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindText
	KindInteger
	KindNumber
	KindBool
	KindTime
	KindArray
	KindObject
)

// Value is a tagged variant for one result cell. Rows carry per-field dynamic
// shapes (text/number/boolean/array/null); an explicit tag keeps formatting
// logic exhaustive instead of relying on type switches over interface{}.
type Value struct {
	Kind   ValueKind
	Text   string
	Int    int64
	Float  float64
	Bool   bool
	Time   time.Time
	Array  []Value
	Object map[string]interface{}
}

func NullValue() Value              { return Value{Kind: KindNull} }
func TextValue(s string) Value      { return Value{Kind: KindText, Text: s} }
func IntValue(i int64) Value        { return Value{Kind: KindInteger, Int: i} }
func NumberValue(f float64) Value   { return Value{Kind: KindNumber, Float: f} }
func BoolValue(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func TimeValue(t time.Time) Value   { return Value{Kind: KindTime, Time: t} }
func ArrayValue(vs []Value) Value   { return Value{Kind: KindArray, Array: vs} }

func ObjectValue(m map[string]interface{}) Value {
	return Value{Kind: KindObject, Object: m}
}

// FromAny converts a decoded JSON or driver value into a tagged Value.
func FromAny(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return NullValue()
	case string:
		return TextValue(x)
	case bool:
		return BoolValue(x)
	case int:
		return IntValue(int64(x))
	case int64:
		return IntValue(x)
	case float64:
		if x == float64(int64(x)) {
			return IntValue(int64(x))
		}
		return NumberValue(x)
	case time.Time:
		return TimeValue(x)
	case []interface{}:
		arr := make([]Value, 0, len(x))
		for _, el := range x {
			arr = append(arr, FromAny(el))
		}
		return ArrayValue(arr)
	case map[string]interface{}:
		return ObjectValue(x)
	case Value:
		return x
	default:
		return TextValue(fmt.Sprintf("%v", x))
	}
}

// IsNull reports whether the value carries nothing displayable. Empty text
// counts: the formatter omits such fields entirely.
func (v Value) IsNull() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindText:
		return v.Text == ""
	case KindArray:
		return len(v.Array) == 0
	}
	return false
}

// IsNumeric reports whether the value is an integer or a float.
func (v Value) IsNumeric() bool {
	return v.Kind == KindInteger || v.Kind == KindNumber
}

// AsFloat returns the numeric value, with ok=false for non-numeric kinds.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindInteger:
		return float64(v.Int), true
	case KindNumber:
		return v.Float, true
	}
	return 0, false
}

// Raw renders the value without display formatting.
func (v Value) Raw() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindText:
		return v.Text
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindNumber:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTime:
		return v.Time.Format(time.RFC3339)
	case KindArray:
		out := ""
		for i, el := range v.Array {
			if i > 0 {
				out += ", "
			}
			out += el.Raw()
		}
		return out
	case KindObject:
		b, _ := json.Marshal(v.Object)
		return string(b)
	}
	return ""
}

// MarshalJSON emits the underlying value, not the tag envelope, so rows in a
// QueryResult serialize the way the chat layer expects.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindText:
		return json.Marshal(v.Text)
	case KindInteger:
		return json.Marshal(v.Int)
	case KindNumber:
		return json.Marshal(v.Float)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindTime:
		return json.Marshal(v.Time)
	case KindArray:
		return json.Marshal(v.Array)
	case KindObject:
		return json.Marshal(v.Object)
	}
	return []byte("null"), nil
}

// UnmarshalJSON restores the tag from the JSON shape.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// Row maps column name to cell value.
type Row map[string]Value

// RowSet is an ordered result: column order survives from the executed
// statement so tables render deterministically.
type RowSet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Empty reports whether the set has no rows.
func (rs RowSet) Empty() bool {
	return len(rs.Rows) == 0
}
