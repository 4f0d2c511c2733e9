// internal/models/value_test.go
package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromAny(t *testing.T) {
	when := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    interface{}
		expected Value
	}{
		{"nil", nil, NullValue()},
		{"string", "hello", TextValue("hello")},
		{"bool", true, BoolValue(true)},
		{"int", 42, IntValue(42)},
		{"int64", int64(42), IntValue(42)},
		{"integral float", 120.0, IntValue(120)},
		{"fractional float", 120.5, NumberValue(120.5)},
		{"time", when, TimeValue(when)},
		{"already tagged", TextValue("x"), TextValue("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FromAny(tt.input))
		})
	}
}

func TestFromAny_Composite(t *testing.T) {
	v := FromAny([]interface{}{"a", 1.0, nil})
	assert.Equal(t, KindArray, v.Kind)
	assert.Len(t, v.Array, 3)
	assert.Equal(t, TextValue("a"), v.Array[0])
	assert.Equal(t, IntValue(1), v.Array[1])
	assert.Equal(t, NullValue(), v.Array[2])

	obj := FromAny(map[string]interface{}{"city": "Austin"})
	assert.Equal(t, KindObject, obj.Kind)
	assert.Equal(t, "Austin", obj.Object["city"])
}

func TestValue_IsNull(t *testing.T) {
	tests := []struct {
		name     string
		value    Value
		expected bool
	}{
		{"null", NullValue(), true},
		{"empty text", TextValue(""), true},
		{"empty array", ArrayValue(nil), true},
		{"text", TextValue("x"), false},
		{"zero integer", IntValue(0), false},
		{"zero number", NumberValue(0), false},
		{"false bool", BoolValue(false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.value.IsNull())
		})
	}
}

func TestValue_AsFloat(t *testing.T) {
	f, ok := IntValue(7).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 7.0, f)

	f, ok = NumberValue(1249.5).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 1249.5, f)

	_, ok = TextValue("7").AsFloat()
	assert.False(t, ok)
}

func TestValue_JSONRoundTrip(t *testing.T) {
	row := Row{
		"name":    TextValue("Sarah Chen"),
		"orders":  IntValue(14),
		"revenue": NumberValue(1249.5),
		"active":  BoolValue(true),
		"notes":   NullValue(),
	}

	b, err := json.Marshal(row)
	assert.NoError(t, err)

	var decoded Row
	assert.NoError(t, json.Unmarshal(b, &decoded))

	assert.Equal(t, TextValue("Sarah Chen"), decoded["name"])
	assert.Equal(t, IntValue(14), decoded["orders"])
	assert.Equal(t, NumberValue(1249.5), decoded["revenue"])
	assert.Equal(t, BoolValue(true), decoded["active"])
	assert.Equal(t, NullValue(), decoded["notes"])
}

func TestValue_MarshalJSON_EmitsUnderlyingValue(t *testing.T) {
	b, err := json.Marshal(TextValue("hello"))
	assert.NoError(t, err)
	assert.Equal(t, `"hello"`, string(b))

	b, err = json.Marshal(NullValue())
	assert.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestRowSet_Empty(t *testing.T) {
	assert.True(t, RowSet{}.Empty())
	assert.False(t, RowSet{Columns: []string{"a"}, Rows: []Row{{"a": IntValue(1)}}}.Empty())
}
