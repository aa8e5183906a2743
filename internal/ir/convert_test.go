package ir

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromGo(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null{}},
		{"string", "new", String("new")},
		{"bytes", []byte("raw"), String("raw")},
		{"bool", true, Bool(true)},
		{"int", 10, Int(10)},
		{"int32", int32(-3), Int(-3)},
		{"uint8", uint8(7), Int(7)},
		{"integral float", 10.0, Int(10)},
		{"json number int", json.Number("42"), Int(42)},
		{"decimal integral", decimal.NewFromInt(5), Int(5)},
		{"time", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), String("2024-01-02T03:04:05Z")},
		{"string slice", []string{"a", "b"}, Array{String("a"), String("b")}},
		{"any slice", []any{"a", 1}, Array{String("a"), Int(1)}},
		{"map", map[string]any{"k": false}, Object{"k": Bool(false)}},
		{"value passthrough", String("x"), String("x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromGo(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromGo_Fractions(t *testing.T) {
	got, err := FromGo(2.5)
	require.NoError(t, err)
	require.IsType(t, Number{}, got)
	assert.Equal(t, "2.5", got.(Number).Dec.String())

	got, err = FromGo(json.Number("1e400"))
	require.NoError(t, err)
	require.IsType(t, Number{}, got)
}

func TestFromGo_Errors(t *testing.T) {
	_, err := FromGo(math.NaN())
	require.Error(t, err)

	_, err = FromGo(make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported parameter type")
}

func TestFromGo_StructFallsBackToJSON(t *testing.T) {
	type tag struct {
		Name string `json:"name"`
	}
	got, err := FromGo(tag{Name: "vip"})
	require.NoError(t, err)
	assert.Equal(t, Object{"name": String("vip")}, got)
}

func TestFromGoSlice_ReportsPosition(t *testing.T) {
	_, err := FromGoSlice([]any{"ok", math.Inf(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parameter $2")
}

func TestToDriver(t *testing.T) {
	got, err := ToDriver(Array{String("vip")})
	require.NoError(t, err)
	assert.Equal(t, `["vip"]`, got)

	got, err = ToDriver(MustNumber("1.25"))
	require.NoError(t, err)
	assert.Equal(t, "1.25", got)

	got, err = ToDriver(Null{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestToGo(t *testing.T) {
	got := ToGo(Object{"n": MustNumber("1.5"), "l": Array{Int(1)}})
	assert.Equal(t, map[string]any{"n": json.Number("1.5"), "l": []any{int64(1)}}, got)
}

func TestText(t *testing.T) {
	assert.Equal(t, "null", Text(Null{}))
	assert.Equal(t, "abc", Text(String("abc")))
	assert.Equal(t, "12", Text(Int(12)))
	assert.Equal(t, "true", Text(Bool(true)))
	assert.Equal(t, `["a"]`, Text(Array{String("a")}))
}

func TestAsInt(t *testing.T) {
	n, ok := AsInt(Int(10))
	assert.True(t, ok)
	assert.Equal(t, int64(10), n)

	n, ok = AsInt(String("25"))
	assert.True(t, ok)
	assert.Equal(t, int64(25), n)

	_, ok = AsInt(String("ten"))
	assert.False(t, ok)

	_, ok = AsInt(MustNumber("2.5"))
	assert.False(t, ok)

	_, ok = AsInt(Bool(true))
	assert.False(t, ok)
}
