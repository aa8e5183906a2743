package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	v, err := ParseJSON([]byte(`{"tags":["vip","new"],"score":12,"ratio":0.25,"ok":true,"none":null}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, Array{String("vip"), String("new")}, obj["tags"])
	assert.Equal(t, Int(12), obj["score"])
	assert.Equal(t, "0.25", obj["ratio"].(Number).Dec.String())
	assert.Equal(t, Bool(true), obj["ok"])
	assert.Equal(t, Null{}, obj["none"])
}

func TestParseJSON_RejectsTrailingData(t *testing.T) {
	_, err := ParseJSON([]byte(`["a"] ["b"]`))
	require.Error(t, err)

	_, err = ParseJSON([]byte(`vip`))
	require.Error(t, err)
}

func TestMarshalValue_MatchesEncodingJSON(t *testing.T) {
	v := Object{"b": Array{Int(1), MustNumber("2.5")}, "a": String("<x>")}

	direct, err := MarshalValue(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"\u003cx\u003e","b":[1,2.5]}`, string(direct))

	viaStdlib, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, string(direct), string(viaStdlib))

	canonical, err := MarshalCanonical(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<x>","b":[1,2.5]}`, string(canonical))
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(Null{}))
	assert.False(t, IsNull(String("")))
}

func TestObjectClone(t *testing.T) {
	orig := Object{"a": Int(1)}
	clone := orig.Clone()
	clone["b"] = Int(2)
	assert.Len(t, orig, 1)
	assert.Len(t, clone, 2)
}
