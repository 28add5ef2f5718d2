package dmr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleNode() *Node {
	n := New()
	n.SetString("operation", "add")
	n.Set("address", NewList(New().SetString("subsystem", "test")))
	n.SetInt("count", 3)
	n.SetBool("enabled", true)
	n.Set("blob", FromBytes([]byte{0x01, 0x02}))
	return n
}

func TestNilNodeReadsAsUndefined(t *testing.T) {
	var n *Node
	assert.Equal(t, Undefined, n.Kind())
	assert.False(t, n.IsDefined())
	assert.Nil(t, n.Get("missing"))
	assert.Equal(t, "", n.Get("a").Index(2).Get("b").AsString())
	assert.Equal(t, 0, n.Len())
}

func TestSetPreservesInsertionOrder(t *testing.T) {
	n := New()
	n.SetString("z", "1")
	n.SetString("a", "2")
	n.SetString("m", "3")
	n.SetString("z", "4")

	assert.Equal(t, []string{"z", "a", "m"}, n.Keys())
	assert.Equal(t, "4", n.Get("z").AsString())

	removed := n.Remove("a")
	assert.Equal(t, "2", removed.AsString())
	assert.Equal(t, []string{"z", "m"}, n.Keys())
}

func TestSetOnScalarPanics(t *testing.T) {
	assert.Panics(t, func() { FromString("x").Set("k", New()) })
	assert.Panics(t, func() { FromInt(1).Add(New()) })
}

func TestConversions(t *testing.T) {
	v, err := FromString(" 42 ").AsInt()
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = FromString("nope").AsInt()
	assert.Error(t, err)

	b, err := FromString("true").AsBool()
	require.NoError(t, err)
	assert.True(t, b)

	assert.Equal(t, "7", FromInt(7).AsString())
	assert.Equal(t, []byte("hi"), FromString("hi").AsBytes())
}

func TestCloneIsDeep(t *testing.T) {
	original := sampleNode()
	clone := original.Clone()
	require.True(t, original.Equal(clone))

	clone.Get("address").Index(0).SetString("subsystem", "other")
	assert.Equal(t, "test", original.Get("address").Index(0).Get("subsystem").AsString())
	assert.False(t, original.Equal(clone))
}

func TestEqualIgnoresObjectOrder(t *testing.T) {
	a := New().SetString("x", "1").SetString("y", "2")
	b := New().SetString("y", "2").SetString("x", "1")
	assert.True(t, a.Equal(b))

	l1 := NewList(FromInt(1), FromInt(2))
	l2 := NewList(FromInt(2), FromInt(1))
	assert.False(t, l1.Equal(l2))
}

func TestJSONRoundTrip(t *testing.T) {
	n := sampleNode()
	data, err := n.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"operation":"add","address":[{"subsystem":"test"}],"count":3,"enabled":true,"blob":{"BYTES_VALUE":"AQI="}}`,
		string(data))

	parsed, err := ParseJSON(data)
	require.NoError(t, err)
	assert.True(t, n.Equal(parsed))
	assert.Equal(t, n.Keys(), parsed.Keys())
	assert.Equal(t, Bytes, parsed.Get("blob").Kind())
}

func TestBytesKeyIsReservedInJSON(t *testing.T) {
	object := New().Set("weird", New().SetString("BYTES_VALUE", "aGk="))

	data, err := object.MarshalJSON()
	require.NoError(t, err)
	parsed, err := ParseJSON(data)
	require.NoError(t, err)
	assert.Equal(t, Bytes, parsed.Get("weird").Kind())
	assert.Equal(t, []byte("hi"), parsed.Get("weird").AsBytes())
	assert.False(t, object.Equal(parsed))

	_, err = ParseJSON([]byte(`{"BYTES_VALUE":"not base64!"}`))
	assert.Error(t, err)

	withSibling, err := ParseJSON([]byte(`{"BYTES_VALUE":"aGk=","other":1}`))
	require.NoError(t, err)
	assert.Equal(t, Object, withSibling.Kind())

	back, err := FromWire(object.ToWire())
	require.NoError(t, err)
	assert.True(t, object.Equal(back), Diff(object, back))
}

func TestParseJSONRejectsTrailingData(t *testing.T) {
	_, err := ParseJSON([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)
}

func TestParseJSONKeepsFractionsAsStrings(t *testing.T) {
	n, err := ParseJSON([]byte(`{"ratio":0.5,"null":null}`))
	require.NoError(t, err)
	assert.Equal(t, String, n.Get("ratio").Kind())
	assert.Equal(t, "0.5", n.Get("ratio").AsString())
	assert.True(t, n.Has("null"))
	assert.False(t, n.HasDefined("null"))
}

func TestYAMLRoundTrip(t *testing.T) {
	n := sampleNode()
	data, err := yaml.Marshal(n)
	require.NoError(t, err)

	parsed := New()
	require.NoError(t, yaml.Unmarshal(data, parsed))
	assert.True(t, n.Equal(parsed), Diff(n, parsed))
	assert.Equal(t, n.Keys(), parsed.Keys())
}

func TestYAMLQuotedNumbersStayStrings(t *testing.T) {
	parsed := New()
	require.NoError(t, yaml.Unmarshal([]byte("port: \"8080\"\ncount: 2\n"), parsed))
	assert.Equal(t, String, parsed.Get("port").Kind())
	assert.Equal(t, Int, parsed.Get("count").Kind())
}

func TestWireRoundTrip(t *testing.T) {
	n := sampleNode()
	back, err := FromWire(n.ToWire())
	require.NoError(t, err)
	assert.True(t, n.Equal(back))
	assert.Equal(t, n.Keys(), back.Keys())

	_, err = FromWire(Wire{Type: "FLOAT"})
	assert.Error(t, err)
}

func TestFromInterfaceSortsMapKeys(t *testing.T) {
	n, err := FromInterface(map[string]any{"b": 1, "a": []any{"x", true}, "c": nil})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, n.Keys())
	assert.Equal(t, map[string]any{"a": []any{"x", true}, "b": int64(1), "c": nil}, n.ToInterface())

	_, err = FromInterface(struct{}{})
	assert.Error(t, err)
}

func TestDiff(t *testing.T) {
	a := New().SetString("x", "1")
	assert.Empty(t, Diff(a, a.Clone()))
	assert.NotEmpty(t, Diff(a, New().SetString("x", "2")))
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("object")
	require.NoError(t, err)
	assert.Equal(t, Object, kind)
	assert.Equal(t, "BOOLEAN", Bool.String())
}
