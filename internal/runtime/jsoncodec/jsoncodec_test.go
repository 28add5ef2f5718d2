package jsoncodec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bootRecord struct {
	Operation string   `json:"operation"`
	Address   []string `json:"address"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := bootRecord{Operation: "add", Address: []string{"subsystem", "test"}}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out bootRecord
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)

	indented, err := MarshalIndent(in, "", "  ")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(indented), "\n  \"operation\""))
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, bootRecord{Operation: "remove"}))

	var out bootRecord
	require.NoError(t, Decode(&buf, &out))
	assert.Equal(t, "remove", out.Operation)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid([]byte(`{"a":1}`)))
	assert.False(t, Valid([]byte(`{"a":`)))
}

func TestAppendStringEscapes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, AppendString(&buf, "quote\"d"))
	assert.Equal(t, `"quote\"d"`, buf.String())
}
