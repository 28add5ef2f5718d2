// Package jsoncodec is the single JSON entry point of the kernel runtime.
// Model nodes, boot logs and container events all encode through sonic's
// standard-compatible configuration.
package jsoncodec

import (
	"bytes"
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}

// Valid reports whether data is syntactically valid JSON.
func Valid(data []byte) bool {
	return defaultConfig.Valid(data)
}

// AppendString appends s as a quoted JSON string.
func AppendString(buf *bytes.Buffer, s string) error {
	quoted, err := defaultConfig.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(quoted)
	return nil
}
