package dmr

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/drblury/kerneltest/internal/runtime/jsoncodec"
)

// bytesKey wraps Bytes values in JSON, matching the management model's
// JSON representation.
const bytesKey = "BYTES_VALUE"

// MarshalJSON writes objects with their keys in insertion order. Bytes
// are written as {"BYTES_VALUE": "<base64>"}, so BYTES_VALUE is a reserved
// key: an object whose only key is BYTES_VALUE with a string value decodes
// back as Bytes, or fails when the string is not base64. Binary formats
// keep such objects as objects.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) writeJSON(buf *bytes.Buffer) error {
	switch n.Kind() {
	case Undefined:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(n.b))
	case Int:
		buf.WriteString(strconv.FormatInt(n.i, 10))
	case String:
		return jsoncodec.AppendString(buf, n.s)
	case Bytes:
		buf.WriteString(`{"` + bytesKey + `":`)
		if err := jsoncodec.AppendString(buf, base64.StdEncoding.EncodeToString(n.raw)); err != nil {
			return err
		}
		buf.WriteByte('}')
	case List:
		buf.WriteByte('[')
		for idx, item := range n.items {
			if idx > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for idx, key := range n.keys {
			if idx > 0 {
				buf.WriteByte(',')
			}
			if err := jsoncodec.AppendString(buf, key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := n.fields[key].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("dmr: cannot encode kind %s", n.kind)
	}
	return nil
}

// UnmarshalJSON preserves object key order. Non-integral numbers are kept
// as their literal string form.
func (n *Node) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeJSON(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("dmr: trailing data after JSON value")
	}
	*n = *parsed
	return nil
}

// ParseJSON decodes a single JSON document into a node.
func ParseJSON(data []byte) (*Node, error) {
	n := New()
	if err := n.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return n, nil
}

func decodeJSON(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("dmr: decode json: %w", err)
	}
	switch value := tok.(type) {
	case nil:
		return New(), nil
	case bool:
		return FromBool(value), nil
	case string:
		return FromString(value), nil
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return FromInt(i), nil
		}
		return FromString(value.String()), nil
	case json.Delim:
		switch value {
		case '[':
			out := NewList()
			for dec.More() {
				item, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				out.Add(item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("dmr: decode json: %w", err)
			}
			return out, nil
		case '{':
			out := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("dmr: decode json: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("dmr: unexpected object key %v", keyTok)
				}
				child, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				out.Set(key, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("dmr: decode json: %w", err)
			}
			if len(out.keys) == 1 && out.keys[0] == bytesKey && out.fields[bytesKey].Kind() == String {
				raw, err := base64.StdEncoding.DecodeString(out.fields[bytesKey].s)
				if err != nil {
					return nil, fmt.Errorf("dmr: decode bytes value: %w", err)
				}
				return FromBytes(raw), nil
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("dmr: unexpected json token %v", tok)
}

// MarshalYAML renders the node as a yaml.Node tree so object order and
// scalar types survive.
func (n *Node) MarshalYAML() (any, error) {
	return n.toYAML(), nil
}

func (n *Node) toYAML() *yaml.Node {
	switch n.Kind() {
	case Bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(n.b)}
	case Int:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(n.i, 10)}
	case String:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.s}
	case Bytes:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!binary", Value: base64.StdEncoding.EncodeToString(n.raw)}
	case List:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range n.items {
			out.Content = append(out.Content, item.toYAML())
		}
		return out
	case Object:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, key := range n.keys {
			out.Content = append(out.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
				n.fields[key].toYAML(),
			)
		}
		return out
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "~"}
	}
}

// UnmarshalYAML accepts any YAML document; anchors are resolved.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := fromYAML(value)
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}

func fromYAML(value *yaml.Node) (*Node, error) {
	switch value.Kind {
	case yaml.DocumentNode:
		if len(value.Content) == 0 {
			return New(), nil
		}
		return fromYAML(value.Content[0])
	case yaml.AliasNode:
		return fromYAML(value.Alias)
	case yaml.SequenceNode:
		out := NewList()
		for _, item := range value.Content {
			child, err := fromYAML(item)
			if err != nil {
				return nil, err
			}
			out.Add(child)
		}
		return out, nil
	case yaml.MappingNode:
		out := NewObject()
		for idx := 0; idx+1 < len(value.Content); idx += 2 {
			child, err := fromYAML(value.Content[idx+1])
			if err != nil {
				return nil, err
			}
			out.Set(value.Content[idx].Value, child)
		}
		return out, nil
	case yaml.ScalarNode:
		switch value.ShortTag() {
		case "!!null":
			return New(), nil
		case "!!bool":
			var b bool
			if err := value.Decode(&b); err != nil {
				return nil, fmt.Errorf("dmr: decode yaml bool: %w", err)
			}
			return FromBool(b), nil
		case "!!int":
			var i int64
			if err := value.Decode(&i); err != nil {
				return nil, fmt.Errorf("dmr: decode yaml int: %w", err)
			}
			return FromInt(i), nil
		case "!!binary":
			raw, err := base64.StdEncoding.DecodeString(value.Value)
			if err != nil {
				return nil, fmt.Errorf("dmr: decode yaml binary: %w", err)
			}
			return FromBytes(raw), nil
		default:
			return FromString(value.Value), nil
		}
	}
	return nil, fmt.Errorf("dmr: unsupported yaml node kind %d", value.Kind)
}

// Wire is the typed, lossless form of a Node used by binary formats.
type Wire struct {
	Type   string      `cbor:"t" json:"type"`
	Bool   bool        `cbor:"b,omitempty" json:"bool,omitempty"`
	Int    int64       `cbor:"i,omitempty" json:"int,omitempty"`
	String string      `cbor:"s,omitempty" json:"string,omitempty"`
	Bytes  []byte      `cbor:"y,omitempty" json:"bytes,omitempty"`
	Items  []Wire      `cbor:"l,omitempty" json:"items,omitempty"`
	Fields []WireField `cbor:"f,omitempty" json:"fields,omitempty"`
}

// WireField is one ordered object entry.
type WireField struct {
	Name  string `cbor:"n" json:"name"`
	Value Wire   `cbor:"v" json:"value"`
}

// ToWire converts to the typed form.
func (n *Node) ToWire() Wire {
	w := Wire{Type: n.Kind().String()}
	switch n.Kind() {
	case Bool:
		w.Bool = n.b
	case Int:
		w.Int = n.i
	case String:
		w.String = n.s
	case Bytes:
		w.Bytes = append([]byte(nil), n.raw...)
	case List:
		for _, item := range n.items {
			w.Items = append(w.Items, item.ToWire())
		}
	case Object:
		for _, key := range n.keys {
			w.Fields = append(w.Fields, WireField{Name: key, Value: n.fields[key].ToWire()})
		}
	}
	return w
}

// FromWire converts back from the typed form.
func FromWire(w Wire) (*Node, error) {
	kind, err := ParseKind(w.Type)
	if err != nil {
		return nil, err
	}
	switch kind {
	case Bool:
		return FromBool(w.Bool), nil
	case Int:
		return FromInt(w.Int), nil
	case String:
		return FromString(w.String), nil
	case Bytes:
		return FromBytes(w.Bytes), nil
	case List:
		out := NewList()
		for _, item := range w.Items {
			child, err := FromWire(item)
			if err != nil {
				return nil, err
			}
			out.Add(child)
		}
		return out, nil
	case Object:
		out := NewObject()
		for _, field := range w.Fields {
			child, err := FromWire(field.Value)
			if err != nil {
				return nil, err
			}
			out.Set(field.Name, child)
		}
		return out, nil
	default:
		return New(), nil
	}
}

// Diff returns a human readable difference, empty when equal.
func Diff(want, got *Node) string {
	return cmp.Diff(want.ToInterface(), got.ToInterface())
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
