// Package dmr implements the recursive tagged value used for every
// management operation, parameter and result in the kernel.
//
// A Node is either a scalar (boolean, integer, string, bytes), a list of
// nodes, an object mapping names to nodes in insertion order, or undefined.
// A nil *Node reads as undefined, so lookups can be chained without checks:
//
//	op.Get("address").Index(0).Get("subsystem").AsString()
package dmr

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the type of value a Node holds.
type Kind int

const (
	Undefined Kind = iota
	Bool
	Int
	String
	Bytes
	List
	Object
)

var kindNames = map[Kind]string{
	Undefined: "UNDEFINED",
	Bool:      "BOOLEAN",
	Int:       "INT",
	String:    "STRING",
	Bytes:     "BYTES",
	List:      "LIST",
	Object:    "OBJECT",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for kind, name := range kindNames {
		if name == upper {
			return kind, nil
		}
	}
	return Undefined, fmt.Errorf("dmr: unknown kind %q", s)
}

// Node is a mutable model value. Build operations with the constructors and
// Set/Add, then treat them as read-only once handed to a kernel.
type Node struct {
	kind   Kind
	b      bool
	i      int64
	s      string
	raw    []byte
	items  []*Node
	keys   []string
	fields map[string]*Node
}

// New returns an undefined node.
func New() *Node { return &Node{} }

func FromString(s string) *Node { return &Node{kind: String, s: s} }

func FromInt(i int64) *Node { return &Node{kind: Int, i: i} }

func FromBool(b bool) *Node { return &Node{kind: Bool, b: b} }

// FromBytes copies b.
func FromBytes(b []byte) *Node {
	return &Node{kind: Bytes, raw: append([]byte(nil), b...)}
}

// NewList returns a list holding items in order.
func NewList(items ...*Node) *Node {
	n := &Node{kind: List}
	for _, item := range items {
		n.items = append(n.items, orUndefined(item))
	}
	return n
}

// NewObject returns an empty object.
func NewObject() *Node {
	return &Node{kind: Object, fields: make(map[string]*Node)}
}

func orUndefined(n *Node) *Node {
	if n == nil {
		return New()
	}
	return n
}

// Kind reports the node type. A nil node is Undefined.
func (n *Node) Kind() Kind {
	if n == nil {
		return Undefined
	}
	return n.kind
}

func (n *Node) IsDefined() bool { return n.Kind() != Undefined }

func (n *Node) ensureObject() {
	switch n.kind {
	case Object:
	case Undefined:
		n.kind = Object
		n.fields = make(map[string]*Node)
		n.keys = nil
	default:
		panic(fmt.Sprintf("dmr: cannot set a field on a %s node", n.kind))
	}
}

// Set stores value under key, turning an undefined node into an object.
// Re-setting an existing key keeps its original position.
func (n *Node) Set(key string, value *Node) *Node {
	n.ensureObject()
	if _, exists := n.fields[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.fields[key] = orUndefined(value)
	return n
}

func (n *Node) SetString(key, value string) *Node { return n.Set(key, FromString(value)) }

func (n *Node) SetInt(key string, value int64) *Node { return n.Set(key, FromInt(value)) }

func (n *Node) SetBool(key string, value bool) *Node { return n.Set(key, FromBool(value)) }

// Get returns the child stored under key, or nil when absent.
func (n *Node) Get(key string) *Node {
	if n.Kind() != Object {
		return nil
	}
	return n.fields[key]
}

// Has reports whether key is present, defined or not.
func (n *Node) Has(key string) bool {
	if n.Kind() != Object {
		return false
	}
	_, ok := n.fields[key]
	return ok
}

// HasDefined reports whether key is present and defined.
func (n *Node) HasDefined(key string) bool {
	return n.Get(key).IsDefined()
}

// Remove deletes key and returns the removed value.
func (n *Node) Remove(key string) *Node {
	if n.Kind() != Object {
		return nil
	}
	removed, ok := n.fields[key]
	if !ok {
		return nil
	}
	delete(n.fields, key)
	for idx, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:idx], n.keys[idx+1:]...)
			break
		}
	}
	return removed
}

// Keys returns object keys in insertion order.
func (n *Node) Keys() []string {
	if n.Kind() != Object {
		return nil
	}
	return append([]string(nil), n.keys...)
}

// Add appends value, turning an undefined node into a list.
func (n *Node) Add(value *Node) *Node {
	switch n.kind {
	case List:
	case Undefined:
		n.kind = List
	default:
		panic(fmt.Sprintf("dmr: cannot append to a %s node", n.kind))
	}
	n.items = append(n.items, orUndefined(value))
	return n
}

// Items returns the list elements.
func (n *Node) Items() []*Node {
	if n.Kind() != List {
		return nil
	}
	return append([]*Node(nil), n.items...)
}

// Index returns the i-th list element, or nil when out of range.
func (n *Node) Index(i int) *Node {
	if n.Kind() != List || i < 0 || i >= len(n.items) {
		return nil
	}
	return n.items[i]
}

// Len is the number of list elements or object keys.
func (n *Node) Len() int {
	switch n.Kind() {
	case List:
		return len(n.items)
	case Object:
		return len(n.keys)
	default:
		return 0
	}
}

// AsString renders scalars as text. Undefined yields "".
func (n *Node) AsString() string {
	switch n.Kind() {
	case Undefined:
		return ""
	case String:
		return n.s
	case Int:
		return strconv.FormatInt(n.i, 10)
	case Bool:
		return strconv.FormatBool(n.b)
	case Bytes:
		return string(n.raw)
	default:
		return n.String()
	}
}

// AsInt converts integers and numeric strings.
func (n *Node) AsInt() (int64, error) {
	switch n.Kind() {
	case Int:
		return n.i, nil
	case String:
		v, err := strconv.ParseInt(strings.TrimSpace(n.s), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("dmr: %q is not an integer", n.s)
		}
		return v, nil
	case Bool:
		if n.b {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("dmr: cannot convert %s to integer", n.Kind())
	}
}

// AsBool converts booleans and "true"/"false" strings.
func (n *Node) AsBool() (bool, error) {
	switch n.Kind() {
	case Bool:
		return n.b, nil
	case String:
		v, err := strconv.ParseBool(strings.TrimSpace(n.s))
		if err != nil {
			return false, fmt.Errorf("dmr: %q is not a boolean", n.s)
		}
		return v, nil
	case Int:
		return n.i != 0, nil
	default:
		return false, fmt.Errorf("dmr: cannot convert %s to boolean", n.Kind())
	}
}

// AsBytes returns the raw bytes of a Bytes node, or the UTF-8 form of any
// other scalar.
func (n *Node) AsBytes() []byte {
	if n.Kind() == Bytes {
		return append([]byte(nil), n.raw...)
	}
	return []byte(n.AsString())
}

// Clone returns a deep copy. Cloning nil yields a fresh undefined node.
func (n *Node) Clone() *Node {
	if n == nil {
		return New()
	}
	out := &Node{kind: n.kind, b: n.b, i: n.i, s: n.s}
	if n.raw != nil {
		out.raw = append([]byte(nil), n.raw...)
	}
	if n.kind == List {
		out.items = make([]*Node, len(n.items))
		for idx, item := range n.items {
			out.items[idx] = item.Clone()
		}
	}
	if n.kind == Object {
		out.keys = append([]string(nil), n.keys...)
		out.fields = make(map[string]*Node, len(n.fields))
		for key, value := range n.fields {
			out.fields[key] = value.Clone()
		}
	}
	return out
}

// Equal compares structurally. Object key order is not significant; list
// order is.
func (n *Node) Equal(other *Node) bool {
	if n.Kind() != other.Kind() {
		return false
	}
	switch n.Kind() {
	case Undefined:
		return true
	case Bool:
		return n.b == other.b
	case Int:
		return n.i == other.i
	case String:
		return n.s == other.s
	case Bytes:
		return string(n.raw) == string(other.raw)
	case List:
		if len(n.items) != len(other.items) {
			return false
		}
		for idx := range n.items {
			if !n.items[idx].Equal(other.items[idx]) {
				return false
			}
		}
		return true
	case Object:
		if len(n.fields) != len(other.fields) {
			return false
		}
		for key, value := range n.fields {
			otherValue, ok := other.fields[key]
			if !ok || !value.Equal(otherValue) {
				return false
			}
		}
		return true
	}
	return false
}

// String returns the compact JSON form.
func (n *Node) String() string {
	data, err := n.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid node: %v>", err)
	}
	return string(data)
}

// ToInterface converts to plain Go values: map[string]any, []any, int64,
// string, bool, []byte, or nil.
func (n *Node) ToInterface() any {
	switch n.Kind() {
	case Bool:
		return n.b
	case Int:
		return n.i
	case String:
		return n.s
	case Bytes:
		return append([]byte(nil), n.raw...)
	case List:
		out := make([]any, len(n.items))
		for idx, item := range n.items {
			out[idx] = item.ToInterface()
		}
		return out
	case Object:
		out := make(map[string]any, len(n.fields))
		for key, value := range n.fields {
			out[key] = value.ToInterface()
		}
		return out
	default:
		return nil
	}
}

// FromInterface builds a node from plain Go values. Map keys are sorted so
// the resulting object order is deterministic.
func FromInterface(v any) (*Node, error) {
	switch value := v.(type) {
	case nil:
		return New(), nil
	case *Node:
		return value.Clone(), nil
	case bool:
		return FromBool(value), nil
	case string:
		return FromString(value), nil
	case []byte:
		return FromBytes(value), nil
	case int:
		return FromInt(int64(value)), nil
	case int32:
		return FromInt(int64(value)), nil
	case int64:
		return FromInt(value), nil
	case uint64:
		return FromInt(int64(value)), nil
	case float64:
		if value == float64(int64(value)) {
			return FromInt(int64(value)), nil
		}
		return FromString(strconv.FormatFloat(value, 'g', -1, 64)), nil
	case []any:
		out := NewList()
		for _, item := range value {
			child, err := FromInterface(item)
			if err != nil {
				return nil, err
			}
			out.Add(child)
		}
		return out, nil
	case map[string]any:
		out := NewObject()
		for _, key := range sortedKeys(value) {
			child, err := FromInterface(value[key])
			if err != nil {
				return nil, err
			}
			out.Set(key, child)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("dmr: unsupported value type %T", v)
	}
}
