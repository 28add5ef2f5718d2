package model

import (
	"fmt"
	"strings"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
)

// Wildcard matches any value of a path element key.
const Wildcard = "*"

// PathElement is one key=value step of a resource address.
type PathElement struct {
	Key   string
	Value string
}

// Element builds a path element.
func Element(key, value string) PathElement {
	return PathElement{Key: key, Value: value}
}

// WildcardElement builds key=*.
func WildcardElement(key string) PathElement {
	return PathElement{Key: key, Value: Wildcard}
}

func (e PathElement) IsWildcard() bool {
	return e.Value == Wildcard
}

// Matches reports whether e addresses other, honouring wildcards on e.
func (e PathElement) Matches(other PathElement) bool {
	return e.Key == other.Key && (e.IsWildcard() || e.Value == other.Value)
}

func (e PathElement) String() string {
	return e.Key + "=" + e.Value
}

// PathAddress is an immutable ordered list of path elements. The zero value
// is the root address.
type PathAddress struct {
	elements []PathElement
}

// Root is the empty address.
var Root = PathAddress{}

// Address builds an address from elements.
func Address(elements ...PathElement) PathAddress {
	return PathAddress{elements: append([]PathElement(nil), elements...)}
}

// Subsystem is a shorthand for /subsystem=name.
func Subsystem(name string) PathAddress {
	return Address(Element(SubsystemKey, name))
}

// Append returns a new address with elements added to the end.
func (a PathAddress) Append(elements ...PathElement) PathAddress {
	out := make([]PathElement, 0, len(a.elements)+len(elements))
	out = append(out, a.elements...)
	out = append(out, elements...)
	return PathAddress{elements: out}
}

func (a PathAddress) Len() int { return len(a.elements) }

func (a PathAddress) IsRoot() bool { return len(a.elements) == 0 }

// Elements returns a copy of the address elements.
func (a PathAddress) Elements() []PathElement {
	return append([]PathElement(nil), a.elements...)
}

// Element returns the i-th element.
func (a PathAddress) Element(i int) PathElement {
	return a.elements[i]
}

// Last returns the final element; the zero element for the root.
func (a PathAddress) Last() PathElement {
	if len(a.elements) == 0 {
		return PathElement{}
	}
	return a.elements[len(a.elements)-1]
}

// Parent drops the final element. The parent of the root is the root.
func (a PathAddress) Parent() PathAddress {
	if len(a.elements) == 0 {
		return a
	}
	return a.SubAddress(0, len(a.elements)-1)
}

// SubAddress returns elements [from, to).
func (a PathAddress) SubAddress(from, to int) PathAddress {
	return Address(a.elements[from:to]...)
}

// Equal compares element by element.
func (a PathAddress) Equal(other PathAddress) bool {
	if len(a.elements) != len(other.elements) {
		return false
	}
	for idx := range a.elements {
		if a.elements[idx] != other.elements[idx] {
			return false
		}
	}
	return true
}

// String renders the CLI form, "/" for the root.
func (a PathAddress) String() string {
	if len(a.elements) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, element := range a.elements {
		b.WriteByte('/')
		b.WriteString(element.String())
	}
	return b.String()
}

// ToNode renders the address as a list of single-key objects.
func (a PathAddress) ToNode() *dmr.Node {
	out := dmr.NewList()
	for _, element := range a.elements {
		out.Add(dmr.New().SetString(element.Key, element.Value))
	}
	return out
}

// ParseAddress parses the CLI form, for example /subsystem=foo/child=bar.
func ParseAddress(s string) (PathAddress, error) {
	trimmed := strings.Trim(strings.TrimSpace(s), "/")
	if trimmed == "" {
		return Root, nil
	}
	var elements []PathElement
	for _, segment := range strings.Split(trimmed, "/") {
		key, value, ok := strings.Cut(segment, "=")
		if !ok || key == "" || value == "" {
			return PathAddress{}, fmt.Errorf("model: invalid address segment %q in %q", segment, s)
		}
		elements = append(elements, Element(key, value))
	}
	return Address(elements...), nil
}

// MustParseAddress panics when s is not a valid address.
func MustParseAddress(s string) PathAddress {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromNode accepts the list form produced by ToNode, an object with
// key/value pairs in order, a CLI string, or undefined for the root.
func AddressFromNode(n *dmr.Node) (PathAddress, error) {
	switch n.Kind() {
	case dmr.Undefined:
		return Root, nil
	case dmr.String:
		return ParseAddress(n.AsString())
	case dmr.List:
		var elements []PathElement
		for _, item := range n.Items() {
			keys := item.Keys()
			if len(keys) != 1 {
				return PathAddress{}, fmt.Errorf("model: address element %s must have exactly one key", item)
			}
			elements = append(elements, Element(keys[0], item.Get(keys[0]).AsString()))
		}
		return Address(elements...), nil
	case dmr.Object:
		var elements []PathElement
		for _, key := range n.Keys() {
			elements = append(elements, Element(key, n.Get(key).AsString()))
		}
		return Address(elements...), nil
	default:
		return PathAddress{}, fmt.Errorf("model: cannot read address from %s node", n.Kind())
	}
}
