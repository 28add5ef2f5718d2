package controller

import (
	"github.com/drblury/kerneltest/internal/runtime/dmr"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/registry"
)

// resource is one node of the live model: its attribute values plus its
// children grouped by type, both in creation order.
type resource struct {
	attrs    *dmr.Node
	types    []string
	children map[string]*childSet
}

type childSet struct {
	names  []string
	byName map[string]*resource
}

func newResource() *resource {
	return &resource{attrs: dmr.NewObject(), children: make(map[string]*childSet)}
}

func (r *resource) clone() *resource {
	out := &resource{
		attrs:    r.attrs.Clone(),
		types:    append([]string(nil), r.types...),
		children: make(map[string]*childSet, len(r.children)),
	}
	for key, set := range r.children {
		copied := &childSet{names: append([]string(nil), set.names...), byName: make(map[string]*resource, len(set.byName))}
		for name, child := range set.byName {
			copied.byName[name] = child.clone()
		}
		out.children[key] = copied
	}
	return out
}

func (r *resource) child(element model.PathElement) (*resource, bool) {
	set, ok := r.children[element.Key]
	if !ok {
		return nil, false
	}
	child, ok := set.byName[element.Value]
	return child, ok
}

func (r *resource) addChild(element model.PathElement, child *resource) {
	set, ok := r.children[element.Key]
	if !ok {
		set = &childSet{byName: make(map[string]*resource)}
		r.children[element.Key] = set
		r.types = append(r.types, element.Key)
	}
	if _, exists := set.byName[element.Value]; !exists {
		set.names = append(set.names, element.Value)
	}
	set.byName[element.Value] = child
}

func (r *resource) removeChild(element model.PathElement) bool {
	set, ok := r.children[element.Key]
	if !ok {
		return false
	}
	if _, exists := set.byName[element.Value]; !exists {
		return false
	}
	delete(set.byName, element.Value)
	for idx, name := range set.names {
		if name == element.Value {
			set.names = append(set.names[:idx], set.names[idx+1:]...)
			break
		}
	}
	return true
}

func (r *resource) childNames(key string) []string {
	set, ok := r.children[key]
	if !ok {
		return nil
	}
	return append([]string(nil), set.names...)
}

func (r *resource) navigate(addr model.PathAddress) (*resource, bool) {
	current := r
	for _, element := range addr.Elements() {
		next, ok := current.child(element)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// read renders the resource the way read-resource returns it: registered
// attributes first, then child types. An empty child type is undefined and
// a non-recursive read lists child names with undefined values.
func (r *resource) read(reg *registry.ResourceRegistration, recursive, includeDefaults bool) *dmr.Node {
	out := dmr.NewObject()
	for _, def := range reg.Attributes() {
		value := r.attrs.Get(def.Name)
		switch {
		case value.IsDefined():
			out.Set(def.Name, value.Clone())
		case includeDefaults && def.Default.IsDefined():
			out.Set(def.Name, def.Default.Clone())
		default:
			out.Set(def.Name, dmr.New())
		}
	}
	for _, key := range r.attrs.Keys() {
		if !out.Has(key) {
			out.Set(key, r.attrs.Get(key).Clone())
		}
	}

	for _, key := range childTypes(reg) {
		names := r.childNames(key)
		if len(names) == 0 {
			out.Set(key, dmr.New())
			continue
		}
		group := dmr.NewObject()
		for _, name := range names {
			if !recursive {
				group.Set(name, dmr.New())
				continue
			}
			element := model.Element(key, name)
			child, _ := r.child(element)
			childReg, ok := reg.Find(model.Address(element))
			if !ok {
				continue
			}
			group.Set(name, child.read(childReg, true, includeDefaults))
		}
		out.Set(key, group)
	}
	return out
}

// childTypes lists the distinct child keys of reg in registration order.
func childTypes(reg *registry.ResourceRegistration) []string {
	seen := make(map[string]bool)
	var out []string
	for _, element := range reg.ChildElements() {
		if !seen[element.Key] {
			seen[element.Key] = true
			out = append(out, element.Key)
		}
	}
	return out
}
