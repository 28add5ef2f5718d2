// Package registry describes resource types: which attributes, operations
// and child types a resource at a given address exposes.
//
// Registrations form a tree that mirrors the address space. Wildcard
// registrations (key=*) match any value. Controllers expose the tree
// through two read views: Immutable, walked by the current description
// dump, and Legacy, the address-relative API older controllers offered.
package registry

import (
	"fmt"
	"sync"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/model"
)

// AttributeDefinition declares one attribute of a resource type.
type AttributeDefinition struct {
	Name        string
	Type        dmr.Kind
	Description string
	Required    bool
	Nillable    bool
	Default     *dmr.Node
}

// OperationContext is what an operation handler sees while it runs.
type OperationContext interface {
	// Address is the address the operation targets.
	Address() model.PathAddress
	// Model returns the mutable attribute model of the target resource.
	Model() (*dmr.Node, error)
	// CreateResource adds a resource at the target address.
	CreateResource() (*dmr.Node, error)
	// RemoveResource removes the target resource and its children.
	RemoveResource() error
	// ReadResource returns a copy of the resource at addr.
	ReadResource(addr model.PathAddress, recursive, includeDefaults bool) (*dmr.Node, error)
	// ChildNames lists the values of existing children of the given type.
	ChildNames(childType string) ([]string, error)
	// Registration is the registration matching Address.
	Registration() *ResourceRegistration
	// Execute runs a nested step, for example inside a composite.
	Execute(op *dmr.Node) (*dmr.Node, error)
	// Booting reports whether the operation is part of the boot log.
	Booting() bool
	// Attach records transformer data for the attachment grabber.
	Attach(key string, value *dmr.Node)
}

// OperationHandler executes one operation and returns its result.
type OperationHandler func(ctx OperationContext, op *dmr.Node) (*dmr.Node, error)

// OperationEntry declares an operation available on a resource type.
// Inherited entries registered on a parent apply to every descendant.
type OperationEntry struct {
	Name        string
	Description string
	Parameters  []AttributeDefinition
	ReadOnly    bool
	Inherited   bool
	Handler     OperationHandler
}

// Registration is the navigation and mutation contract every controller
// exposes for its root resource type.
type Registration interface {
	Address() model.PathAddress
	Description() string
	Resolve(addr model.PathAddress) (Registration, bool)
	RegisterSubModel(element model.PathElement, description string) (Registration, error)
	RegisterAttribute(def AttributeDefinition) error
	RegisterOperation(entry OperationEntry) error
	Attribute(name string) (AttributeDefinition, bool)
	Operation(name string) (OperationEntry, bool)
}

// Immutable is the read view used by the current description dump.
type Immutable interface {
	Address() model.PathAddress
	Description() string
	Attributes() []AttributeDefinition
	Operations() []OperationEntry
	ChildElements() []model.PathElement
	Child(element model.PathElement) (Immutable, bool)
}

// Legacy is the address-relative read API of older controllers.
type Legacy interface {
	GetDescription(addr model.PathAddress) (string, error)
	GetAttributeNames(addr model.PathAddress) ([]string, error)
	GetAttributeDefinition(addr model.PathAddress, name string) (AttributeDefinition, error)
	GetOperationNames(addr model.PathAddress) ([]string, error)
	GetOperationEntry(addr model.PathAddress, name string) (OperationEntry, error)
	GetChildAddresses(addr model.PathAddress) ([]model.PathElement, error)
}

// ResourceRegistration is the concrete registration tree node. It
// implements Registration, Immutable and Legacy. Safe for concurrent use.
type ResourceRegistration struct {
	mu          sync.RWMutex
	element     model.PathElement
	parent      *ResourceRegistration
	description string

	attributeOrder []string
	attributes     map[string]AttributeDefinition
	operationOrder []string
	operations     map[string]OperationEntry
	children       []*ResourceRegistration
}

// NewRoot creates the root registration.
func NewRoot(description string) *ResourceRegistration {
	return newRegistration(model.PathElement{}, nil, description)
}

func newRegistration(element model.PathElement, parent *ResourceRegistration, description string) *ResourceRegistration {
	return &ResourceRegistration{
		element:     element,
		parent:      parent,
		description: description,
		attributes:  make(map[string]AttributeDefinition),
		operations:  make(map[string]OperationEntry),
	}
}

func (r *ResourceRegistration) PathElement() model.PathElement { return r.element }

// Address is the registration address, wildcards included.
func (r *ResourceRegistration) Address() model.PathAddress {
	if r.parent == nil {
		return model.Root
	}
	return r.parent.Address().Append(r.element)
}

func (r *ResourceRegistration) Description() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.description
}

// RegisterSubModel adds a child resource type.
func (r *ResourceRegistration) RegisterSubModel(element model.PathElement, description string) (Registration, error) {
	child, err := r.AddChild(element, description)
	if err != nil {
		return nil, err
	}
	return child, nil
}

// AddChild is RegisterSubModel returning the concrete type.
func (r *ResourceRegistration) AddChild(element model.PathElement, description string) (*ResourceRegistration, error) {
	if element.Key == "" || element.Value == "" {
		return nil, fmt.Errorf("registry: invalid path element %q", element)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, child := range r.children {
		if child.element == element {
			return nil, fmt.Errorf("%w: %s", rterrors.ErrDuplicateResource, r.Address().Append(element))
		}
	}
	child := newRegistration(element, r, description)
	r.children = append(r.children, child)
	return child, nil
}

// RemoveChild drops a child resource type; a missing child is ignored.
func (r *ResourceRegistration) RemoveChild(element model.PathElement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for idx, child := range r.children {
		if child.element == element {
			r.children = append(r.children[:idx], r.children[idx+1:]...)
			return
		}
	}
}

func (r *ResourceRegistration) RegisterAttribute(def AttributeDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("registry: attribute name is required at %s", r.Address())
	}
	if def.Type == dmr.Undefined {
		def.Type = dmr.String
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.attributes[def.Name]; exists {
		return fmt.Errorf("registry: attribute %q already registered at %s", def.Name, r.Address())
	}
	r.attributeOrder = append(r.attributeOrder, def.Name)
	r.attributes[def.Name] = def
	return nil
}

func (r *ResourceRegistration) RegisterOperation(entry OperationEntry) error {
	if entry.Name == "" || entry.Handler == nil {
		return fmt.Errorf("registry: operation needs a name and handler at %s", r.Address())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.operations[entry.Name]; !exists {
		r.operationOrder = append(r.operationOrder, entry.Name)
	}
	r.operations[entry.Name] = entry
	return nil
}

func (r *ResourceRegistration) Attribute(name string) (AttributeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.attributes[name]
	return def, ok
}

// Attributes returns attribute definitions in registration order.
func (r *ResourceRegistration) Attributes() []AttributeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AttributeDefinition, 0, len(r.attributeOrder))
	for _, name := range r.attributeOrder {
		out = append(out, r.attributes[name])
	}
	return out
}

// Operation finds name on this registration, then inherited entries on
// its ancestors.
func (r *ResourceRegistration) Operation(name string) (OperationEntry, bool) {
	r.mu.RLock()
	entry, ok := r.operations[name]
	r.mu.RUnlock()
	if ok {
		return entry, true
	}
	for ancestor := r.parent; ancestor != nil; ancestor = ancestor.parent {
		ancestor.mu.RLock()
		entry, ok = ancestor.operations[name]
		ancestor.mu.RUnlock()
		if ok && entry.Inherited {
			return entry, true
		}
	}
	return OperationEntry{}, false
}

// Operations returns own entries in registration order followed by
// inherited ones not overridden locally.
func (r *ResourceRegistration) Operations() []OperationEntry {
	seen := make(map[string]bool)
	var out []OperationEntry
	collect := func(reg *ResourceRegistration, inheritedOnly bool) {
		reg.mu.RLock()
		defer reg.mu.RUnlock()
		for _, name := range reg.operationOrder {
			entry := reg.operations[name]
			if seen[name] || (inheritedOnly && !entry.Inherited) {
				continue
			}
			seen[name] = true
			out = append(out, entry)
		}
	}
	collect(r, false)
	for ancestor := r.parent; ancestor != nil; ancestor = ancestor.parent {
		collect(ancestor, true)
	}
	return out
}

// ChildElements lists child registration elements in registration order.
func (r *ResourceRegistration) ChildElements() []model.PathElement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.PathElement, 0, len(r.children))
	for _, child := range r.children {
		out = append(out, child.element)
	}
	return out
}

// Child returns the exact child registration for element.
func (r *ResourceRegistration) Child(element model.PathElement) (Immutable, bool) {
	child := r.child(element, false)
	if child == nil {
		return nil, false
	}
	return child, true
}

// child prefers an exact match and falls back to the key=* registration
// when matchWildcard is set.
func (r *ResourceRegistration) child(element model.PathElement, matchWildcard bool) *ResourceRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var wildcard *ResourceRegistration
	for _, child := range r.children {
		if child.element == element {
			return child
		}
		if matchWildcard && child.element.Key == element.Key && child.element.IsWildcard() {
			wildcard = child
		}
	}
	return wildcard
}

// Find resolves addr to the concrete registration.
func (r *ResourceRegistration) Find(addr model.PathAddress) (*ResourceRegistration, bool) {
	current := r
	for _, element := range addr.Elements() {
		current = current.child(element, true)
		if current == nil {
			return nil, false
		}
	}
	return current, true
}

func (r *ResourceRegistration) Resolve(addr model.PathAddress) (Registration, bool) {
	found, ok := r.Find(addr)
	if !ok {
		return nil, false
	}
	return found, true
}

// MustFind is Find for registrations the caller installed itself.
func (r *ResourceRegistration) MustFind(addr model.PathAddress) *ResourceRegistration {
	found, ok := r.Find(addr)
	if !ok {
		panic(fmt.Sprintf("registry: no registration at %s", addr))
	}
	return found
}

func (r *ResourceRegistration) find(addr model.PathAddress) (*ResourceRegistration, error) {
	found, ok := r.Find(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", rterrors.ErrResourceNotFound, addr)
	}
	return found, nil
}

func (r *ResourceRegistration) GetDescription(addr model.PathAddress) (string, error) {
	found, err := r.find(addr)
	if err != nil {
		return "", err
	}
	return found.Description(), nil
}

func (r *ResourceRegistration) GetAttributeNames(addr model.PathAddress) ([]string, error) {
	found, err := r.find(addr)
	if err != nil {
		return nil, err
	}
	found.mu.RLock()
	defer found.mu.RUnlock()
	return append([]string(nil), found.attributeOrder...), nil
}

func (r *ResourceRegistration) GetAttributeDefinition(addr model.PathAddress, name string) (AttributeDefinition, error) {
	found, err := r.find(addr)
	if err != nil {
		return AttributeDefinition{}, err
	}
	def, ok := found.Attribute(name)
	if !ok {
		return AttributeDefinition{}, fmt.Errorf("%w: %s at %s", rterrors.ErrUnknownAttribute, name, addr)
	}
	return def, nil
}

func (r *ResourceRegistration) GetOperationNames(addr model.PathAddress) ([]string, error) {
	found, err := r.find(addr)
	if err != nil {
		return nil, err
	}
	entries := found.Operations()
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	return names, nil
}

func (r *ResourceRegistration) GetOperationEntry(addr model.PathAddress, name string) (OperationEntry, error) {
	found, err := r.find(addr)
	if err != nil {
		return OperationEntry{}, err
	}
	entry, ok := found.Operation(name)
	if !ok {
		return OperationEntry{}, fmt.Errorf("%w: %s at %s", rterrors.ErrOperationNotFound, name, addr)
	}
	return entry, nil
}

func (r *ResourceRegistration) GetChildAddresses(addr model.PathAddress) ([]model.PathElement, error) {
	found, err := r.find(addr)
	if err != nil {
		return nil, err
	}
	return found.ChildElements(), nil
}
