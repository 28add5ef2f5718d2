// Package description dumps the full resource-type description of a
// registration tree so tests can assert a subsystem exposes exactly the
// management model they intend.
//
// Two entry points exist. ReadFullModelDescription walks the Immutable
// read view current controllers provide. ReadLegacyModelDescription walks
// the address-relative Legacy API and yields the same shape.
package description

import (
	"errors"
	"fmt"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/registry"
)

// ErrEntryPointMissing is returned when a registration does not offer the
// read view an entry point needs.
var ErrEntryPointMissing = errors.New("kerneltest: description entry point not available")

// Keys of the description tree.
const (
	KeyDescription      = "description"
	KeyAttributes       = "attributes"
	KeyOperations       = "operations"
	KeyChildren         = "children"
	KeyModelDescription = "model-description"
	KeyType             = "type"
	KeyRequired         = "required"
	KeyNillable         = "nillable"
	KeyDefault          = "default"
	KeyRequestProps     = "request-properties"
)

// Strategy dumps the description of a resolved registration.
type Strategy func(reg registry.Registration) (*dmr.Node, error)

// ReadFullModelDescription is the default strategy.
func ReadFullModelDescription(reg registry.Registration) (*dmr.Node, error) {
	imm, ok := reg.(registry.Immutable)
	if !ok {
		return nil, fmt.Errorf("%w: %T has no immutable view", ErrEntryPointMissing, reg)
	}
	return describe(imm), nil
}

func describe(reg registry.Immutable) *dmr.Node {
	out := dmr.New()
	out.SetString(KeyDescription, reg.Description())

	attrs := dmr.NewObject()
	for _, def := range reg.Attributes() {
		attrs.Set(def.Name, Attribute(def))
	}
	out.Set(KeyAttributes, attrs)

	ops := dmr.NewObject()
	for _, entry := range reg.Operations() {
		ops.Set(entry.Name, Operation(entry))
	}
	out.Set(KeyOperations, ops)

	children := dmr.NewObject()
	for _, element := range reg.ChildElements() {
		child, ok := reg.Child(element)
		if !ok {
			continue
		}
		childType(children, element.Key, child.Description()).
			Get(KeyModelDescription).
			Set(element.Value, describe(child))
	}
	out.Set(KeyChildren, children)
	return out
}

// ReadLegacyModelDescription is the alternate strategy for controllers
// exposing only the Legacy read API.
func ReadLegacyModelDescription(reg registry.Registration) (*dmr.Node, error) {
	legacy, ok := reg.(registry.Legacy)
	if !ok {
		return nil, fmt.Errorf("%w: %T has no legacy view", ErrEntryPointMissing, reg)
	}
	return describeLegacy(legacy, model.Root)
}

func describeLegacy(reg registry.Legacy, addr model.PathAddress) (*dmr.Node, error) {
	text, err := reg.GetDescription(addr)
	if err != nil {
		return nil, err
	}
	out := dmr.New()
	out.SetString(KeyDescription, text)

	names, err := reg.GetAttributeNames(addr)
	if err != nil {
		return nil, err
	}
	attrs := dmr.NewObject()
	for _, name := range names {
		def, err := reg.GetAttributeDefinition(addr, name)
		if err != nil {
			return nil, err
		}
		attrs.Set(name, Attribute(def))
	}
	out.Set(KeyAttributes, attrs)

	opNames, err := reg.GetOperationNames(addr)
	if err != nil {
		return nil, err
	}
	ops := dmr.NewObject()
	for _, name := range opNames {
		entry, err := reg.GetOperationEntry(addr, name)
		if err != nil {
			return nil, err
		}
		ops.Set(name, Operation(entry))
	}
	out.Set(KeyOperations, ops)

	elements, err := reg.GetChildAddresses(addr)
	if err != nil {
		return nil, err
	}
	children := dmr.NewObject()
	for _, element := range elements {
		childAddr := addr.Append(element)
		child, err := describeLegacy(reg, childAddr)
		if err != nil {
			return nil, err
		}
		childType(children, element.Key, child.Get(KeyDescription).AsString()).
			Get(KeyModelDescription).
			Set(element.Value, child)
	}
	out.Set(KeyChildren, children)
	return out, nil
}

// childType returns the children entry for key, creating it with the
// description of the first registration seen for that key.
func childType(children *dmr.Node, key, text string) *dmr.Node {
	if entry := children.Get(key); entry != nil {
		return entry
	}
	entry := dmr.New()
	entry.SetString(KeyDescription, text)
	entry.Set(KeyModelDescription, dmr.NewObject())
	children.Set(key, entry)
	return entry
}

// Attribute renders one attribute definition.
func Attribute(def registry.AttributeDefinition) *dmr.Node {
	out := dmr.New()
	out.SetString(KeyType, def.Type.String())
	out.SetString(KeyDescription, def.Description)
	out.SetBool(KeyRequired, def.Required)
	out.SetBool(KeyNillable, def.Nillable)
	if def.Default.IsDefined() {
		out.Set(KeyDefault, def.Default.Clone())
	}
	return out
}

// Operation renders one operation entry.
func Operation(entry registry.OperationEntry) *dmr.Node {
	out := dmr.New()
	out.SetString(KeyDescription, entry.Description)
	params := dmr.NewObject()
	for _, param := range entry.Parameters {
		params.Set(param.Name, Attribute(param))
	}
	out.Set(KeyRequestProps, params)
	return out
}

// AttributeNames lists the attribute names of a description node.
func AttributeNames(desc *dmr.Node) []string {
	return desc.Get(KeyAttributes).Keys()
}
