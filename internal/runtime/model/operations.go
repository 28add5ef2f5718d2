// Package model holds the addressing, versioning and operation-building
// primitives shared by every part of the kernel.
package model

import (
	"github.com/drblury/kerneltest/internal/runtime/dmr"
)

// Operation and parameter names understood by the kernel.
const (
	OP       = "operation"
	OPAddr   = "address"
	Name     = "name"
	Value    = "value"
	Outcome  = "outcome"
	Result   = "result"
	Success  = "success"
	Failed   = "failed"
	Failure  = "failure-description"
	Steps    = "steps"
	Module   = "module"
	Children = "children"
	Headers  = "operation-headers"

	RelativeTo = "relative-to"
	ReadOnly   = "read-only"

	SubsystemKey      = "subsystem"
	ExtensionKey      = "extension"
	PathKey           = "path"
	SystemPropertyKey = "system-property"

	Add                     = "add"
	Remove                  = "remove"
	Composite               = "composite"
	ReadResource            = "read-resource"
	ReadAttribute           = "read-attribute"
	WriteAttribute          = "write-attribute"
	UndefineAttribute       = "undefine-attribute"
	ReadResourceDescription = "read-resource-description"
	ReadChildrenNames       = "read-children-names"
	ChildType               = "child-type"

	Recursive       = "recursive"
	IncludeDefaults = "include-defaults"
	Operations      = "operations"
)

// CreateOperation builds {"operation": name, "address": [...]}.
func CreateOperation(name string, addr PathAddress) *dmr.Node {
	op := dmr.New()
	op.SetString(OP, name)
	op.Set(OPAddr, addr.ToNode())
	return op
}

// CreateAddOperation builds an add operation with params copied in order.
func CreateAddOperation(addr PathAddress, params *dmr.Node) *dmr.Node {
	op := CreateOperation(Add, addr)
	for _, key := range params.Keys() {
		op.Set(key, params.Get(key).Clone())
	}
	return op
}

func CreateRemoveOperation(addr PathAddress) *dmr.Node {
	return CreateOperation(Remove, addr)
}

func CreateReadAttributeOperation(addr PathAddress, attribute string) *dmr.Node {
	return CreateOperation(ReadAttribute, addr).SetString(Name, attribute)
}

func CreateWriteAttributeOperation(addr PathAddress, attribute string, value *dmr.Node) *dmr.Node {
	return CreateOperation(WriteAttribute, addr).SetString(Name, attribute).Set(Value, value)
}

func CreateUndefineAttributeOperation(addr PathAddress, attribute string) *dmr.Node {
	return CreateOperation(UndefineAttribute, addr).SetString(Name, attribute)
}

// CreateReadResourceOperation reads addr; recursive reads descend into
// every child.
func CreateReadResourceOperation(addr PathAddress, recursive bool) *dmr.Node {
	return CreateOperation(ReadResource, addr).SetBool(Recursive, recursive)
}

func CreateReadResourceDescriptionOperation(addr PathAddress, recursive bool) *dmr.Node {
	return CreateOperation(ReadResourceDescription, addr).
		SetBool(Recursive, recursive).
		SetBool(Operations, true)
}

func CreateReadChildrenNamesOperation(addr PathAddress, childType string) *dmr.Node {
	return CreateOperation(ReadChildrenNames, addr).SetString(ChildType, childType)
}

// CreateCompositeOperation wraps steps into a single composite operation.
func CreateCompositeOperation(steps ...*dmr.Node) *dmr.Node {
	op := CreateOperation(Composite, Root)
	list := dmr.NewList()
	for _, step := range steps {
		list.Add(step.Clone())
	}
	op.Set(Steps, list)
	return op
}

// OperationName reads the operation name.
func OperationName(op *dmr.Node) string {
	return op.Get(OP).AsString()
}

// OperationAddress reads the operation address.
func OperationAddress(op *dmr.Node) (PathAddress, error) {
	return AddressFromNode(op.Get(OPAddr))
}

// SuccessResult builds a successful outcome wrapping result.
func SuccessResult(result *dmr.Node) *dmr.Node {
	out := dmr.New().SetString(Outcome, Success)
	if result != nil {
		out.Set(Result, result)
	}
	return out
}

// FailureResult builds a failed outcome with a description.
func FailureResult(description string) *dmr.Node {
	return dmr.New().SetString(Outcome, Failed).SetString(Failure, description)
}

// IsSuccess reports whether a response node has outcome=success.
func IsSuccess(response *dmr.Node) bool {
	return response.Get(Outcome).AsString() == Success
}
