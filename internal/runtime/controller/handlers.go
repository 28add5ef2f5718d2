package controller

import (
	"fmt"

	"github.com/drblury/kerneltest/internal/runtime/description"
	"github.com/drblury/kerneltest/internal/runtime/dmr"
	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/registry"
	"github.com/drblury/kerneltest/internal/runtime/validation"
)

var (
	recursiveParam       = registry.AttributeDefinition{Name: model.Recursive, Type: dmr.Bool, Description: "Whether to include children", Default: dmr.FromBool(false)}
	includeDefaultsParam = registry.AttributeDefinition{Name: model.IncludeDefaults, Type: dmr.Bool, Description: "Whether unset attributes report their default", Default: dmr.FromBool(true)}
	nameParam            = registry.AttributeDefinition{Name: model.Name, Type: dmr.String, Description: "The attribute name", Required: true}
	valueParam           = registry.AttributeDefinition{Name: model.Value, Type: dmr.Undefined, Description: "The attribute value", Nillable: true}
)

// registerCore registers the global operations and the extension, path
// and system-property resource types.
func registerCore(s *ModelControllerService) error {
	root := s.root
	global := []registry.OperationEntry{
		{Name: model.ReadResource, Description: "Reads a resource", ReadOnly: true, Inherited: true,
			Parameters: []registry.AttributeDefinition{recursiveParam, includeDefaultsParam}, Handler: readResource},
		{Name: model.ReadAttribute, Description: "Reads an attribute", ReadOnly: true, Inherited: true,
			Parameters: []registry.AttributeDefinition{nameParam, includeDefaultsParam}, Handler: readAttribute},
		{Name: model.WriteAttribute, Description: "Writes an attribute", Inherited: true,
			Parameters: []registry.AttributeDefinition{nameParam, valueParam}, Handler: writeAttribute},
		{Name: model.UndefineAttribute, Description: "Undefines an attribute", Inherited: true,
			Parameters: []registry.AttributeDefinition{nameParam}, Handler: undefineAttribute},
		{Name: model.ReadResourceDescription, Description: "Describes a resource type", ReadOnly: true, Inherited: true,
			Parameters: []registry.AttributeDefinition{recursiveParam, {Name: model.Operations, Type: dmr.Bool}}, Handler: readResourceDescription},
		{Name: model.ReadChildrenNames, Description: "Lists the children of one type", ReadOnly: true, Inherited: true,
			Parameters: []registry.AttributeDefinition{{Name: model.ChildType, Type: dmr.String, Required: true}}, Handler: readChildrenNames},
		{Name: model.Add, Description: "Adds a resource", Inherited: true, Handler: genericAdd},
		{Name: model.Remove, Description: "Removes a resource", Inherited: true, Handler: genericRemove},
		{Name: model.Composite, Description: "Runs steps as one unit", Handler: composite},
	}
	for _, entry := range global {
		if err := root.RegisterOperation(entry); err != nil {
			return err
		}
	}

	ext, err := root.AddChild(model.WildcardElement(model.ExtensionKey), "An extension module")
	if err != nil {
		return err
	}
	if err := ext.RegisterAttribute(registry.AttributeDefinition{Name: model.Module, Type: dmr.String, Description: "The module name", Nillable: true}); err != nil {
		return err
	}
	if err := ext.RegisterOperation(registry.OperationEntry{Name: model.Add, Description: "Initializes an extension", Handler: s.addExtension}); err != nil {
		return err
	}

	path, err := root.AddChild(model.WildcardElement(model.PathKey), "A named filesystem path")
	if err != nil {
		return err
	}
	for _, def := range []registry.AttributeDefinition{
		{Name: model.PathKey, Type: dmr.String, Description: "The path", Required: true},
		{Name: model.RelativeTo, Type: dmr.String, Description: "The path this one is relative to", Nillable: true},
		{Name: model.ReadOnly, Type: dmr.Bool, Description: "Whether the path can be removed", Nillable: true, Default: dmr.FromBool(false)},
	} {
		if err := path.RegisterAttribute(def); err != nil {
			return err
		}
	}
	if err := path.RegisterOperation(registry.OperationEntry{Name: model.Add, Description: "Defines a path", Handler: s.addPath}); err != nil {
		return err
	}
	if err := path.RegisterOperation(registry.OperationEntry{Name: model.Remove, Description: "Removes a path", Handler: s.removePath}); err != nil {
		return err
	}

	prop, err := root.AddChild(model.WildcardElement(model.SystemPropertyKey), "A system property")
	if err != nil {
		return err
	}
	return prop.RegisterAttribute(registry.AttributeDefinition{Name: model.Value, Type: dmr.String, Description: "The property value", Nillable: true})
}

func boolParam(op *dmr.Node, def registry.AttributeDefinition) (bool, error) {
	value := op.Get(def.Name)
	if !value.IsDefined() {
		value = def.Default
	}
	if !value.IsDefined() {
		return false, nil
	}
	return value.AsBool()
}

func readResource(ctx registry.OperationContext, op *dmr.Node) (*dmr.Node, error) {
	recursive, err := boolParam(op, recursiveParam)
	if err != nil {
		return nil, err
	}
	includeDefaults, err := boolParam(op, includeDefaultsParam)
	if err != nil {
		return nil, err
	}
	return ctx.ReadResource(ctx.Address(), recursive, includeDefaults)
}

func attributeOf(ctx registry.OperationContext, op *dmr.Node) (registry.AttributeDefinition, error) {
	name := op.Get(model.Name).AsString()
	def, ok := ctx.Registration().Attribute(name)
	if !ok {
		return def, fmt.Errorf("%w: %q at %s", rterrors.ErrUnknownAttribute, name, ctx.Address())
	}
	return def, nil
}

func readAttribute(ctx registry.OperationContext, op *dmr.Node) (*dmr.Node, error) {
	def, err := attributeOf(ctx, op)
	if err != nil {
		return nil, err
	}
	includeDefaults, err := boolParam(op, includeDefaultsParam)
	if err != nil {
		return nil, err
	}
	attrs, err := ctx.Model()
	if err != nil {
		return nil, err
	}
	value := attrs.Get(def.Name)
	if !value.IsDefined() && includeDefaults {
		value = def.Default
	}
	return value.Clone(), nil
}

func writeAttribute(ctx registry.OperationContext, op *dmr.Node) (*dmr.Node, error) {
	def, err := attributeOf(ctx, op)
	if err != nil {
		return nil, err
	}
	value := op.Get(model.Value)
	if value.IsDefined() {
		if err := validation.CheckType(def, value); err != nil {
			return nil, err
		}
	}
	attrs, err := ctx.Model()
	if err != nil {
		return nil, err
	}
	attrs.Set(def.Name, value.Clone())
	return nil, nil
}

func undefineAttribute(ctx registry.OperationContext, op *dmr.Node) (*dmr.Node, error) {
	def, err := attributeOf(ctx, op)
	if err != nil {
		return nil, err
	}
	attrs, err := ctx.Model()
	if err != nil {
		return nil, err
	}
	attrs.Set(def.Name, dmr.New())
	return nil, nil
}

func readResourceDescription(ctx registry.OperationContext, op *dmr.Node) (*dmr.Node, error) {
	return description.ReadFullModelDescription(ctx.Registration())
}

func readChildrenNames(ctx registry.OperationContext, op *dmr.Node) (*dmr.Node, error) {
	names, err := ctx.ChildNames(op.Get(model.ChildType).AsString())
	if err != nil {
		return nil, err
	}
	out := dmr.NewList()
	for _, name := range names {
		out.Add(dmr.FromString(name))
	}
	return out, nil
}

// genericAdd creates the resource and copies the defined parameters that
// are registered attributes.
func genericAdd(ctx registry.OperationContext, op *dmr.Node) (*dmr.Node, error) {
	attrs, err := ctx.CreateResource()
	if err != nil {
		return nil, err
	}
	for _, def := range ctx.Registration().Attributes() {
		if value := op.Get(def.Name); value.IsDefined() {
			attrs.Set(def.Name, value.Clone())
		}
	}
	return nil, nil
}

func genericRemove(ctx registry.OperationContext, op *dmr.Node) (*dmr.Node, error) {
	return nil, ctx.RemoveResource()
}

// composite runs every step and fails on the first failing step.
func composite(ctx registry.OperationContext, op *dmr.Node) (*dmr.Node, error) {
	result := dmr.NewObject()
	for idx, step := range op.Get(model.Steps).Items() {
		stepResult, err := ctx.Execute(step)
		if err != nil {
			return nil, fmt.Errorf("step-%d: %w", idx+1, err)
		}
		result.Set(fmt.Sprintf("step-%d", idx+1), model.SuccessResult(stepResult))
	}
	return result, nil
}

func (s *ModelControllerService) addExtension(ctx registry.OperationContext, op *dmr.Node) (*dmr.Node, error) {
	module := op.Get(model.Module).AsString()
	if module == "" {
		module = ctx.Address().Last().Value
	}
	if err := s.params.Extensions.Initialize(module, s.extensionTarget()); err != nil {
		return nil, err
	}
	attrs, err := ctx.CreateResource()
	if err != nil {
		return nil, err
	}
	attrs.SetString(model.Module, module)
	return nil, nil
}

func (s *ModelControllerService) addPath(ctx registry.OperationContext, op *dmr.Node) (*dmr.Node, error) {
	name := ctx.Address().Last().Value
	path := op.Get(model.PathKey).AsString()
	relativeTo := op.Get(model.RelativeTo).AsString()
	readOnly, err := boolParam(op, registry.AttributeDefinition{Name: model.ReadOnly})
	if err != nil {
		return nil, err
	}
	attrs, err := ctx.CreateResource()
	if err != nil {
		return nil, err
	}
	if readOnly {
		err = s.paths.AddReadOnlyPath(name, path, relativeTo)
	} else {
		err = s.paths.AddPath(name, path, relativeTo)
	}
	if err != nil {
		return nil, err
	}
	attrs.SetString(model.PathKey, path)
	if relativeTo != "" {
		attrs.SetString(model.RelativeTo, relativeTo)
	}
	if op.Has(model.ReadOnly) {
		attrs.SetBool(model.ReadOnly, readOnly)
	}
	return nil, nil
}

func (s *ModelControllerService) removePath(ctx registry.OperationContext, op *dmr.Node) (*dmr.Node, error) {
	if err := s.paths.RemovePath(ctx.Address().Last().Value); err != nil {
		return nil, err
	}
	return nil, ctx.RemoveResource()
}
