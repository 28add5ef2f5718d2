package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/registry"
)

func noop(ctx registry.OperationContext, op *dmr.Node) (*dmr.Node, error) { return nil, nil }

func testRoot(t *testing.T) *registry.ResourceRegistration {
	t.Helper()
	root := registry.NewRoot("root")
	require.NoError(t, root.RegisterOperation(registry.OperationEntry{Name: model.Add, Inherited: true, Handler: noop}))
	require.NoError(t, root.RegisterOperation(registry.OperationEntry{Name: model.Composite, Handler: noop}))
	require.NoError(t, root.RegisterOperation(registry.OperationEntry{
		Name:      model.ReadResource,
		Inherited: true,
		ReadOnly:  true,
		Handler:   noop,
		Parameters: []registry.AttributeDefinition{
			{Name: model.Recursive, Type: dmr.Bool},
			{Name: model.IncludeDefaults, Type: dmr.Bool},
		},
	}))
	sub, err := root.AddChild(model.Element(model.SubsystemKey, "test"), "test")
	require.NoError(t, err)
	require.NoError(t, sub.RegisterAttribute(registry.AttributeDefinition{Name: "name", Type: dmr.String, Required: true}))
	require.NoError(t, sub.RegisterAttribute(registry.AttributeDefinition{Name: "size", Type: dmr.Int}))
	return root
}

func TestValidOperations(t *testing.T) {
	v := NewOperationValidator(testRoot(t))
	ops := []*dmr.Node{
		model.CreateAddOperation(model.Subsystem("test"), dmr.New().SetString("name", "x").SetString("size", "12")),
		model.CreateReadResourceOperation(model.Subsystem("test"), true),
		model.CreateCompositeOperation(model.CreateReadResourceOperation(model.Root, false)),
	}
	assert.NoError(t, v.ValidateOperations(ops))
}

func TestInvalidOperations(t *testing.T) {
	v := NewOperationValidator(testRoot(t))

	tests := []struct {
		name string
		op   *dmr.Node
		want error
	}{
		{"missing name", dmr.New().Set(model.OPAddr, dmr.NewList()), rterrors.ErrOperationInvalid},
		{"unknown address", model.CreateAddOperation(model.Subsystem("other"), nil), rterrors.ErrResourceNotFound},
		{"unknown operation", model.CreateOperation("explode", model.Subsystem("test")), rterrors.ErrOperationNotFound},
		{"unknown attribute", model.CreateAddOperation(model.Subsystem("test"), dmr.New().SetString("name", "x").SetString("color", "red")), rterrors.ErrUnknownAttribute},
		{"missing required", model.CreateAddOperation(model.Subsystem("test"), nil), rterrors.ErrOperationInvalid},
		{"bad type", model.CreateAddOperation(model.Subsystem("test"), dmr.New().SetString("name", "x").SetString("size", "big")), rterrors.ErrOperationInvalid},
		{"bad step", model.CreateCompositeOperation(model.CreateOperation("explode", model.Root)), rterrors.ErrOperationNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, v.ValidateOperation(tc.op), tc.want)
		})
	}
}

func TestFilter(t *testing.T) {
	root := testRoot(t)
	bad := model.CreateAddOperation(model.Subsystem("test"), dmr.New().SetString("color", "red"))

	filter := NewFilter().AddOperation(model.Address(model.WildcardElement(model.SubsystemKey)), model.Add, ResolveOnly)
	assert.NoError(t, NewOperationValidator(root).WithFilter(filter).ValidateOperation(bad))

	unknown := model.CreateOperation("explode", model.Subsystem("test"))
	assert.Error(t, NewOperationValidator(root).WithFilter(filter).ValidateOperation(unknown))
	assert.NoError(t, NewOperationValidator(root).WithFilter(ValidateNone()).ValidateOperation(unknown))

	var nilFilter *Filter
	assert.Equal(t, Check, nilFilter.Action(model.Root, model.Add))
	assert.Equal(t, NoCheck, NewFilter().AddOperation(model.Root, model.Wildcard, NoCheck).Action(model.Root, "anything"))
}
