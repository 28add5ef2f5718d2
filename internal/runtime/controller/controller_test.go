package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/kerneltest/internal/runtime/container"
	"github.com/drblury/kerneltest/internal/runtime/dmr"
	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/extension"
	"github.com/drblury/kerneltest/internal/runtime/format"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/persister"
	"github.com/drblury/kerneltest/internal/runtime/registry"
	"github.com/drblury/kerneltest/internal/runtime/transform"
	"github.com/drblury/kerneltest/internal/runtime/validation"
)

var testSubsystem = model.Subsystem("test")

func testExtension() extension.Extension {
	return extension.New("test.ext", func(ctx *extension.Context) error {
		sub, err := ctx.RegisterSubsystem("test", model.NewVersion(2, 0, 0))
		if err != nil {
			return err
		}
		reg, err := sub.RegisterSubsystemModel("The test subsystem")
		if err != nil {
			return err
		}
		if err := reg.RegisterAttribute(registry.AttributeDefinition{Name: "name", Type: dmr.String, Description: "A name"}); err != nil {
			return err
		}
		if err := reg.RegisterAttribute(registry.AttributeDefinition{Name: "size", Type: dmr.Int, Default: dmr.FromInt(5)}); err != nil {
			return err
		}
		if err := reg.RegisterOperation(registry.OperationEntry{Name: "tag", Handler: func(ctx registry.OperationContext, op *dmr.Node) (*dmr.Node, error) {
			ctx.Attach("tagged", dmr.FromBool(true))
			return nil, nil
		}}); err != nil {
			return err
		}
		if _, err := reg.AddChild(model.WildcardElement("child"), "A child"); err != nil {
			return err
		}
		return sub.RegisterTransformers(model.NewVersion(1, 0, 0), transform.Transformers{Resource: transform.DiscardAttributes("size")})
	})
}

func extensionOp() *dmr.Node {
	return model.CreateAddOperation(model.Address(model.Element(model.ExtensionKey, "test.ext")), dmr.New().SetString(model.Module, "test.ext"))
}

func subsystemOp() *dmr.Node {
	return model.CreateAddOperation(testSubsystem, dmr.New().SetString("name", "x"))
}

type setup struct {
	ops       []*dmr.Node
	persist   bool
	grabber   bool
	filter    *validation.Filter
	factory   Factory
	transform bool
}

func boot(t *testing.T, s setup) (Controller, *persister.ConfigurationPersister) {
	t.Helper()
	p, err := persister.New(s.ops, format.JSON(), s.persist)
	require.NoError(t, err)
	factory := s.factory
	if factory == nil {
		factory = DefaultFactory()
	}
	ctrl, err := factory.Create(FactoryParams{
		MainExtension:        testExtension(),
		Extensions:           extension.NewRegistry(nil),
		Persister:            p,
		ValidatorFilter:      s.filter,
		RegisterTransformers: s.transform,
		AttachmentGrabber:    s.grabber,
	})
	require.NoError(t, err)
	require.NoError(t, ctrl.Start(context.Background()))
	return ctrl, p
}

func TestBootReplaysOperations(t *testing.T) {
	ctrl, _ := boot(t, setup{ops: []*dmr.Node{extensionOp(), subsystemOp()}})

	ok, err := ctrl.Boot().Wait()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, DefaultID, ctrl.ImplementationID())

	response := ctrl.Execute(model.CreateReadResourceOperation(testSubsystem, false))
	require.True(t, model.IsSuccess(response), response.String())
	result := response.Get(model.Result)
	assert.Equal(t, "x", result.Get("name").AsString())
	size, err := result.Get("size").AsInt()
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)

	root := ctrl.Execute(model.CreateReadResourceOperation(model.Root, true)).Get(model.Result)
	assert.Equal(t, "test.ext", root.Get(model.ExtensionKey).Get("test.ext").Get(model.Module).AsString())
	assert.True(t, root.Get(model.SubsystemKey).Has("test"))
}

func TestBootStopsAtFirstFailure(t *testing.T) {
	bad := model.CreateAddOperation(model.Subsystem("missing"), nil)
	ctrl, _ := boot(t, setup{ops: []*dmr.Node{subsystemOp(), bad, model.CreateWriteAttributeOperation(testSubsystem, "name", dmr.FromString("y"))}})

	ok, err := ctrl.Boot().Wait()
	assert.False(t, ok)
	assert.ErrorIs(t, err, rterrors.ErrResourceNotFound)

	name := ctrl.Execute(model.CreateReadAttributeOperation(testSubsystem, "name"))
	require.True(t, model.IsSuccess(name))
	assert.Equal(t, "x", name.Get(model.Result).AsString())
}

func TestBootFailureFromHandler(t *testing.T) {
	ctrl, _ := boot(t, setup{ops: []*dmr.Node{subsystemOp(), subsystemOp()}})

	ok, err := ctrl.Boot().Wait()
	assert.False(t, ok)
	assert.True(t, IsOperationFailure(err))
	assert.ErrorIs(t, err, rterrors.ErrOperationFailed)
}

func TestValidatorFilterSkipsBootValidation(t *testing.T) {
	odd := model.CreateAddOperation(testSubsystem, dmr.New().SetString("name", "x").SetString("unknown", "y"))

	ctrl, _ := boot(t, setup{ops: []*dmr.Node{odd}})
	ok, err := ctrl.Boot().Wait()
	assert.False(t, ok)
	assert.ErrorIs(t, err, rterrors.ErrUnknownAttribute)

	ctrl, _ = boot(t, setup{ops: []*dmr.Node{odd}, filter: validation.ValidateNone()})
	ok, err = ctrl.Boot().Wait()
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestAttributeOperations(t *testing.T) {
	ctrl, _ := boot(t, setup{ops: []*dmr.Node{subsystemOp()}})

	require.True(t, model.IsSuccess(ctrl.Execute(model.CreateWriteAttributeOperation(testSubsystem, "size", dmr.FromString("7")))))
	size, err := ctrl.Execute(model.CreateReadAttributeOperation(testSubsystem, "size")).Get(model.Result).AsInt()
	require.NoError(t, err)
	assert.EqualValues(t, 7, size)

	assert.False(t, model.IsSuccess(ctrl.Execute(model.CreateWriteAttributeOperation(testSubsystem, "size", dmr.FromString("big")))))
	assert.False(t, model.IsSuccess(ctrl.Execute(model.CreateReadAttributeOperation(testSubsystem, "nope"))))

	require.True(t, model.IsSuccess(ctrl.Execute(model.CreateUndefineAttributeOperation(testSubsystem, "name"))))
	read := ctrl.Execute(model.CreateReadResourceOperation(testSubsystem, false)).Get(model.Result)
	assert.False(t, read.Get("name").IsDefined())
}

func TestChildrenAndComposite(t *testing.T) {
	ctrl, _ := boot(t, setup{ops: []*dmr.Node{subsystemOp()}})
	childA := testSubsystem.Append(model.Element("child", "a"))
	childB := testSubsystem.Append(model.Element("child", "b"))

	require.True(t, model.IsSuccess(ctrl.Execute(model.CreateAddOperation(childA, nil))))

	failing := model.CreateCompositeOperation(model.CreateAddOperation(childB, nil), model.CreateAddOperation(childA, nil))
	response := ctrl.Execute(failing)
	assert.False(t, model.IsSuccess(response))
	assert.Contains(t, response.Get(model.Failure).AsString(), "step-2")

	names := ctrl.Execute(model.CreateReadChildrenNamesOperation(testSubsystem, "child")).Get(model.Result)
	require.Equal(t, 1, names.Len())
	assert.Equal(t, "a", names.Index(0).AsString())

	require.True(t, model.IsSuccess(ctrl.Execute(model.CreateRemoveOperation(childA))))
	assert.False(t, model.IsSuccess(ctrl.Execute(model.CreateRemoveOperation(childA))))
}

func TestReadResourceDescription(t *testing.T) {
	ctrl, _ := boot(t, setup{ops: []*dmr.Node{subsystemOp()}})
	response := ctrl.Execute(model.CreateReadResourceDescriptionOperation(testSubsystem, true))
	require.True(t, model.IsSuccess(response), response.String())
	attrs := response.Get(model.Result).Get("attributes")
	assert.Equal(t, []string{"name", "size"}, attrs.Keys())
}

func TestPersistAfterMutation(t *testing.T) {
	ctrl, p := boot(t, setup{ops: []*dmr.Node{extensionOp(), subsystemOp()}, persist: true})
	ok, err := ctrl.Boot().Wait()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, p.StoredOperations(), 2)

	require.True(t, model.IsSuccess(ctrl.Execute(model.CreateWriteAttributeOperation(testSubsystem, "name", dmr.FromString("stored")))))
	assert.Contains(t, p.Marshalled(), "stored")
}

func TestAttachmentGrabber(t *testing.T) {
	ctrl, _ := boot(t, setup{ops: []*dmr.Node{subsystemOp()}, grabber: true})
	require.True(t, model.IsSuccess(ctrl.Execute(model.CreateOperation("tag", testSubsystem))))
	attachment, ok := ctrl.Attachment()
	require.True(t, ok)
	tagged, err := attachment.Get("tagged").AsBool()
	require.NoError(t, err)
	assert.True(t, tagged)

	plain, _ := boot(t, setup{ops: []*dmr.Node{subsystemOp()}})
	_, ok = plain.Attachment()
	assert.False(t, ok)
}

func TestTransformersOnlyWhenRequested(t *testing.T) {
	ctrl, _ := boot(t, setup{})
	assert.Empty(t, ctrl.Transformers().Versions("test"))

	ctrl, _ = boot(t, setup{transform: true})
	assert.Equal(t, []model.Version{model.NewVersion(1, 0, 0)}, ctrl.Transformers().Versions("test"))
}

func TestLegacy712RegistrationView(t *testing.T) {
	ctrl, _ := boot(t, setup{ops: []*dmr.Node{subsystemOp()}, factory: NewLegacy712Factory()})
	assert.Equal(t, Legacy712ID, ctrl.ImplementationID())

	root := ctrl.RootRegistration()
	_, immutable := root.(registry.Immutable)
	assert.False(t, immutable)
	_, legacy := root.(registry.Legacy)
	assert.True(t, legacy)

	concrete, ok := registry.Unwrap(root)
	require.True(t, ok)
	_, found := concrete.Find(testSubsystem)
	assert.True(t, found)
}

func TestDependencyFailureCompletesBoot(t *testing.T) {
	p, err := persister.New(nil, format.JSON(), false)
	require.NoError(t, err)
	ctrl, err := NewModelControllerService(FactoryParams{Extensions: extension.NewRegistry(nil), Persister: p})
	require.NoError(t, err)

	ctrl.DependencyFailed("kernel.path-manager", errors.New("no paths"))
	ok, err := ctrl.Boot().Wait()
	assert.False(t, ok)
	assert.ErrorIs(t, err, container.ErrDependencyFailed)

	assert.False(t, model.IsSuccess(ctrl.Execute(model.CreateReadResourceOperation(model.Root, false))))
}

func TestConstructionRequiresCollaborators(t *testing.T) {
	p, err := persister.New(nil, format.JSON(), false)
	require.NoError(t, err)

	_, err = NewModelControllerService(FactoryParams{Persister: p})
	assert.ErrorIs(t, err, rterrors.ErrExtensionRegistryRequired)
	_, err = DefaultFactory().Create(FactoryParams{Extensions: extension.NewRegistry(nil)})
	assert.ErrorIs(t, err, rterrors.ErrPersisterRequired)
}
