package extension

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/pathmgr"
	"github.com/drblury/kerneltest/internal/runtime/persister"
	"github.com/drblury/kerneltest/internal/runtime/registry"
	"github.com/drblury/kerneltest/internal/runtime/transform"
)

type writerSink map[string]persister.SubsystemWriter

func (w writerSink) RegisterSubsystemWriter(subsystem string, writer persister.SubsystemWriter) {
	w[subsystem] = writer
}

var v100 = model.NewVersion(1, 0, 0)

func testExtension(calls *int) Extension {
	return New("test.ext", func(ctx *Context) error {
		*calls++
		sub, err := ctx.RegisterSubsystem("test", model.NewVersion(2, 0, 0))
		if err != nil {
			return err
		}
		reg, err := sub.RegisterSubsystemModel("test subsystem")
		if err != nil {
			return err
		}
		if err := reg.RegisterAttribute(registry.AttributeDefinition{Name: "name", Type: dmr.String}); err != nil {
			return err
		}
		sub.RegisterWriter(persister.GenericWriter)
		return sub.RegisterTransformers(v100, transform.Transformers{Resource: transform.DiscardAttributes("name")})
	})
}

func TestInitializeRegistersSubsystem(t *testing.T) {
	calls := 0
	reg := NewRegistry(nil)
	require.NoError(t, reg.AddModule(testExtension(&calls)))
	sink := writerSink{}
	reg.SetWriterRegistry(sink)
	paths := pathmgr.New(nil)
	reg.SetPathManager(paths)

	root := registry.NewRoot("root")
	transformers := transform.NewRegistry()
	target := Target{Root: root, Transformers: transformers, RegisterTransformers: true}

	require.NoError(t, reg.Initialize("test.ext", target))
	require.NoError(t, reg.Initialize("test.ext", target))
	assert.Equal(t, 1, calls)
	assert.True(t, reg.IsInitialized("test.ext"))

	_, ok := root.Find(model.Subsystem("test"))
	assert.True(t, ok)
	assert.Contains(t, sink, "test")
	assert.Same(t, paths, reg.PathManager())

	_, ok = transformers.Lookup("test", v100)
	assert.True(t, ok)

	sub, ok := reg.Subsystem("test")
	require.True(t, ok)
	assert.Equal(t, "test.ext", sub.Module)
	assert.Equal(t, "2.0.0", sub.Version.String())
	assert.Equal(t, []string{"test.ext"}, reg.Modules())
}

func TestTransformersSkippedWhenDisabled(t *testing.T) {
	calls := 0
	reg := NewRegistry(nil)
	transformers := transform.NewRegistry()

	require.NoError(t, reg.InitializeExtension(testExtension(&calls), Target{Root: registry.NewRoot("root"), Transformers: transformers}))
	assert.Empty(t, transformers.Versions("test"))
	assert.Equal(t, []string{"test.ext"}, reg.Modules())
}

func TestUnknownModule(t *testing.T) {
	reg := NewRegistry(nil)
	err := reg.Initialize("missing", Target{Root: registry.NewRoot("root")})
	assert.ErrorIs(t, err, rterrors.ErrModuleNotFound)
}

func TestDuplicateModuleAndSubsystem(t *testing.T) {
	calls := 0
	reg := NewRegistry(nil)
	require.NoError(t, reg.AddModule(testExtension(&calls)))
	assert.ErrorIs(t, reg.AddModule(testExtension(&calls)), rterrors.ErrDuplicateResource)
	assert.ErrorIs(t, reg.AddModule(New("", nil)), rterrors.ErrOperationInvalid)

	root := registry.NewRoot("root")
	require.NoError(t, reg.Initialize("test.ext", Target{Root: root}))

	clash := New("other.ext", func(ctx *Context) error {
		_, err := ctx.RegisterSubsystem("test", v100)
		return err
	})
	err := reg.InitializeExtension(clash, Target{Root: root})
	assert.ErrorIs(t, err, rterrors.ErrDuplicateResource)
	assert.False(t, reg.IsInitialized("other.ext"))
}

func TestFailedInitializationCanRetry(t *testing.T) {
	fail := true
	reg := NewRegistry(nil)
	require.NoError(t, reg.AddModule(New("flaky", func(ctx *Context) error {
		if fail {
			return errors.New("not yet")
		}
		return nil
	})))

	target := Target{Root: registry.NewRoot("root")}
	assert.ErrorContains(t, reg.Initialize("flaky", target), "not yet")
	fail = false
	assert.NoError(t, reg.Initialize("flaky", target))
}
