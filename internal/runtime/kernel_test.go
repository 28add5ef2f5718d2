package runtime

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/kerneltest/internal/runtime/config"
	"github.com/drblury/kerneltest/internal/runtime/container"
	"github.com/drblury/kerneltest/internal/runtime/controller"
	"github.com/drblury/kerneltest/internal/runtime/description"
	"github.com/drblury/kerneltest/internal/runtime/dmr"
	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/format"
	"github.com/drblury/kerneltest/internal/runtime/ids"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/pathmgr"
)

func TestContainerNamesAreDistinct(t *testing.T) {
	s := newTestSession(t)

	first := createMain(t, s, mainOptions())
	second := createMain(t, s, mainOptions())

	assert.NotEqual(t, first.ContainerName(), second.ContainerName())
	assert.Equal(t, "test1."+s.ID(), first.ContainerName())
	assert.Equal(t, "test2."+s.ID(), second.ContainerName())

	other := newTestSession(t)
	third := createMain(t, other, mainOptions())
	assert.NotEqual(t, first.ContainerName(), third.ContainerName())
}

func TestContainerNamesCarrySessionULID(t *testing.T) {
	s := newTestSession(t)
	other := newTestSession(t)
	assert.NotEqual(t, s.ID(), other.ID())

	sessionID, err := ulid.ParseStrict(s.ID())
	require.NoError(t, err)

	services := createMain(t, s, mainOptions())
	prefix, suffix, ok := strings.Cut(services.ContainerName(), ".")
	require.True(t, ok)
	assert.Equal(t, "test1", prefix)

	parsed, err := ulid.ParseStrict(suffix)
	require.NoError(t, err)
	assert.Equal(t, sessionID, parsed)
}

func TestContainerNamesUseInjectedSequence(t *testing.T) {
	s := newTestSession(t, WithSequence(ids.NewSequence(41)))
	services := createMain(t, s, mainOptions())
	assert.True(t, strings.HasPrefix(services.ContainerName(), "test42."))
}

func TestConcurrentCreatesGetDisjointContainers(t *testing.T) {
	s := newTestSession(t)
	names := make(chan string, 4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			services, err := s.Create(mainOptions())
			if err != nil {
				names <- "error: " + err.Error()
				return
			}
			names <- services.ContainerName()
			_ = services.Shutdown()
		}()
	}
	wg.Wait()
	close(names)

	seen := map[string]bool{}
	for name := range names {
		require.False(t, strings.HasPrefix(name, "error"), name)
		assert.False(t, seen[name], "duplicate container %s", name)
		seen[name] = true
	}
	assert.Len(t, seen, 4)
}

func TestBootLogIsExtraOperationsThenBootOperations(t *testing.T) {
	s := newTestSession(t)
	opts := mainOptions()
	opts.AdditionalInit = &controller.Initialization{
		SystemProperties: []controller.SystemProperty{{Name: "jboss.node", Value: "a"}},
		Paths:            []pathmgr.Entry{{Name: "data.dir", Path: "/tmp/data"}},
	}
	services := createMain(t, s, opts)

	ops := services.BootOperations()
	require.Len(t, ops, 4)
	assert.Equal(t, "/system-property=jboss.node", mustAddress(t, ops[0]).String())
	assert.Equal(t, "/path=data.dir", mustAddress(t, ops[1]).String())
	assert.True(t, opts.BootOperations[0].Equal(ops[2]))
	assert.True(t, opts.BootOperations[1].Equal(ops[3]))

	value, err := services.ExecuteForResult(model.CreateReadAttributeOperation(model.Address(model.Element(model.SystemPropertyKey, "jboss.node")), model.Value))
	require.NoError(t, err)
	assert.Equal(t, "a", value.AsString())
}

func TestBootOperationsAreNotMutated(t *testing.T) {
	s := newTestSession(t)
	opts := mainOptions()
	before := opts.BootOperations[1].Clone()
	services := createMain(t, s, opts)

	services.BootOperations()[1].SetString("name", "changed")
	assert.True(t, before.Equal(opts.BootOperations[1]))
	assert.True(t, before.Equal(services.BootOperations()[1]))
}

func TestTwoOperationScenario(t *testing.T) {
	s := newTestSession(t)
	opts := mainOptions()
	services := createMain(t, s, opts)

	ops := services.BootOperations()
	require.Len(t, ops, 2)
	assert.True(t, extensionOp().Equal(ops[0]))
	assert.True(t, subsystemOp("name", "x").Equal(ops[1]))

	desc, err := services.ReadFullModelDescription(testSubsystem.ToNode())
	require.NoError(t, err)
	assert.Equal(t, "The test subsystem", desc.Get(description.KeyDescription).AsString())
	assert.ElementsMatch(t, []string{"name", "size"}, description.AttributeNames(desc))
}

func TestMainVariant(t *testing.T) {
	s := newTestSession(t)
	services := createMain(t, s, mainOptions())

	assert.False(t, services.IsLegacy())
	_, pinned := services.ModelVersion()
	assert.False(t, pinned)
	assert.Equal(t, controller.DefaultID, services.ControllerImplementationID())
	assert.Empty(t, services.LegacyVersions())
}

func TestLegacyVariant(t *testing.T) {
	s := newTestSession(t)
	services := create(t, s, legacyOptions(v100))

	legacy, ok := services.(*LegacyKernelServices)
	require.True(t, ok)
	assert.True(t, legacy.IsSuccessfulBoot(), "%v", legacy.BootError())
	assert.True(t, legacy.IsLegacy())
	version, pinned := legacy.ModelVersion()
	assert.True(t, pinned)
	assert.Equal(t, v100, version)
	assert.Equal(t, controller.Legacy712ID, legacy.ControllerImplementationID())

	_, canLink := services.(interface {
		AddLegacyKernelService(model.Version, *LegacyKernelServices) error
	})
	assert.False(t, canLink)
}

func TestBootFailureIsCaptured(t *testing.T) {
	s := newTestSession(t)
	opts := mainOptions()
	opts.BootOperations = append(opts.BootOperations, model.CreateAddOperation(model.Subsystem("missing"), nil))

	services, err := s.Create(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = services.Shutdown() })

	assert.False(t, services.IsSuccessfulBoot())
	assert.ErrorIs(t, services.BootError(), rterrors.ErrResourceNotFound)
	assert.Equal(t, uint64(1), s.Metrics().GetSnapshot().FailedBoots)
}

func TestConstructionFailuresAreReturned(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Create(CreateOptions{})
	assert.ErrorIs(t, err, rterrors.ErrMainSubsystemRequired)

	opts := mainOptions()
	opts.AdditionalInit = &controller.Initialization{
		Services: []controller.ExtraService{{Name: pathmgr.ServiceName, Service: pathmgr.New(nil)}},
	}
	_, err = s.Create(opts)
	assert.ErrorIs(t, err, container.ErrDuplicateService)

	opts = legacyOptions(v100)
	opts.ControllerFactory = "no-such-factory"
	_, err = s.Create(opts)
	assert.ErrorIs(t, err, rterrors.ErrUnknownControllerFactory)
}

func TestFactorySelection(t *testing.T) {
	t.Run("empty registry falls back to the default factory", func(t *testing.T) {
		s := newTestSession(t, WithFactoryRegistry(controller.NewFactoryRegistry()))
		legacy := createLegacy(t, s, legacyOptions(v100))
		assert.Equal(t, controller.DefaultID, legacy.ControllerImplementationID())
	})

	t.Run("first registered factory wins without a selector", func(t *testing.T) {
		factories := controller.NewFactoryRegistry()
		require.NoError(t, factories.Register("first", renamedFactory("model-controller-first")))
		require.NoError(t, factories.Register("second", renamedFactory("model-controller-second")))
		s := newTestSession(t, WithFactoryRegistry(factories))

		legacy := createLegacy(t, s, legacyOptions(v100))
		assert.Equal(t, "model-controller-first", legacy.ControllerImplementationID())

		opts := legacyOptions(v100)
		opts.ControllerFactory = "second"
		selected := createLegacy(t, s, opts)
		assert.Equal(t, "model-controller-second", selected.ControllerImplementationID())
	})

	t.Run("main kernels ignore alternate factories", func(t *testing.T) {
		factories := controller.NewFactoryRegistry()
		require.NoError(t, factories.Register("first", renamedFactory("model-controller-first")))
		s := newTestSession(t, WithFactoryRegistry(factories))

		main := createMain(t, s, mainOptions())
		assert.Equal(t, controller.DefaultID, main.ControllerImplementationID())
	})

	t.Run("configured selector", func(t *testing.T) {
		factories := controller.NewFactoryRegistry()
		require.NoError(t, factories.Register("first", renamedFactory("model-controller-first")))
		require.NoError(t, factories.Register("second", renamedFactory("model-controller-second")))
		conf := config.Default()
		conf.ControllerFactory = "second"
		s := newTestSession(t, WithFactoryRegistry(factories), WithConfig(conf))

		legacy := createLegacy(t, s, legacyOptions(v100))
		assert.Equal(t, "model-controller-second", legacy.ControllerImplementationID())
	})
}

func TestControllerStartsAfterPathManager(t *testing.T) {
	s := newTestSession(t)
	services := createMain(t, s, mainOptions())

	names := services.Container().ServiceNames()
	assert.Equal(t, []string{controller.ServiceName, pathmgr.ServiceName}, names)
	for _, name := range names {
		state, err := services.Container().ServiceState(name)
		require.NoError(t, err)
		assert.Equal(t, container.StateUp, state)
	}
}

func TestPersistedConfiguration(t *testing.T) {
	s := newTestSession(t)
	opts := mainOptions()
	opts.PersistConfig = true
	opts.Parser = format.YAML()
	services := createMain(t, s, opts)

	assert.Contains(t, services.PersistedConfig(), "test.ext")
	require.NotEmpty(t, services.PersistedOperations())

	_, err := services.ExecuteForResult(model.CreateWriteAttributeOperation(testSubsystem, "name", dmr.FromString("stored")))
	require.NoError(t, err)
	assert.Contains(t, services.PersistedConfig(), "stored")

	unpersisted := createMain(t, s, mainOptions())
	assert.Empty(t, unpersisted.PersistedConfig())
}

func TestSessionConfigEnablesPersistence(t *testing.T) {
	conf := config.Default()
	conf.Persist = true
	conf.Format = "cbor"
	s := newTestSession(t, WithConfig(conf))

	services := createMain(t, s, mainOptions())
	assert.NotEmpty(t, services.PersistedOperations())
}

func TestSessionWritesContainerEventsToFile(t *testing.T) {
	conf := config.Default()
	conf.EventsTransport = "io"
	conf.EventsFile = filepath.Join(t.TempDir(), "events.log")
	s := newTestSession(t, WithConfig(conf))

	services := createMain(t, s, mainOptions())

	data, err := os.ReadFile(conf.EventsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), services.ContainerName())
	assert.Contains(t, string(data), "kernel.services")
}

func TestInvalidSessionConfig(t *testing.T) {
	conf := config.Default()
	conf.Format = ""
	_, err := NewSession(WithConfig(conf))
	var cfgErr rterrors.ConfigValidationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestShutdownIsIdempotent(t *testing.T) {
	s := newTestSession(t)
	services, err := s.Create(mainOptions())
	require.NoError(t, err)

	require.NoError(t, services.Shutdown())
	require.NoError(t, services.Shutdown())
	assert.True(t, services.Container().IsShutdown())
}

func TestBootHooksAndMetrics(t *testing.T) {
	var mu sync.Mutex
	var started, done []BootContext
	s := newTestSession(t, WithBootHooks(BootHooks{
		OnBootStart: func(ctx BootContext) {
			mu.Lock()
			defer mu.Unlock()
			started = append(started, ctx)
		},
		OnBootDone: func(ctx BootContext) {
			mu.Lock()
			defer mu.Unlock()
			done = append(done, ctx)
		},
	}))

	services := createMain(t, s, mainOptions())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, started, 1)
	require.Len(t, done, 1)
	assert.Equal(t, services.ContainerName(), done[0].Container)
	assert.Equal(t, 2, done[0].Operations)
	assert.Equal(t, controller.DefaultID, done[0].ControllerID)
	assert.NotNil(t, done[0].Context)

	snapshot := s.Metrics().GetSnapshot()
	assert.Equal(t, uint64(1), snapshot.Boots)
	assert.Zero(t, snapshot.FailedBoots)
}

func mustAddress(t *testing.T, op *dmr.Node) model.PathAddress {
	t.Helper()
	addr, err := model.OperationAddress(op)
	require.NoError(t, err)
	return addr
}
