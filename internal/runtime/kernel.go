package runtime

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/drblury/kerneltest/internal/runtime/container"
	"github.com/drblury/kerneltest/internal/runtime/controller"
	"github.com/drblury/kerneltest/internal/runtime/dmr"
	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/extension"
	"github.com/drblury/kerneltest/internal/runtime/format"
	"github.com/drblury/kerneltest/internal/runtime/logging"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/pathmgr"
	"github.com/drblury/kerneltest/internal/runtime/persister"
	"github.com/drblury/kerneltest/internal/runtime/registry"
	"github.com/drblury/kerneltest/internal/runtime/validation"
)

// CreateOptions is everything one kernel is built from.
type CreateOptions struct {
	// TestName identifies the test the kernel serves in logs and spans.
	TestName string
	// MainSubsystemName is the subsystem under test.
	MainSubsystemName string
	// AdditionalInit shapes the kernel around the subsystem. Defaults to
	// an empty controller.Initialization.
	AdditionalInit controller.AdditionalInitialization
	// ValidatorFilter exempts operations from boot validation.
	ValidatorFilter *validation.Filter
	// ExtensionRegistry receives the persister and path manager. Defaults
	// to a fresh registry.
	ExtensionRegistry *extension.Registry
	// BootOperations run after the initializer's extra operations.
	BootOperations []*dmr.Node
	// Parser persists the boot log. Defaults to the session format.
	Parser format.Parser
	// MainExtension is initialized before the boot log is replayed.
	MainExtension extension.Extension
	// LegacyModelVersion pins the kernel to an older model version.
	LegacyModelVersion *model.Version
	// RegisterTransformers lets extensions register transformers.
	RegisterTransformers bool
	// PersistConfig round trips the boot log and stores the model.
	PersistConfig bool
	// AttachmentGrabber keeps transformer attachments.
	AttachmentGrabber bool
	// ControllerFactory names the factory a legacy kernel is built with.
	// Empty selects the first registered factory.
	ControllerFactory string
}

// Create boots a kernel on the default session.
func Create(opts CreateOptions) (KernelServices, error) {
	session, err := DefaultSession()
	if err != nil {
		return nil, err
	}
	return session.Create(opts)
}

// Create builds an isolated container, installs the controller after the
// path manager and blocks until the boot log was replayed. A failed boot
// is reported by the returned services; only wiring failures are
// returned as errors, after the container was shut down.
func (s *Session) Create(opts CreateOptions) (KernelServices, error) {
	if opts.MainSubsystemName == "" {
		return nil, rterrors.ErrMainSubsystemRequired
	}
	opts = s.withDefaults(opts)

	ctx, span := s.startSpan(context.Background(), "kernel.create",
		attribute.String("kernel.test", opts.TestName),
		attribute.String("kernel.subsystem", opts.MainSubsystemName),
	)
	services, err := s.create(ctx, opts)
	endSpan(span, err)
	return services, err
}

func (s *Session) withDefaults(opts CreateOptions) CreateOptions {
	if opts.AdditionalInit == nil {
		opts.AdditionalInit = &controller.Initialization{}
	}
	if opts.ExtensionRegistry == nil {
		opts.ExtensionRegistry = extension.NewRegistry(s.log)
	}
	if opts.ControllerFactory == "" {
		opts.ControllerFactory = s.conf.ControllerFactory
	}
	opts.RegisterTransformers = opts.RegisterTransformers || s.conf.RegisterTransformers
	opts.PersistConfig = opts.PersistConfig || s.conf.Persist
	opts.AttachmentGrabber = opts.AttachmentGrabber || s.conf.AttachmentGrabber
	return opts
}

func (s *Session) create(ctx context.Context, opts CreateOptions) (KernelServices, error) {
	if opts.Parser == nil {
		parser, err := format.Lookup(s.conf.Format)
		if err != nil {
			return nil, err
		}
		opts.Parser = parser
	}

	init := opts.AdditionalInit.CreateControllerInitializer()
	if init == nil {
		init = controller.NewInitializer()
	}
	paths := pathmgr.New(s.log)
	init.SetPathManager(paths)
	opts.AdditionalInit.SetupController(init)

	name := s.nextContainerName()
	log := s.log.With(logging.LogFields{"container": name, "test": opts.TestName})
	c, err := container.New(name, container.WithLogger(log), container.WithEventsConfig(s.conf))
	if err != nil {
		return nil, err
	}

	services, err := s.install(ctx, c, init, paths, opts, log)
	if err != nil {
		if stopErr := c.Shutdown(context.Background()); stopErr != nil {
			log.Error("Container shutdown after failed create", stopErr, nil)
		}
		return nil, err
	}
	return services, nil
}

func (s *Session) install(ctx context.Context, c *container.Container, init *controller.Initializer, paths *pathmgr.Manager, opts CreateOptions, log logging.ServiceLogger) (KernelServices, error) {
	extra := init.InitializeBootOperations()
	allOps := make([]*dmr.Node, 0, len(extra)+len(opts.BootOperations))
	allOps = append(allOps, extra...)
	allOps = append(allOps, opts.BootOperations...)

	p, err := persister.New(allOps, opts.Parser, opts.PersistConfig)
	if err != nil {
		return nil, err
	}
	opts.ExtensionRegistry.SetWriterRegistry(p)
	opts.ExtensionRegistry.SetPathManager(paths)

	factory, err := s.selectFactory(opts, log)
	if err != nil {
		return nil, err
	}
	ctrl, err := factory.Create(controller.FactoryParams{
		MainExtension:        opts.MainExtension,
		Initializer:          init,
		AdditionalInit:       opts.AdditionalInit,
		Extensions:           opts.ExtensionRegistry,
		Persister:            p,
		ValidatorFilter:      opts.ValidatorFilter,
		RegisterTransformers: opts.RegisterTransformers,
		AttachmentGrabber:    opts.AttachmentGrabber,
		Logger:               log,
	})
	if err != nil {
		return nil, fmt.Errorf("kerneltest: build controller: %w", err)
	}

	target := c.Target()
	if err := target.AddService(controller.ServiceName, ctrl).AddDependency(pathmgr.ServiceName).Install(); err != nil {
		return nil, err
	}
	if err := target.AddService(pathmgr.ServiceName, paths).Install(); err != nil {
		return nil, err
	}
	if err := opts.AdditionalInit.AddExtraServices(target); err != nil {
		return nil, err
	}

	bootCtx, span := s.startSpan(ctx, "kernel.boot",
		attribute.String("kernel.container", c.Name()),
		attribute.String("kernel.controller", ctrl.ImplementationID()),
	)
	hookCtx := BootContext{
		TestName:     opts.TestName,
		Container:    c.Name(),
		Subsystem:    opts.MainSubsystemName,
		ControllerID: ctrl.ImplementationID(),
		Legacy:       opts.LegacyModelVersion != nil,
		Operations:   len(allOps),
		Context:      bootCtx,
	}
	if opts.LegacyModelVersion != nil {
		hookCtx.ModelVersion = opts.LegacyModelVersion.String()
	}
	successful, bootErr := runBootHooks(s.hooks, hookCtx, ctrl.Boot().Wait)
	endSpan(span, bootErr)

	root := ctrl.RootRegistration()
	resources, ok := registry.Unwrap(root)
	if !ok {
		return nil, fmt.Errorf("kerneltest: controller %s exposes no resource registration", ctrl.ImplementationID())
	}
	base := &kernelServices{
		session:    s,
		log:        log,
		container:  c,
		controller: ctrl,
		persister:  p,
		root:       root,
		validator:  validation.NewOperationValidator(resources),
		subsystem:  opts.MainSubsystemName,
		successful: successful,
		bootErr:    bootErr,
	}
	if opts.LegacyModelVersion == nil {
		return newMainKernelServices(base), nil
	}
	return &LegacyKernelServices{kernelServices: base, version: *opts.LegacyModelVersion}, nil
}

// selectFactory picks the default factory for main kernels. Legacy
// kernels use the named factory, else the first registered one, else the
// default.
func (s *Session) selectFactory(opts CreateOptions, log logging.ServiceLogger) (controller.Factory, error) {
	if opts.LegacyModelVersion == nil {
		return controller.DefaultFactory(), nil
	}
	if opts.ControllerFactory != "" {
		return s.factories.Get(opts.ControllerFactory)
	}
	name, factory, ok := s.factories.First()
	if !ok {
		log.Debug("No alternate controller factory registered, using the default", nil)
		return controller.DefaultFactory(), nil
	}
	if s.factories.Len() > 1 {
		log.Warn("Several controller factories registered without a selector, using the first", logging.LogFields{
			"selected":  name,
			"factories": s.factories.Names(),
		})
	}
	return factory, nil
}
