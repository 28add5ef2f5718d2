package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/drblury/kerneltest/internal/runtime/container"
	"github.com/drblury/kerneltest/internal/runtime/dmr"
	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/extension"
	"github.com/drblury/kerneltest/internal/runtime/logging"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/pathmgr"
	"github.com/drblury/kerneltest/internal/runtime/registry"
	"github.com/drblury/kerneltest/internal/runtime/transform"
	"github.com/drblury/kerneltest/internal/runtime/validation"
)

// ModelControllerService is the default controller. It registers the core
// resource types, initializes the main extension, replays the boot log and
// then serves operations.
type ModelControllerService struct {
	id     string
	view   func(*registry.ResourceRegistration) registry.Registration
	params FactoryParams
	log    logging.ServiceLogger
	paths  *pathmgr.Manager

	root         *registry.ResourceRegistration
	transformers *transform.Registry
	validator    *validation.OperationValidator
	boot         *BootFuture

	mu         sync.Mutex
	model      *resource
	attachment *dmr.Node
}

// NewModelControllerService builds the default controller.
func NewModelControllerService(params FactoryParams) (*ModelControllerService, error) {
	return newModelControllerService(params, DefaultID, func(reg *registry.ResourceRegistration) registry.Registration { return reg })
}

func newModelControllerService(params FactoryParams, id string, view func(*registry.ResourceRegistration) registry.Registration) (*ModelControllerService, error) {
	if params.Extensions == nil {
		return nil, rterrors.ErrExtensionRegistryRequired
	}
	if params.Persister == nil {
		return nil, rterrors.ErrPersisterRequired
	}
	if params.Initializer == nil {
		params.Initializer = NewInitializer()
	}
	paths := params.Initializer.PathManager()
	if paths == nil {
		paths = pathmgr.New(params.Logger)
		params.Initializer.SetPathManager(paths)
	}
	log := logging.OrNop(params.Logger).With(logging.LogFields{"controller": id})
	params.Persister.SetLogger(log)

	return &ModelControllerService{
		id:           id,
		view:         view,
		params:       params,
		log:          log,
		paths:        paths,
		root:         registry.NewRoot("The root resource of the kernel"),
		transformers: transform.NewRegistry(),
		boot:         newBootFuture(),
		model:        newResource(),
	}, nil
}

func (s *ModelControllerService) ImplementationID() string { return s.id }

func (s *ModelControllerService) Boot() *BootFuture { return s.boot }

func (s *ModelControllerService) RootRegistration() registry.Registration { return s.view(s.root) }

func (s *ModelControllerService) Transformers() *transform.Registry { return s.transformers }

func (s *ModelControllerService) Attachment() (*dmr.Node, bool) {
	if !s.params.AttachmentGrabber {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachment.Clone(), true
}

// Start registers the model and replays the boot log. Boot failures are
// reported through the boot future; only a failure to build the model
// fails the service itself.
func (s *ModelControllerService) Start(ctx context.Context) error {
	if err := s.initModel(); err != nil {
		s.boot.complete(false, err)
		return err
	}

	s.mu.Lock()
	err := s.replay()
	s.mu.Unlock()
	if err != nil {
		s.log.Error("Boot failed", err, nil)
		s.boot.complete(false, err)
		return nil
	}
	s.log.Debug("Boot complete", nil)
	s.boot.complete(true, nil)
	return nil
}

func (s *ModelControllerService) initModel() error {
	if err := registerCore(s); err != nil {
		return fmt.Errorf("kerneltest: register core model: %w", err)
	}
	if s.params.AdditionalInit != nil {
		if err := s.params.AdditionalInit.InitializeModel(s.root); err != nil {
			return fmt.Errorf("kerneltest: initialize additional model: %w", err)
		}
	}
	s.validator = validation.NewOperationValidator(s.root).WithFilter(s.params.ValidatorFilter)
	return nil
}

func (s *ModelControllerService) extensionTarget() extension.Target {
	return extension.Target{
		Root:                 s.root,
		Transformers:         s.transformers,
		RegisterTransformers: s.params.RegisterTransformers,
	}
}

// replay runs the boot log in order and stops at the first failure.
// s.mu must be held.
func (s *ModelControllerService) replay() error {
	if s.params.MainExtension != nil {
		if err := s.params.Extensions.InitializeExtension(s.params.MainExtension, s.extensionTarget()); err != nil {
			return err
		}
	}
	ops, err := s.params.Persister.Load()
	if err != nil {
		return err
	}
	for idx, op := range ops {
		if err := s.validator.ValidateOperation(op); err != nil {
			return fmt.Errorf("kerneltest: boot operation %d: %w", idx, err)
		}
		response := s.execute(op, true)
		if !model.IsSuccess(response) {
			return fmt.Errorf("kerneltest: boot operation %d: %w", idx, failureOf(op, response))
		}
	}
	return s.store()
}

func (s *ModelControllerService) store() error {
	if !s.params.Persister.PersistEnabled() {
		return nil
	}
	return s.params.Persister.Store(s.model.read(s.root, true, false), s.root)
}

// Stop releases the boot future of a controller that never started.
func (s *ModelControllerService) Stop(ctx context.Context) error {
	s.boot.complete(false, container.ErrContainerShutdown)
	return nil
}

// DependencyFailed completes boot with the failure of a dependency.
func (s *ModelControllerService) DependencyFailed(dependency string, err error) {
	s.boot.complete(false, fmt.Errorf("%w: %s: %w", container.ErrDependencyFailed, dependency, err))
}

// Execute runs op outside of boot.
func (s *ModelControllerService) Execute(op *dmr.Node) *dmr.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.boot.Done():
	default:
		return model.FailureResult("controller has not finished booting")
	}
	return s.execute(op, false)
}

// execute runs a top-level operation. s.mu must be held.
func (s *ModelControllerService) execute(op *dmr.Node, booting bool) *dmr.Node {
	return s.run(op, booting, true)
}

// run resolves and runs op. A failed mutating operation restores the
// model it found. Only top-level operations update the attachment and
// store the model.
func (s *ModelControllerService) run(op *dmr.Node, booting, topLevel bool) *dmr.Node {
	name := model.OperationName(op)
	addr, err := model.OperationAddress(op)
	if err != nil {
		return model.FailureResult(err.Error())
	}
	reg, ok := s.root.Find(addr)
	if !ok {
		return model.FailureResult(fmt.Sprintf("%v: %s", rterrors.ErrResourceNotFound, addr))
	}
	entry, ok := reg.Operation(name)
	if !ok {
		return model.FailureResult(fmt.Sprintf("%v: %s at %s", rterrors.ErrOperationNotFound, name, addr))
	}

	var snapshot *resource
	if !entry.ReadOnly {
		snapshot = s.model.clone()
	}
	ctx := &operationContext{svc: s, addr: addr, reg: reg, booting: booting, attached: dmr.New()}
	result, err := entry.Handler(ctx, op)
	if err != nil {
		if snapshot != nil {
			s.model = snapshot
		}
		return model.FailureResult(err.Error())
	}

	if topLevel {
		if s.params.AttachmentGrabber {
			s.attachment = ctx.attached
		}
		if !entry.ReadOnly && !booting {
			if err := s.store(); err != nil {
				s.log.Error("Storing model failed", err, logging.LogFields{"operation": name})
			}
		}
	}
	return model.SuccessResult(result)
}

// failureOf turns a failed response into an error.
func failureOf(op *dmr.Node, response *dmr.Node) error {
	addr, _ := model.OperationAddress(op)
	return &rterrors.OperationFailure{
		Operation:   model.OperationName(op),
		Address:     addr.String(),
		Description: response.Get(model.Failure).AsString(),
	}
}

// IsOperationFailure reports whether err came from a failed operation.
func IsOperationFailure(err error) bool {
	var failure *rterrors.OperationFailure
	return errors.As(err, &failure)
}
