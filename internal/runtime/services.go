package runtime

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/drblury/kerneltest/internal/runtime/container"
	"github.com/drblury/kerneltest/internal/runtime/controller"
	"github.com/drblury/kerneltest/internal/runtime/dmr"
	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/logging"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/persister"
	"github.com/drblury/kerneltest/internal/runtime/registry"
	"github.com/drblury/kerneltest/internal/runtime/validation"
)

// KernelServices is the handle a test holds on one booted kernel. It is
// implemented by *MainKernelServices and *LegacyKernelServices.
type KernelServices interface {
	// IsSuccessfulBoot reports whether the boot log replayed completely.
	IsSuccessfulBoot() bool
	// BootError is the captured boot failure, nil after a successful boot.
	BootError() error
	ContainerName() string
	Container() *container.Container
	// ControllerImplementationID names the controller the kernel runs.
	ControllerImplementationID() string
	// ModelVersion is the pinned version of a legacy kernel.
	ModelVersion() (model.Version, bool)
	IsLegacy() bool
	RootRegistration() registry.Registration

	// ExecuteOperation runs op and returns the response node.
	ExecuteOperation(op *dmr.Node) *dmr.Node
	// ExecuteForResult runs op and returns its result, or the failure as
	// an error.
	ExecuteForResult(op *dmr.Node) (*dmr.Node, error)
	// ExecuteForFailure runs op that is expected to fail and returns the
	// failure description.
	ExecuteForFailure(op *dmr.Node) (*dmr.Node, error)
	ReadWholeModel(includeDefaults bool) (*dmr.Node, error)
	// ReadFullModelDescription dumps the resource type registered at the
	// address node.
	ReadFullModelDescription(addr *dmr.Node) (*dmr.Node, error)
	// Validate checks op against the root registration.
	Validate(op *dmr.Node) error

	// BootOperations is a copy of the boot log the kernel replayed.
	BootOperations() []*dmr.Node
	// PersistedConfig is the last marshalled form of the configuration.
	PersistedConfig() string
	// PersistedOperations is the last stored model as operations.
	PersistedOperations() []*dmr.Node

	// Shutdown stops the container. Calling it again is a no-op.
	Shutdown() error
}

// kernelServices is the part main and legacy kernels share.
type kernelServices struct {
	session    *Session
	log        logging.ServiceLogger
	container  *container.Container
	controller controller.Controller
	persister  *persister.ConfigurationPersister
	root       registry.Registration
	validator  *validation.OperationValidator
	subsystem  string

	successful bool
	bootErr    error
}

func (k *kernelServices) IsSuccessfulBoot() bool { return k.successful }

func (k *kernelServices) BootError() error { return k.bootErr }

func (k *kernelServices) ContainerName() string { return k.container.Name() }

func (k *kernelServices) Container() *container.Container { return k.container }

func (k *kernelServices) ControllerImplementationID() string { return k.controller.ImplementationID() }

func (k *kernelServices) ModelVersion() (model.Version, bool) { return model.Version{}, false }

func (k *kernelServices) IsLegacy() bool { return false }

func (k *kernelServices) RootRegistration() registry.Registration { return k.root }

// MainSubsystemName is the subsystem the kernel was created for.
func (k *kernelServices) MainSubsystemName() string { return k.subsystem }

func (k *kernelServices) ExecuteOperation(op *dmr.Node) *dmr.Node {
	_, span := k.session.startSpan(context.Background(), "kernel.execute",
		attribute.String("kernel.container", k.container.Name()),
		attribute.String("operation.name", model.OperationName(op)),
		attribute.String("operation.address", op.Get(model.OPAddr).String()),
	)
	response := k.controller.Execute(op)
	successful := model.IsSuccess(response)
	k.session.metrics.RecordOperation(k.controller.ImplementationID(), successful)

	var err error
	if !successful {
		err = failure(op, response)
	}
	endSpan(span, err)
	return response
}

func (k *kernelServices) ExecuteForResult(op *dmr.Node) (*dmr.Node, error) {
	response := k.ExecuteOperation(op)
	if !model.IsSuccess(response) {
		return nil, failure(op, response)
	}
	return response.Get(model.Result), nil
}

func (k *kernelServices) ExecuteForFailure(op *dmr.Node) (*dmr.Node, error) {
	response := k.ExecuteOperation(op)
	if model.IsSuccess(response) {
		return nil, fmt.Errorf("%w: %s at %s", rterrors.ErrUnexpectedSuccess, model.OperationName(op), op.Get(model.OPAddr))
	}
	return response.Get(model.Failure), nil
}

func (k *kernelServices) ReadWholeModel(includeDefaults bool) (*dmr.Node, error) {
	op := model.CreateReadResourceOperation(model.Root, true)
	op.SetBool(model.IncludeDefaults, includeDefaults)
	return k.ExecuteForResult(op)
}

func (k *kernelServices) ReadFullModelDescription(addr *dmr.Node) (*dmr.Node, error) {
	address, err := model.AddressFromNode(addr)
	if err != nil {
		return nil, err
	}
	reg, ok := k.root.Resolve(address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", rterrors.ErrResourceNotFound, address)
	}
	return k.session.describe(k.controller.ImplementationID(), reg)
}

func (k *kernelServices) Validate(op *dmr.Node) error {
	return k.validator.ValidateOperation(op)
}

func (k *kernelServices) BootOperations() []*dmr.Node { return k.persister.BootOperations() }

func (k *kernelServices) PersistedConfig() string { return k.persister.Marshalled() }

func (k *kernelServices) PersistedOperations() []*dmr.Node { return k.persister.StoredOperations() }

func (k *kernelServices) Shutdown() error {
	return k.container.Shutdown(context.Background())
}

func failure(op, response *dmr.Node) error {
	return &rterrors.OperationFailure{
		Operation:   model.OperationName(op),
		Address:     op.Get(model.OPAddr).String(),
		Description: response.Get(model.Failure).AsString(),
	}
}

// LegacyKernelServices is a kernel pinned to an older model version. It
// cannot hold legacy links of its own.
type LegacyKernelServices struct {
	*kernelServices
	version model.Version
}

func (l *LegacyKernelServices) ModelVersion() (model.Version, bool) { return l.version, true }

func (l *LegacyKernelServices) IsLegacy() bool { return true }
