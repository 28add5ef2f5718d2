// Package controller holds the model controller service a kernel boots:
// it owns the resource registrations and the live model, replays the boot
// operation log and executes management operations afterwards.
//
// Controllers are built by a Factory. The default factory builds a
// ModelControllerService; alternate factories, such as the legacy stub,
// are registered by name in a FactoryRegistry and selected when a kernel
// pinned to an older model version is created.
package controller

import (
	"sync"

	"github.com/drblury/kerneltest/internal/runtime/container"
	"github.com/drblury/kerneltest/internal/runtime/dmr"
	"github.com/drblury/kerneltest/internal/runtime/registry"
	"github.com/drblury/kerneltest/internal/runtime/transform"
)

const (
	// ServiceName is the container service name of the controller.
	ServiceName = "kernel.server-controller"
	// DefaultID identifies the default controller implementation.
	DefaultID = "model-controller"
	// Legacy712ID identifies the stub controller shaped like the 7.1.2
	// generation, whose registrations only offer the legacy read API.
	Legacy712ID = "model-controller-7.1.2"
)

// Controller is the service the kernel installs and boots.
type Controller interface {
	container.Service
	container.FailureListener

	// ImplementationID names the controller implementation.
	ImplementationID() string
	// Boot completes once the boot log has been replayed or boot failed.
	Boot() *BootFuture
	// RootRegistration is the root resource type. It is only complete
	// after boot.
	RootRegistration() registry.Registration
	// Execute runs op and returns the outcome node; it never errors.
	Execute(op *dmr.Node) *dmr.Node
	// Transformers holds what extensions registered for older versions.
	Transformers() *transform.Registry
	// Attachment returns what the last operation attached for
	// transformers, and false when the grabber is disabled.
	Attachment() (*dmr.Node, bool)
}

// BootFuture is completed exactly once with the boot outcome.
type BootFuture struct {
	done       chan struct{}
	once       sync.Once
	successful bool
	err        error
}

func newBootFuture() *BootFuture {
	return &BootFuture{done: make(chan struct{})}
}

func (f *BootFuture) complete(successful bool, err error) {
	f.once.Do(func() {
		f.successful = successful
		f.err = err
		close(f.done)
	})
}

// Wait blocks until boot finished and returns its outcome.
func (f *BootFuture) Wait() (bool, error) {
	<-f.done
	return f.successful, f.err
}

// Done is closed when boot finished.
func (f *BootFuture) Done() <-chan struct{} { return f.done }
