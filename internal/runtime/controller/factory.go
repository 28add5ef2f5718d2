package controller

import (
	"fmt"
	"sync"

	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/extension"
	"github.com/drblury/kerneltest/internal/runtime/logging"
	"github.com/drblury/kerneltest/internal/runtime/persister"
	"github.com/drblury/kerneltest/internal/runtime/registry"
	"github.com/drblury/kerneltest/internal/runtime/validation"
)

// FactoryParams is everything a factory wires into a controller.
type FactoryParams struct {
	MainExtension        extension.Extension
	Initializer          *Initializer
	AdditionalInit       AdditionalInitialization
	Extensions           *extension.Registry
	Persister            *persister.ConfigurationPersister
	ValidatorFilter      *validation.Filter
	RegisterTransformers bool
	AttachmentGrabber    bool
	Logger               logging.ServiceLogger
}

// Factory builds a controller.
type Factory interface {
	Create(params FactoryParams) (Controller, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(params FactoryParams) (Controller, error)

func (f FactoryFunc) Create(params FactoryParams) (Controller, error) {
	return f(params)
}

// DefaultFactory builds ModelControllerService instances.
func DefaultFactory() Factory {
	return FactoryFunc(func(params FactoryParams) (Controller, error) {
		svc, err := NewModelControllerService(params)
		if err != nil {
			return nil, err
		}
		return svc, nil
	})
}

// NewLegacy712Factory builds the 7.1.2-shaped stub controller. Its root
// registration only implements the legacy read API, so the current
// description dump cannot walk it.
func NewLegacy712Factory() Factory {
	return FactoryFunc(func(params FactoryParams) (Controller, error) {
		svc, err := newModelControllerService(params, Legacy712ID, registry.LegacyView)
		if err != nil {
			return nil, err
		}
		return svc, nil
	})
}

// FactoryRegistry holds alternate controller factories by name, in
// registration order. Safe for concurrent use.
type FactoryRegistry struct {
	mu        sync.RWMutex
	order     []string
	factories map[string]Factory
}

// NewFactoryRegistry returns an empty registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]Factory)}
}

// Register adds a named factory. Names are unique.
func (r *FactoryRegistry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("%w: factory needs a name and an implementation", rterrors.ErrUnknownControllerFactory)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", rterrors.ErrDuplicateControllerName, name)
	}
	r.factories[name] = factory
	r.order = append(r.order, name)
	return nil
}

// Get returns the factory registered under name.
func (r *FactoryRegistry) Get(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", rterrors.ErrUnknownControllerFactory, name)
	}
	return factory, nil
}

// First returns the earliest registered factory.
func (r *FactoryRegistry) First() (string, Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return "", nil, false
	}
	name := r.order[0]
	return name, r.factories[name], true
}

// Has reports whether name is registered.
func (r *FactoryRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names lists factory names in registration order.
func (r *FactoryRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len is the number of registered factories.
func (r *FactoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
