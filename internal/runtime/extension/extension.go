// Package extension is how subsystems plug into a kernel. An extension is
// identified by its module name; adding the extension resource initializes
// it once, and it registers its subsystems, their resource model, the
// writers the persister stores them with, and optional transformers for
// older model versions.
package extension

import (
	"fmt"
	"sort"
	"sync"

	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/logging"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/pathmgr"
	"github.com/drblury/kerneltest/internal/runtime/persister"
	"github.com/drblury/kerneltest/internal/runtime/registry"
	"github.com/drblury/kerneltest/internal/runtime/transform"
)

// Extension contributes subsystems to a kernel.
type Extension interface {
	Module() string
	Initialize(ctx *Context) error
}

type funcExtension struct {
	module string
	init   func(*Context) error
}

func (e funcExtension) Module() string { return e.module }

func (e funcExtension) Initialize(ctx *Context) error {
	if e.init == nil {
		return nil
	}
	return e.init(ctx)
}

// New builds an extension from a module name and an initializer.
func New(module string, init func(*Context) error) Extension {
	return funcExtension{module: module, init: init}
}

// WriterRegistry receives the subsystem writers extensions register. The
// configuration persister implements it.
type WriterRegistry interface {
	RegisterSubsystemWriter(subsystem string, writer persister.SubsystemWriter)
}

// Subsystem records a subsystem an extension registered.
type Subsystem struct {
	Name    string
	Version model.Version
	Module  string
}

// Target is the kernel state an extension initializes into.
type Target struct {
	Root                 *registry.ResourceRegistration
	Transformers         *transform.Registry
	RegisterTransformers bool
}

// Registry tracks known extension modules and which of them have been
// initialized into the kernel.
type Registry struct {
	mu          sync.RWMutex
	modules     map[string]Extension
	order       []string
	initialized map[string]bool
	subsystems  []Subsystem
	writers     WriterRegistry
	paths       *pathmgr.Manager
	log         logging.ServiceLogger
}

// NewRegistry creates an empty registry. Pass nil for a discarding logger.
func NewRegistry(log logging.ServiceLogger) *Registry {
	return &Registry{
		modules:     make(map[string]Extension),
		initialized: make(map[string]bool),
		log:         logging.OrNop(log),
	}
}

// AddModule makes ext available to add-extension operations. A module
// name can be added once.
func (r *Registry) AddModule(ext Extension) error {
	if ext == nil || ext.Module() == "" {
		return fmt.Errorf("%w: extension module name is required", rterrors.ErrOperationInvalid)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[ext.Module()]; exists {
		return fmt.Errorf("%w: extension %s", rterrors.ErrDuplicateResource, ext.Module())
	}
	r.modules[ext.Module()] = ext
	r.order = append(r.order, ext.Module())
	return nil
}

// Module returns the extension registered under name.
func (r *Registry) Module(name string) (Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.modules[name]
	return ext, ok
}

// Modules lists module names in registration order.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// SetWriterRegistry sets where subsystem writers are registered.
func (r *Registry) SetWriterRegistry(writers WriterRegistry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writers = writers
}

// SetPathManager sets the path manager extensions see during boot.
func (r *Registry) SetPathManager(paths *pathmgr.Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = paths
}

// PathManager returns the path manager set for the current kernel.
func (r *Registry) PathManager() *pathmgr.Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paths
}

// IsInitialized reports whether module has been initialized.
func (r *Registry) IsInitialized(module string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized[module]
}

// Initialize runs the extension registered under module against target.
// Initializing a module again does nothing. Unknown modules fail with
// ErrModuleNotFound.
func (r *Registry) Initialize(module string, target Target) error {
	ext, ok := r.Module(module)
	if !ok {
		return fmt.Errorf("%w: %s", rterrors.ErrModuleNotFound, module)
	}
	return r.InitializeExtension(ext, target)
}

// InitializeExtension adds ext if it is unknown and initializes it.
func (r *Registry) InitializeExtension(ext Extension, target Target) error {
	if target.Root == nil {
		return fmt.Errorf("%w: root registration is required", rterrors.ErrOperationInvalid)
	}
	r.mu.Lock()
	if _, known := r.modules[ext.Module()]; !known {
		r.modules[ext.Module()] = ext
		r.order = append(r.order, ext.Module())
	}
	if r.initialized[ext.Module()] {
		r.mu.Unlock()
		return nil
	}
	r.initialized[ext.Module()] = true
	r.mu.Unlock()

	ctx := &Context{module: ext.Module(), registry: r, target: target}
	if err := ext.Initialize(ctx); err != nil {
		r.mu.Lock()
		delete(r.initialized, ext.Module())
		r.mu.Unlock()
		return fmt.Errorf("kerneltest: initialize extension %s: %w", ext.Module(), err)
	}
	r.log.Debug("Extension initialized", logging.LogFields{"module": ext.Module(), "subsystems": len(ctx.subsystems)})
	return nil
}

// Subsystems lists every registered subsystem sorted by name.
func (r *Registry) Subsystems() []Subsystem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]Subsystem(nil), r.subsystems...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Subsystem returns the registration record of the named subsystem.
func (r *Registry) Subsystem(name string) (Subsystem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subsystems {
		if s.Name == name {
			return s, true
		}
	}
	return Subsystem{}, false
}

func (r *Registry) addSubsystem(s Subsystem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.subsystems {
		if existing.Name == s.Name {
			return fmt.Errorf("%w: subsystem %s", rterrors.ErrDuplicateResource, s.Name)
		}
	}
	r.subsystems = append(r.subsystems, s)
	return nil
}

func (r *Registry) writerRegistry() WriterRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writers
}
