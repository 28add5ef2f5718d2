package controller

import (
	"fmt"
	"sync"

	"github.com/drblury/kerneltest/internal/runtime/container"
	"github.com/drblury/kerneltest/internal/runtime/dmr"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/pathmgr"
	"github.com/drblury/kerneltest/internal/runtime/registry"
)

// SystemProperty is a name/value pair added to the boot log.
type SystemProperty struct {
	Name  string
	Value string
}

// Initializer collects what a test wants in place before its own boot
// operations run: paths, system properties and arbitrary extra operations.
type Initializer struct {
	mu         sync.Mutex
	paths      *pathmgr.Manager
	entries    []pathmgr.Entry
	properties []SystemProperty
	extraOps   []*dmr.Node
}

// NewInitializer returns an empty initializer.
func NewInitializer() *Initializer { return &Initializer{} }

// SetPathManager sets the path manager the kernel's controller uses.
func (i *Initializer) SetPathManager(paths *pathmgr.Manager) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.paths = paths
}

// PathManager returns the path manager, nil until set.
func (i *Initializer) PathManager() *pathmgr.Manager {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.paths
}

// AddPath adds an add operation for /path=name.
func (i *Initializer) AddPath(name, path, relativeTo string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries = append(i.entries, pathmgr.Entry{Name: name, Path: path, RelativeTo: relativeTo})
}

// AddSystemProperty adds an add operation for /system-property=name.
func (i *Initializer) AddSystemProperty(name, value string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.properties = append(i.properties, SystemProperty{Name: name, Value: value})
}

// AddBootOperation appends op after the path and property operations.
func (i *Initializer) AddBootOperation(op *dmr.Node) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.extraOps = append(i.extraOps, op.Clone())
}

// InitializeBootOperations returns the extra operations in the order
// system properties, paths, then explicitly added operations. It returns
// nil when there are none.
func (i *Initializer) InitializeBootOperations() []*dmr.Node {
	i.mu.Lock()
	defer i.mu.Unlock()
	var ops []*dmr.Node
	for _, prop := range i.properties {
		addr := model.Address(model.Element(model.SystemPropertyKey, prop.Name))
		ops = append(ops, model.CreateAddOperation(addr, dmr.New().SetString(model.Value, prop.Value)))
	}
	for _, entry := range i.entries {
		params := dmr.New().SetString(model.PathKey, entry.Path)
		if entry.RelativeTo != "" {
			params.SetString(model.RelativeTo, entry.RelativeTo)
		}
		ops = append(ops, model.CreateAddOperation(model.Address(model.Element(model.PathKey, entry.Name)), params))
	}
	for _, op := range i.extraOps {
		ops = append(ops, op.Clone())
	}
	return ops
}

// AdditionalInitialization lets a test shape the kernel around its
// subsystem.
type AdditionalInitialization interface {
	// CreateControllerInitializer returns a fresh initializer.
	CreateControllerInitializer() *Initializer
	// SetupController fills the initializer once its path manager is set.
	SetupController(init *Initializer)
	// AddExtraServices installs additional container services.
	AddExtraServices(target *container.Target) error
	// InitializeModel registers extra resource types on the root before
	// the boot log is replayed.
	InitializeModel(root *registry.ResourceRegistration) error
}

// ExtraService is a container service Initialization installs.
type ExtraService struct {
	Name         string
	Service      container.Service
	Dependencies []string
}

// Initialization is the stock AdditionalInitialization. The zero value
// adds nothing.
type Initialization struct {
	Paths            []pathmgr.Entry
	SystemProperties []SystemProperty
	BootOperations   []*dmr.Node
	Services         []ExtraService
	// Setup runs after the declared paths and properties were added.
	Setup func(init *Initializer)
	// Model registers extra resource types.
	Model func(root *registry.ResourceRegistration) error
}

func (in *Initialization) CreateControllerInitializer() *Initializer { return NewInitializer() }

func (in *Initialization) SetupController(init *Initializer) {
	for _, prop := range in.SystemProperties {
		init.AddSystemProperty(prop.Name, prop.Value)
	}
	for _, entry := range in.Paths {
		init.AddPath(entry.Name, entry.Path, entry.RelativeTo)
	}
	for _, op := range in.BootOperations {
		init.AddBootOperation(op)
	}
	if in.Setup != nil {
		in.Setup(init)
	}
}

func (in *Initialization) AddExtraServices(target *container.Target) error {
	for _, svc := range in.Services {
		if err := target.AddService(svc.Name, svc.Service).AddDependency(svc.Dependencies...).Install(); err != nil {
			return fmt.Errorf("kerneltest: install extra service %s: %w", svc.Name, err)
		}
	}
	return nil
}

func (in *Initialization) InitializeModel(root *registry.ResourceRegistration) error {
	if in.Model == nil {
		return nil
	}
	return in.Model(root)
}
