package extension

import (
	"fmt"

	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/logging"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/pathmgr"
	"github.com/drblury/kerneltest/internal/runtime/persister"
	"github.com/drblury/kerneltest/internal/runtime/registry"
	"github.com/drblury/kerneltest/internal/runtime/transform"
)

// Context is handed to Extension.Initialize.
type Context struct {
	module     string
	registry   *Registry
	target     Target
	subsystems []*SubsystemRegistration
}

// Module is the module being initialized.
func (c *Context) Module() string { return c.module }

// PathManager returns the kernel's path manager, nil outside a kernel.
func (c *Context) PathManager() *pathmgr.Manager { return c.registry.PathManager() }

// Logger returns the registry logger scoped to the module.
func (c *Context) Logger() logging.ServiceLogger {
	return c.registry.log.With(logging.LogFields{"module": c.module})
}

// RegisterSubsystem declares a subsystem and its current model version.
func (c *Context) RegisterSubsystem(name string, version model.Version) (*SubsystemRegistration, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: subsystem name is required", rterrors.ErrOperationInvalid)
	}
	if err := c.registry.addSubsystem(Subsystem{Name: name, Version: version, Module: c.module}); err != nil {
		return nil, err
	}
	reg := &SubsystemRegistration{name: name, version: version, ctx: c}
	c.subsystems = append(c.subsystems, reg)
	return reg, nil
}

// SubsystemRegistration is what an extension uses to describe one
// subsystem.
type SubsystemRegistration struct {
	name    string
	version model.Version
	ctx     *Context
	reg     *registry.ResourceRegistration
}

func (s *SubsystemRegistration) Name() string { return s.name }

func (s *SubsystemRegistration) Version() model.Version { return s.version }

// RegisterSubsystemModel registers /subsystem=<name> under the root.
func (s *SubsystemRegistration) RegisterSubsystemModel(description string) (*registry.ResourceRegistration, error) {
	if s.reg != nil {
		return nil, fmt.Errorf("%w: subsystem %s model", rterrors.ErrDuplicateResource, s.name)
	}
	reg, err := s.ctx.target.Root.AddChild(model.Element(model.SubsystemKey, s.name), description)
	if err != nil {
		return nil, err
	}
	s.reg = reg
	return reg, nil
}

// Registration returns the subsystem registration, nil before
// RegisterSubsystemModel.
func (s *SubsystemRegistration) Registration() *registry.ResourceRegistration { return s.reg }

// RegisterWriter sets the persister writer for the subsystem.
func (s *SubsystemRegistration) RegisterWriter(writer persister.SubsystemWriter) {
	if writers := s.ctx.registry.writerRegistry(); writers != nil {
		writers.RegisterSubsystemWriter(s.name, writer)
	}
}

// TransformersEnabled reports whether the kernel wants transformers.
func (s *SubsystemRegistration) TransformersEnabled() bool {
	return s.ctx.target.RegisterTransformers && s.ctx.target.Transformers != nil
}

// RegisterTransformers stores transformers for an older model version. It
// does nothing when the kernel was created without transformers.
func (s *SubsystemRegistration) RegisterTransformers(version model.Version, t transform.Transformers) error {
	if !s.TransformersEnabled() {
		return nil
	}
	return s.ctx.target.Transformers.Register(s.name, version, t)
}
