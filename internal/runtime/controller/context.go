package controller

import (
	"fmt"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/registry"
)

// operationContext implements registry.OperationContext for one
// operation. The controller lock is held while it is in use.
type operationContext struct {
	svc      *ModelControllerService
	addr     model.PathAddress
	reg      *registry.ResourceRegistration
	booting  bool
	attached *dmr.Node
}

func (c *operationContext) Address() model.PathAddress { return c.addr }

func (c *operationContext) Registration() *registry.ResourceRegistration { return c.reg }

func (c *operationContext) Booting() bool { return c.booting }

func (c *operationContext) Attach(key string, value *dmr.Node) {
	c.attached.Set(key, value.Clone())
}

func (c *operationContext) Model() (*dmr.Node, error) {
	res, ok := c.svc.model.navigate(c.addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", rterrors.ErrResourceNotFound, c.addr)
	}
	return res.attrs, nil
}

func (c *operationContext) CreateResource() (*dmr.Node, error) {
	if c.addr.IsRoot() {
		return nil, fmt.Errorf("%w: the root resource always exists", rterrors.ErrDuplicateResource)
	}
	parent, ok := c.svc.model.navigate(c.addr.Parent())
	if !ok {
		return nil, fmt.Errorf("%w: parent of %s", rterrors.ErrResourceNotFound, c.addr)
	}
	element := c.addr.Last()
	if _, exists := parent.child(element); exists {
		return nil, fmt.Errorf("%w: %s", rterrors.ErrDuplicateResource, c.addr)
	}
	child := newResource()
	parent.addChild(element, child)
	return child.attrs, nil
}

func (c *operationContext) RemoveResource() error {
	if c.addr.IsRoot() {
		return fmt.Errorf("%w: the root resource cannot be removed", rterrors.ErrOperationInvalid)
	}
	parent, ok := c.svc.model.navigate(c.addr.Parent())
	if !ok || !parent.removeChild(c.addr.Last()) {
		return fmt.Errorf("%w: %s", rterrors.ErrResourceNotFound, c.addr)
	}
	return nil
}

func (c *operationContext) ReadResource(addr model.PathAddress, recursive, includeDefaults bool) (*dmr.Node, error) {
	res, ok := c.svc.model.navigate(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", rterrors.ErrResourceNotFound, addr)
	}
	reg, ok := c.svc.root.Find(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", rterrors.ErrResourceNotFound, addr)
	}
	return res.read(reg, recursive, includeDefaults), nil
}

func (c *operationContext) ChildNames(childType string) ([]string, error) {
	res, ok := c.svc.model.navigate(c.addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", rterrors.ErrResourceNotFound, c.addr)
	}
	return res.childNames(childType), nil
}

// Execute runs a nested step and returns its result, or the failure as an
// error.
func (c *operationContext) Execute(op *dmr.Node) (*dmr.Node, error) {
	response := c.svc.run(op, c.booting, false)
	if !model.IsSuccess(response) {
		return nil, failureOf(op, response)
	}
	return response.Get(model.Result), nil
}
