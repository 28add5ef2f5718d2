package registry

import (
	"github.com/drblury/kerneltest/internal/runtime/model"
)

// legacyView hides the Immutable read view so callers only see the
// address-relative API older controllers exposed.
type legacyView struct {
	reg *ResourceRegistration
}

// LegacyView wraps reg in a Registration that implements Legacy but not
// Immutable. Registrations resolved through it are wrapped the same way.
func LegacyView(reg *ResourceRegistration) Registration {
	return legacyView{reg: reg}
}

func (v legacyView) Address() model.PathAddress { return v.reg.Address() }

func (v legacyView) Description() string { return v.reg.Description() }

func (v legacyView) Resolve(addr model.PathAddress) (Registration, bool) {
	found, ok := v.reg.Find(addr)
	if !ok {
		return nil, false
	}
	return legacyView{reg: found}, true
}

func (v legacyView) RegisterSubModel(element model.PathElement, description string) (Registration, error) {
	child, err := v.reg.AddChild(element, description)
	if err != nil {
		return nil, err
	}
	return legacyView{reg: child}, nil
}

func (v legacyView) RegisterAttribute(def AttributeDefinition) error {
	return v.reg.RegisterAttribute(def)
}

func (v legacyView) RegisterOperation(entry OperationEntry) error {
	return v.reg.RegisterOperation(entry)
}

func (v legacyView) Attribute(name string) (AttributeDefinition, bool) {
	return v.reg.Attribute(name)
}

func (v legacyView) Operation(name string) (OperationEntry, bool) {
	return v.reg.Operation(name)
}

func (v legacyView) GetDescription(addr model.PathAddress) (string, error) {
	return v.reg.GetDescription(addr)
}

func (v legacyView) GetAttributeNames(addr model.PathAddress) ([]string, error) {
	return v.reg.GetAttributeNames(addr)
}

func (v legacyView) GetAttributeDefinition(addr model.PathAddress, name string) (AttributeDefinition, error) {
	return v.reg.GetAttributeDefinition(addr, name)
}

func (v legacyView) GetOperationNames(addr model.PathAddress) ([]string, error) {
	return v.reg.GetOperationNames(addr)
}

func (v legacyView) GetOperationEntry(addr model.PathAddress, name string) (OperationEntry, error) {
	return v.reg.GetOperationEntry(addr, name)
}

func (v legacyView) GetChildAddresses(addr model.PathAddress) ([]model.PathElement, error) {
	return v.reg.GetChildAddresses(addr)
}

// Unwrap returns the concrete registration behind a Registration, if any.
func Unwrap(reg Registration) (*ResourceRegistration, bool) {
	switch r := reg.(type) {
	case *ResourceRegistration:
		return r, true
	case legacyView:
		return r.reg, true
	default:
		return nil, false
	}
}
