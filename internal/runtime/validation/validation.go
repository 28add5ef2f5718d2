// Package validation checks operations against the resource registrations
// of a kernel before they run: the target must be registered, the
// operation must exist there and its parameters must match the declared
// attributes.
package validation

import (
	"errors"
	"fmt"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/registry"
)

// Action decides how a filtered operation is validated.
type Action int

const (
	// Check runs full validation.
	Check Action = iota
	// NoCheck skips validation entirely.
	NoCheck
	// ResolveOnly checks the address and operation name but not parameters.
	ResolveOnly
)

type rule struct {
	addr   model.PathAddress
	name   string
	action Action
}

// Filter selects operations to exempt from validation. A nil Filter
// checks everything.
type Filter struct {
	rules []rule
	all   *Action
}

// NewFilter returns a filter that checks every operation.
func NewFilter() *Filter { return &Filter{} }

// ValidateNone returns a filter that skips every operation.
func ValidateNone() *Filter {
	action := NoCheck
	return &Filter{all: &action}
}

// AddOperation sets the action for operation name at addr. addr may
// contain wildcard values and name may be "*".
func (f *Filter) AddOperation(addr model.PathAddress, name string, action Action) *Filter {
	f.rules = append(f.rules, rule{addr: addr, name: name, action: action})
	return f
}

// Action returns the action for the operation; the first matching rule
// wins.
func (f *Filter) Action(addr model.PathAddress, name string) Action {
	if f == nil {
		return Check
	}
	if f.all != nil {
		return *f.all
	}
	for _, r := range f.rules {
		if (r.name == model.Wildcard || r.name == name) && matches(r.addr, addr) {
			return r.action
		}
	}
	return Check
}

func matches(pattern, addr model.PathAddress) bool {
	if pattern.Len() != addr.Len() {
		return false
	}
	for idx := 0; idx < pattern.Len(); idx++ {
		if !pattern.Element(idx).Matches(addr.Element(idx)) {
			return false
		}
	}
	return true
}

// OperationValidator validates operations against a root registration.
type OperationValidator struct {
	root   *registry.ResourceRegistration
	filter *Filter
}

// NewOperationValidator validates against root. Use WithFilter to exempt
// operations.
func NewOperationValidator(root *registry.ResourceRegistration) *OperationValidator {
	return &OperationValidator{root: root}
}

// WithFilter returns a copy of v that consults filter.
func (v *OperationValidator) WithFilter(filter *Filter) *OperationValidator {
	return &OperationValidator{root: v.root, filter: filter}
}

// ValidateOperations validates every operation and joins the failures.
func (v *OperationValidator) ValidateOperations(ops []*dmr.Node) error {
	var errs []error
	for idx, op := range ops {
		if err := v.ValidateOperation(op); err != nil {
			errs = append(errs, fmt.Errorf("operation %d: %w", idx, err))
		}
	}
	return errors.Join(errs...)
}

// ValidateOperation validates a single operation, descending into the
// steps of composites.
func (v *OperationValidator) ValidateOperation(op *dmr.Node) error {
	name := model.OperationName(op)
	if name == "" {
		return fmt.Errorf("%w: missing %q", rterrors.ErrOperationInvalid, model.OP)
	}
	addr, err := model.OperationAddress(op)
	if err != nil {
		return fmt.Errorf("%w: %v", rterrors.ErrOperationInvalid, err)
	}

	action := v.filter.Action(addr, name)
	if action == NoCheck {
		return nil
	}

	reg, ok := v.root.Find(addr)
	if !ok {
		return fmt.Errorf("%w: %s", rterrors.ErrResourceNotFound, addr)
	}
	entry, ok := reg.Operation(name)
	if !ok {
		return fmt.Errorf("%w: %s at %s", rterrors.ErrOperationNotFound, name, addr)
	}

	if name == model.Composite {
		var errs []error
		for idx, step := range op.Get(model.Steps).Items() {
			if err := v.ValidateOperation(step); err != nil {
				errs = append(errs, fmt.Errorf("step %d: %w", idx, err))
			}
		}
		return errors.Join(errs...)
	}
	if action == ResolveOnly {
		return nil
	}

	params := entry.Parameters
	if name == model.Add {
		params = reg.Attributes()
	}
	return validateParameters(name, addr, op, params)
}

var reserved = map[string]bool{
	model.OP:      true,
	model.OPAddr:  true,
	model.Headers: true,
}

func validateParameters(name string, addr model.PathAddress, op *dmr.Node, params []registry.AttributeDefinition) error {
	declared := make(map[string]registry.AttributeDefinition, len(params))
	for _, def := range params {
		declared[def.Name] = def
	}

	var errs []error
	if len(params) > 0 || name == model.Add {
		for _, key := range op.Keys() {
			if reserved[key] {
				continue
			}
			if _, ok := declared[key]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s for %s at %s", rterrors.ErrUnknownAttribute, key, name, addr))
			}
		}
	}
	for _, def := range params {
		value := op.Get(def.Name)
		if !value.IsDefined() {
			if def.Required && !def.Default.IsDefined() {
				errs = append(errs, fmt.Errorf("%w: %s requires %s at %s", rterrors.ErrOperationInvalid, name, def.Name, addr))
			}
			continue
		}
		if err := CheckType(def, value); err != nil {
			errs = append(errs, fmt.Errorf("%s at %s: %w", name, addr, err))
		}
	}
	return errors.Join(errs...)
}

// CheckType reports whether value is acceptable for def. Scalars convert
// the way the model does: numeric strings are valid integers, "true" and
// "false" are valid booleans.
func CheckType(def registry.AttributeDefinition, value *dmr.Node) error {
	var err error
	switch def.Type {
	case dmr.Int:
		_, err = value.AsInt()
	case dmr.Bool:
		_, err = value.AsBool()
	case dmr.String:
		if value.Kind() == dmr.List || value.Kind() == dmr.Object {
			err = fmt.Errorf("expected %s, got %s", def.Type, value.Kind())
		}
	case dmr.List, dmr.Object, dmr.Bytes:
		if value.Kind() != def.Type {
			err = fmt.Errorf("expected %s, got %s", def.Type, value.Kind())
		}
	}
	if err != nil {
		return fmt.Errorf("%w: attribute %s: %v", rterrors.ErrOperationInvalid, def.Name, err)
	}
	return nil
}
