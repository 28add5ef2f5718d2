package runtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/logging"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/registry"
	"github.com/drblury/kerneltest/internal/runtime/transform"
)

// MainKernelServices is a kernel running the current model version. It
// links legacy kernels by model version so tests can compare transformed
// models and operations against them.
type MainKernelServices struct {
	*kernelServices

	mu     sync.RWMutex
	legacy map[model.Version]*LegacyKernelServices
}

func newMainKernelServices(base *kernelServices) *MainKernelServices {
	return &MainKernelServices{
		kernelServices: base,
		legacy:         make(map[model.Version]*LegacyKernelServices),
	}
}

// AddLegacyKernelService links legacy for version. Each version links at
// most one legacy kernel.
func (m *MainKernelServices) AddLegacyKernelService(version model.Version, legacy *LegacyKernelServices) error {
	if legacy == nil {
		return rterrors.ErrLegacyServicesRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.legacy[version]; exists {
		return fmt.Errorf("%w: %s", rterrors.ErrLegacyVersionAlreadyLinked, version)
	}
	m.legacy[version] = legacy
	m.session.metrics.RecordLegacyLink(version.String())
	m.log.Debug("Legacy kernel linked", logging.LogFields{
		"model_version":    version.String(),
		"legacy_container": legacy.ContainerName(),
	})
	return nil
}

// LegacyServices returns the kernel linked for version.
func (m *MainKernelServices) LegacyServices(version model.Version) (*LegacyKernelServices, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	legacy, ok := m.legacy[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", rterrors.ErrLegacyVersionNotLinked, version)
	}
	return legacy, nil
}

// LegacyVersions lists the linked versions, oldest first.
func (m *MainKernelServices) LegacyVersions() []model.Version {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Version, 0, len(m.legacy))
	for v := range m.legacy {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// ReadTransformedModel is ReadTransformedModelWith(version, true).
func (m *MainKernelServices) ReadTransformedModel(version model.Version) (*dmr.Node, error) {
	return m.ReadTransformedModelWith(version, true)
}

// ReadTransformedModelWith reads the whole model, runs the main
// subsystem's resource transformer for version and keeps only what the
// linked legacy kernel registers. With includeDefaults unset attributes
// report their defaults before transformation.
func (m *MainKernelServices) ReadTransformedModelWith(version model.Version, includeDefaults bool) (*dmr.Node, error) {
	legacy, err := m.LegacyServices(version)
	if err != nil {
		return nil, err
	}
	whole, err := m.ReadWholeModel(includeDefaults)
	if err != nil {
		return nil, err
	}

	subsystems := whole.Get(model.SubsystemKey)
	if current := subsystems.Get(m.subsystem); current.IsDefined() {
		transformed, err := m.controller.Transformers().TransformResource(m.transformContext(version), model.Subsystem(m.subsystem), current)
		if err != nil {
			return nil, fmt.Errorf("kerneltest: transform %s to %s: %w", m.subsystem, version, err)
		}
		subsystems.Set(m.subsystem, transformed)
	}

	legacyRoot, ok := registry.Unwrap(legacy.RootRegistration())
	if !ok {
		return nil, fmt.Errorf("kerneltest: legacy kernel %s exposes no resource registration", legacy.ContainerName())
	}
	restrict(legacyRoot, whole)
	return whole, nil
}

// CheckTransformedModel compares the transformed main subsystem with the
// subsystem model of the legacy kernel. The result is empty when they
// match.
func (m *MainKernelServices) CheckTransformedModel(version model.Version) (string, error) {
	transformed, err := m.ReadTransformedModel(version)
	if err != nil {
		return "", err
	}
	legacy, err := m.LegacyServices(version)
	if err != nil {
		return "", err
	}
	legacyModel, err := legacy.ReadWholeModel(true)
	if err != nil {
		return "", err
	}
	want := legacyModel.Get(model.SubsystemKey).Get(m.subsystem)
	got := transformed.Get(model.SubsystemKey).Get(m.subsystem)
	return dmr.Diff(want, got), nil
}

// TransformOperation rewrites op for the kernel linked at version. Only
// operations addressed to the main subsystem are transformed; composite
// steps are transformed one by one and drop discarded steps.
func (m *MainKernelServices) TransformOperation(version model.Version, op *dmr.Node) (transform.OperationResult, error) {
	if _, err := m.LegacyServices(version); err != nil {
		return transform.OperationResult{}, err
	}
	return m.transformOperation(m.transformContext(version), op)
}

func (m *MainKernelServices) transformOperation(ctx transform.Context, op *dmr.Node) (transform.OperationResult, error) {
	if model.OperationName(op) == model.Composite {
		steps := dmr.NewList()
		for _, step := range op.Get(model.Steps).Items() {
			result, err := m.transformOperation(ctx, step)
			if err != nil || result.Rejected {
				return result, err
			}
			if !result.Discarded() {
				steps.Add(result.Op)
			}
		}
		out := op.Clone()
		out.Set(model.Steps, steps)
		return transform.Rewrite(out), nil
	}

	addr, err := model.OperationAddress(op)
	if err != nil {
		return transform.OperationResult{}, err
	}
	if addr.Len() == 0 || addr.Element(0) != model.Element(model.SubsystemKey, m.subsystem) {
		return transform.Rewrite(op.Clone()), nil
	}
	return m.controller.Transformers().TransformOperation(ctx, addr, op)
}

// ExecuteInLegacy transforms op for version and runs it on the linked
// legacy kernel. A discarded operation returns a nil response; a rejected
// one returns the rejection.
func (m *MainKernelServices) ExecuteInLegacy(version model.Version, op *dmr.Node) (*dmr.Node, error) {
	result, err := m.TransformOperation(version, op)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	if result.Discarded() {
		return nil, nil
	}
	legacy, err := m.LegacyServices(version)
	if err != nil {
		return nil, err
	}
	return legacy.ExecuteOperation(result.Op), nil
}

// TransformerAttachment returns what the last operation attached, and
// false when the kernel was created without the attachment grabber.
func (m *MainKernelServices) TransformerAttachment() (*dmr.Node, bool) {
	return m.controller.Attachment()
}

func (m *MainKernelServices) transformContext(version model.Version) transform.Context {
	ctx := transform.Context{Subsystem: m.subsystem, Target: version}
	if attachment, ok := m.controller.Attachment(); ok {
		ctx.Attachment = attachment
	}
	return ctx
}

// restrict removes from resource every key reg defines neither as an
// attribute nor as a child type, recursively.
func restrict(reg *registry.ResourceRegistration, resource *dmr.Node) {
	if resource.Kind() != dmr.Object {
		return
	}
	types := make(map[string]bool)
	for _, element := range reg.ChildElements() {
		types[element.Key] = true
	}
	for _, key := range resource.Keys() {
		if _, ok := reg.Attribute(key); ok {
			continue
		}
		if !types[key] {
			resource.Remove(key)
			continue
		}
		children := resource.Get(key)
		if children.Kind() != dmr.Object {
			continue
		}
		for _, name := range children.Keys() {
			child, ok := reg.Find(model.Address(model.Element(key, name)))
			if !ok {
				children.Remove(name)
				continue
			}
			restrict(child, children.Get(name))
		}
	}
}

// ShutdownAll stops the linked legacy kernels and then this kernel.
func (m *MainKernelServices) ShutdownAll() error {
	var errs []error
	for _, version := range m.LegacyVersions() {
		legacy, err := m.LegacyServices(version)
		if err != nil {
			continue
		}
		if err := legacy.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("legacy %s: %w", version, err))
		}
	}
	if err := m.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
