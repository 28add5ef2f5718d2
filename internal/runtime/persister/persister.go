// Package persister captures the boot operation log of a kernel and
// serializes it through a pluggable format. When persisting is enabled,
// loading verifies the log survives a marshal/unmarshal round trip and
// storing rewrites the log from the live model.
package persister

import (
	"fmt"
	"sync"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
	"github.com/drblury/kerneltest/internal/runtime/format"
	"github.com/drblury/kerneltest/internal/runtime/logging"
	"github.com/drblury/kerneltest/internal/runtime/model"
	"github.com/drblury/kerneltest/internal/runtime/registry"
)

// SubsystemWriter turns the model of one subsystem into the operations
// that recreate it. The address is /subsystem=<name>.
type SubsystemWriter func(addr model.PathAddress, subsystem *dmr.Node, reg *registry.ResourceRegistration) ([]*dmr.Node, error)

// ConfigurationPersister holds the boot log a kernel replays.
type ConfigurationPersister struct {
	mu         sync.RWMutex
	bootOps    []*dmr.Node
	parser     format.Parser
	persist    bool
	writers    map[string]SubsystemWriter
	marshalled []byte
	stored     []*dmr.Node
	log        logging.ServiceLogger
}

// New copies ops; the caller's slice and nodes are never modified.
func New(ops []*dmr.Node, parser format.Parser, persist bool) (*ConfigurationPersister, error) {
	if parser == nil {
		return nil, rterrors.ErrParserRequired
	}
	return &ConfigurationPersister{
		bootOps: cloneAll(ops),
		parser:  parser,
		persist: persist,
		writers: make(map[string]SubsystemWriter),
		log:     logging.NopLogger(),
	}, nil
}

// SetLogger replaces the discarding default logger.
func (p *ConfigurationPersister) SetLogger(log logging.ServiceLogger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = logging.OrNop(log)
}

// BootOperations returns a copy of the captured boot log.
func (p *ConfigurationPersister) BootOperations() []*dmr.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneAll(p.bootOps)
}

// Parser returns the format the log is serialized with.
func (p *ConfigurationPersister) Parser() format.Parser { return p.parser }

// PersistEnabled reports whether round trips and stores happen.
func (p *ConfigurationPersister) PersistEnabled() bool { return p.persist }

// Load returns the operations to replay. With persisting enabled they are
// the parsed form of the marshalled log, and any difference from the
// captured log fails with ErrRoundTripMismatch.
func (p *ConfigurationPersister) Load() ([]*dmr.Node, error) {
	ops := p.BootOperations()
	if !p.persist {
		return ops, nil
	}
	data, err := p.parser.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("kerneltest: marshal boot log as %s: %w", p.parser.Name(), err)
	}
	parsed, err := p.parser.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("kerneltest: parse boot log as %s: %w", p.parser.Name(), err)
	}
	if err := compare(ops, parsed); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.marshalled = data
	p.mu.Unlock()
	return parsed, nil
}

func compare(want, got []*dmr.Node) error {
	if len(want) != len(got) {
		return fmt.Errorf("%w: %d operations marshalled, %d parsed", rterrors.ErrRoundTripMismatch, len(want), len(got))
	}
	for idx := range want {
		if !want[idx].Equal(got[idx]) {
			return fmt.Errorf("%w: operation %d differs:\n%s", rterrors.ErrRoundTripMismatch, idx, dmr.Diff(want[idx], got[idx]))
		}
	}
	return nil
}

// RegisterSubsystemWriter sets the writer used for a subsystem when the
// model is stored. Subsystems without one use the generic writer.
func (p *ConfigurationPersister) RegisterSubsystemWriter(subsystem string, writer SubsystemWriter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writers[subsystem] = writer
}

// Store rewrites the persisted log from a recursive read of the root
// resource. It does nothing unless persisting is enabled.
func (p *ConfigurationPersister) Store(root *dmr.Node, reg *registry.ResourceRegistration) error {
	if !p.persist {
		return nil
	}
	ops, err := p.ModelOperations(root, reg)
	if err != nil {
		return err
	}
	data, err := p.parser.Marshal(ops)
	if err != nil {
		return fmt.Errorf("kerneltest: marshal model as %s: %w", p.parser.Name(), err)
	}
	p.mu.Lock()
	p.marshalled = data
	p.stored = ops
	log := p.log
	p.mu.Unlock()
	log.Debug("Model stored", logging.LogFields{"operations": len(ops), "format": p.parser.Name()})
	return nil
}

// ModelOperations turns a root model into add operations: extensions
// first, then every other child type in model order.
func (p *ConfigurationPersister) ModelOperations(root *dmr.Node, reg *registry.ResourceRegistration) ([]*dmr.Node, error) {
	keys := root.Keys()
	ordered := make([]string, 0, len(keys))
	if root.Has(model.ExtensionKey) {
		ordered = append(ordered, model.ExtensionKey)
	}
	for _, key := range keys {
		if key != model.ExtensionKey {
			ordered = append(ordered, key)
		}
	}

	childTypes := childTypes(reg)
	var ops []*dmr.Node
	for _, key := range ordered {
		if !childTypes[key] {
			continue
		}
		children := root.Get(key)
		for _, value := range children.Keys() {
			element := model.Element(key, value)
			addr := model.Address(element)
			childReg, ok := reg.Find(addr)
			if !ok {
				return nil, fmt.Errorf("%w: %s", rterrors.ErrResourceNotFound, addr)
			}
			writer := GenericWriter
			if key == model.SubsystemKey {
				p.mu.RLock()
				if custom, ok := p.writers[value]; ok {
					writer = custom
				}
				p.mu.RUnlock()
			}
			childOps, err := writer(addr, children.Get(value), childReg)
			if err != nil {
				return nil, fmt.Errorf("kerneltest: write %s: %w", addr, err)
			}
			ops = append(ops, childOps...)
		}
	}
	return ops, nil
}

// GenericWriter emits an add for the resource with its defined attributes,
// then recurses into children.
func GenericWriter(addr model.PathAddress, resource *dmr.Node, reg *registry.ResourceRegistration) ([]*dmr.Node, error) {
	types := childTypes(reg)
	params := dmr.New()
	for _, key := range resource.Keys() {
		if types[key] || !resource.Get(key).IsDefined() {
			continue
		}
		params.Set(key, resource.Get(key).Clone())
	}
	ops := []*dmr.Node{model.CreateAddOperation(addr, params)}
	for _, key := range resource.Keys() {
		if !types[key] {
			continue
		}
		children := resource.Get(key)
		for _, value := range children.Keys() {
			element := model.Element(key, value)
			childReg, ok := reg.Find(model.Address(element))
			if !ok {
				return nil, fmt.Errorf("%w: %s", rterrors.ErrResourceNotFound, addr.Append(element))
			}
			childOps, err := GenericWriter(addr.Append(element), children.Get(value), childReg)
			if err != nil {
				return nil, err
			}
			ops = append(ops, childOps...)
		}
	}
	return ops, nil
}

func childTypes(reg *registry.ResourceRegistration) map[string]bool {
	types := make(map[string]bool)
	for _, element := range reg.ChildElements() {
		types[element.Key] = true
	}
	return types
}

// Marshalled returns the last marshalled log, empty before the first
// Load or Store with persisting enabled.
func (p *ConfigurationPersister) Marshalled() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return string(p.marshalled)
}

// StoredOperations returns the operations of the last Store.
func (p *ConfigurationPersister) StoredOperations() []*dmr.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneAll(p.stored)
}

func cloneAll(ops []*dmr.Node) []*dmr.Node {
	out := make([]*dmr.Node, len(ops))
	for idx, op := range ops {
		out[idx] = op.Clone()
	}
	return out
}
