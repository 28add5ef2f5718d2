// Package transform holds the transformers subsystems register for older
// model versions, keyed by subsystem name and target version, and the
// helpers the kernel uses to apply them.
//
// The rules themselves are supplied by extensions; when nothing is
// registered for a subsystem and version, transformation is the identity.
package transform

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
	"github.com/drblury/kerneltest/internal/runtime/model"
)

var (
	ErrAlreadyRegistered = errors.New("kerneltest: transformers already registered for version")
	ErrRejected          = errors.New("kerneltest: operation rejected by transformer")
)

// Context is handed to every transformer invocation.
type Context struct {
	Subsystem string
	Target    model.Version
	// Attachment is the data the last executed operation attached for
	// transformers; undefined when the grabber is off.
	Attachment *dmr.Node
}

// ResourceTransformer rewrites a subsystem model for an older version.
type ResourceTransformer func(ctx Context, addr model.PathAddress, resource *dmr.Node) (*dmr.Node, error)

// OperationTransformer rewrites one operation for an older version.
type OperationTransformer func(ctx Context, addr model.PathAddress, op *dmr.Node) (OperationResult, error)

// OperationResult is the outcome of transforming an operation. A nil Op
// with Rejected unset means the operation is discarded.
type OperationResult struct {
	Op           *dmr.Node
	Rejected     bool
	RejectReason string
}

// Discarded reports whether the legacy kernel should not see the operation.
func (r OperationResult) Discarded() bool {
	return r.Op == nil && !r.Rejected
}

// Err returns ErrRejected wrapped with the reason when rejected.
func (r OperationResult) Err() error {
	if !r.Rejected {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRejected, r.RejectReason)
}

// Rewrite keeps op, possibly modified.
func Rewrite(op *dmr.Node) OperationResult { return OperationResult{Op: op} }

// Discard drops the operation.
func Discard() OperationResult { return OperationResult{} }

// Reject refuses the operation for the target version.
func Reject(reason string) OperationResult {
	return OperationResult{Rejected: true, RejectReason: reason}
}

// Transformers bundles what a subsystem registers for one version.
type Transformers struct {
	Resource   ResourceTransformer
	Operations map[string]OperationTransformer
}

// Registry is keyed by subsystem then target version. Safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]map[model.Version]Transformers
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]map[model.Version]Transformers)}
}

// Register stores transformers for subsystem at version. Registering the
// same pair twice is an error.
func (r *Registry) Register(subsystem string, version model.Version, t Transformers) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.entries[subsystem]
	if !ok {
		versions = make(map[model.Version]Transformers)
		r.entries[subsystem] = versions
	}
	if _, exists := versions[version]; exists {
		return fmt.Errorf("%w: %s %s", ErrAlreadyRegistered, subsystem, version)
	}
	ops := make(map[string]OperationTransformer, len(t.Operations))
	for name, fn := range t.Operations {
		ops[name] = fn
	}
	versions[version] = Transformers{Resource: t.Resource, Operations: ops}
	return nil
}

// Lookup returns the transformers for subsystem at version.
func (r *Registry) Lookup(subsystem string, version model.Version) (Transformers, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.entries[subsystem][version]
	return t, ok
}

// Versions lists the versions subsystem registered, oldest first.
func (r *Registry) Versions(subsystem string) []model.Version {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Version, 0, len(r.entries[subsystem]))
	for v := range r.entries[subsystem] {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// TransformResource applies the resource transformer, or returns a copy of
// resource when none is registered.
func (r *Registry) TransformResource(ctx Context, addr model.PathAddress, resource *dmr.Node) (*dmr.Node, error) {
	t, ok := r.Lookup(ctx.Subsystem, ctx.Target)
	if !ok || t.Resource == nil {
		return resource.Clone(), nil
	}
	return t.Resource(ctx, addr, resource.Clone())
}

// TransformOperation applies the operation transformer registered for the
// operation name, or keeps a copy of op unchanged.
func (r *Registry) TransformOperation(ctx Context, addr model.PathAddress, op *dmr.Node) (OperationResult, error) {
	t, ok := r.Lookup(ctx.Subsystem, ctx.Target)
	if !ok {
		return Rewrite(op.Clone()), nil
	}
	fn, ok := t.Operations[model.OperationName(op)]
	if !ok {
		return Rewrite(op.Clone()), nil
	}
	return fn(ctx, addr, op.Clone())
}
