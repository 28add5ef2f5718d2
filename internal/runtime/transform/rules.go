package transform

import (
	"github.com/drblury/kerneltest/internal/runtime/dmr"
	"github.com/drblury/kerneltest/internal/runtime/model"
)

// Chain runs resource transformers in order.
func Chain(steps ...ResourceTransformer) ResourceTransformer {
	return func(ctx Context, addr model.PathAddress, resource *dmr.Node) (*dmr.Node, error) {
		current := resource
		for _, step := range steps {
			next, err := step(ctx, addr, current)
			if err != nil {
				return nil, err
			}
			current = next
		}
		return current, nil
	}
}

// DiscardAttributes drops attributes the older version does not know,
// at every level of the resource tree.
func DiscardAttributes(names ...string) ResourceTransformer {
	return func(ctx Context, addr model.PathAddress, resource *dmr.Node) (*dmr.Node, error) {
		walkObjects(resource, func(n *dmr.Node) {
			for _, name := range names {
				n.Remove(name)
			}
		})
		return resource, nil
	}
}

// RenameAttribute moves from to to at every level of the resource tree.
func RenameAttribute(from, to string) ResourceTransformer {
	return func(ctx Context, addr model.PathAddress, resource *dmr.Node) (*dmr.Node, error) {
		walkObjects(resource, func(n *dmr.Node) {
			if n.Has(from) {
				n.Set(to, n.Remove(from))
			}
		})
		return resource, nil
	}
}

// DiscardOperation is an OperationTransformer that drops the operation.
func DiscardOperation(ctx Context, addr model.PathAddress, op *dmr.Node) (OperationResult, error) {
	return Discard(), nil
}

// RejectOperation returns an OperationTransformer rejecting with reason.
func RejectOperation(reason string) OperationTransformer {
	return func(ctx Context, addr model.PathAddress, op *dmr.Node) (OperationResult, error) {
		return Reject(reason), nil
	}
}

// RenameParameter rewrites an attribute name: the name argument of the
// attribute operations, or a parameter key of any other operation.
func RenameParameter(from, to string) OperationTransformer {
	return func(ctx Context, addr model.PathAddress, op *dmr.Node) (OperationResult, error) {
		switch model.OperationName(op) {
		case model.WriteAttribute, model.UndefineAttribute, model.ReadAttribute:
			if op.Get(model.Name).AsString() == from {
				op.SetString(model.Name, to)
			}
		default:
			if op.Has(from) {
				op.Set(to, op.Remove(from))
			}
		}
		return Rewrite(op), nil
	}
}

func walkObjects(n *dmr.Node, fn func(*dmr.Node)) {
	switch n.Kind() {
	case dmr.Object:
		fn(n)
		for _, key := range n.Keys() {
			walkObjects(n.Get(key), fn)
		}
	case dmr.List:
		for _, item := range n.Items() {
			walkObjects(item, fn)
		}
	}
}
