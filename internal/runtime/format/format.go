// Package format holds the pluggable encodings a configuration persister
// uses to serialize the boot operation log and read it back.
package format

import (
	"fmt"
	"sort"
	"sync"

	"github.com/drblury/kerneltest/internal/runtime/dmr"
	rterrors "github.com/drblury/kerneltest/internal/runtime/errors"
)

// Parser serializes an ordered list of operations and parses it back.
// Implementations must preserve operation order.
type Parser interface {
	Name() string
	Marshal(ops []*dmr.Node) ([]byte, error)
	Unmarshal(data []byte) ([]*dmr.Node, error)
}

var (
	mu      sync.RWMutex
	parsers = map[string]Parser{}
)

func init() {
	Register(JSON())
	Register(YAML())
	Register(CBOR())
	Register(Proto())
	Register(ProtoJSON())
}

// Register makes p available to Lookup under its name, replacing any
// parser of the same name.
func Register(p Parser) {
	mu.Lock()
	defer mu.Unlock()
	parsers[p.Name()] = p
}

// Lookup returns the parser registered under name.
func Lookup(name string) (Parser, error) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := parsers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", rterrors.ErrUnknownFormat, name)
	}
	return p, nil
}

// Names lists the registered parsers.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(parsers))
	for name := range parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func operationsFromList(n *dmr.Node, format string) ([]*dmr.Node, error) {
	switch n.Kind() {
	case dmr.Undefined:
		return nil, nil
	case dmr.List:
		return n.Items(), nil
	default:
		return nil, fmt.Errorf("%s: expected a list of operations, got %s", format, n.Kind())
	}
}
