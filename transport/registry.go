package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

// DefaultSink is used when no events transport is configured.
const DefaultSink = "channel"

var (
	ErrUnknownSink     = errors.New("kerneltest: unknown event sink")
	ErrInvalidSink     = errors.New("kerneltest: event sink needs a name and a builder")
	ErrSinkRegistered  = errors.New("kerneltest: event sink already registered")
	ErrSinkBuildFailed = errors.New("kerneltest: build event sink")
)

type sink struct {
	build Builder
	caps  Capabilities
}

// Registry maps event sink names to their builders and capabilities.
// Sink packages add themselves from init.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]sink
}

// DefaultRegistry holds the sinks registered by the transport packages.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{sinks: make(map[string]sink)}
}

// Register adds a sink. A name can be registered once; capabilities
// default to a set named after the sink.
func (r *Registry) Register(name string, builder Builder, caps Capabilities) error {
	if name == "" || builder == nil {
		return ErrInvalidSink
	}
	if caps.Name == "" {
		caps.Name = name
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sinks[name]; exists {
		return fmt.Errorf("%w: %s", ErrSinkRegistered, name)
	}
	r.sinks[name] = sink{build: builder, caps: caps}
	return nil
}

// Capabilities of a registered sink. Unknown sinks report no features.
func (r *Registry) Capabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sinks[name]; ok {
		return s.caps
	}
	return Capabilities{Name: name}
}

// SinkName resolves the sink cfg selects, DefaultSink for a nil config or
// an empty name.
func SinkName(cfg Config) string {
	if cfg == nil || cfg.GetEventsTransport() == "" {
		return DefaultSink
	}
	return cfg.GetEventsTransport()
}

// Build creates the event sink cfg selects.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		cfg = StaticConfig{}
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	name := SinkName(cfg)

	r.mu.RLock()
	s, ok := r.sinks[name]
	r.mu.RUnlock()
	if !ok {
		return Transport{}, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownSink, name, r.Names())
	}

	tr, err := s.build(ctx, cfg, logger.With(watermill.LogFields{"event_sink": name}))
	if err != nil {
		return Transport{}, fmt.Errorf("%w %s: %w", ErrSinkBuildFailed, name, err)
	}
	return tr, nil
}

// Names returns the registered sinks in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sinks[name]
	return ok
}

// Register adds a sink to the default registry.
func Register(name string, builder Builder, caps Capabilities) error {
	return DefaultRegistry.Register(name, builder, caps)
}

// MustRegister is Register for init functions.
func MustRegister(name string, builder Builder, caps Capabilities) {
	if err := Register(name, builder, caps); err != nil {
		panic(err)
	}
}

// Build creates an event sink from the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
