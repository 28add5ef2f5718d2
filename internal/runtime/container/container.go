// Package container is the minimal service graph runtime a kernel runs in.
//
// Services are installed by name with the names of the services they
// depend on. Each service starts on its own goroutine as soon as all of its
// dependencies are up, so independent services start concurrently. A
// dependency that fails to start fails its dependents. Every state change
// is published as an Event on the container's event-sink transport.
package container

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/drblury/kerneltest/internal/runtime/ids"
	"github.com/drblury/kerneltest/internal/runtime/logging"
	"github.com/drblury/kerneltest/transport"

	// Default event sink
	_ "github.com/drblury/kerneltest/transport/channel"
)

var (
	ErrDuplicateService   = errors.New("kerneltest: service already installed")
	ErrDependencyCycle    = errors.New("kerneltest: service dependency cycle")
	ErrDependencyFailed   = errors.New("kerneltest: service dependency failed")
	ErrContainerShutdown  = errors.New("kerneltest: container is shut down")
	ErrServiceNotFound    = errors.New("kerneltest: service not installed")
	ErrServiceNameMissing = errors.New("kerneltest: service name is required")
)

// Service is a unit of work managed by the container.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// FailureListener is implemented by services that want to learn that one
// of their dependencies failed. Such a service is never started.
type FailureListener interface {
	DependencyFailed(dependency string, err error)
}

// State is the lifecycle state of an installed service.
type State string

const (
	StateDown     State = "DOWN"
	StateStarting State = "STARTING"
	StateUp       State = "UP"
	StateFailed   State = "FAILED"
	StateRemoved  State = "REMOVED"
)

type entry struct {
	name      string
	svc       Service
	deps      []string
	installed bool
	state     State
	err       error
	done      chan struct{}
}

// Container is a named, isolated service graph.
type Container struct {
	name   string
	log    logging.ServiceLogger
	events transport.Transport
	seq    *ids.Sequence

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu       sync.Mutex
	entries  map[string]*entry
	order    []string
	started  []string
	shutdown bool
	stopOnce sync.Once
	stopErr  error
}

// Option customises a container.
type Option func(*options)

type options struct {
	log       logging.ServiceLogger
	transport *transport.Transport
	eventsCfg transport.Config
}

// WithLogger sets the container logger.
func WithLogger(log logging.ServiceLogger) Option {
	return func(o *options) { o.log = log }
}

// WithTransport publishes events on tr. The container closes it on
// shutdown.
func WithTransport(tr transport.Transport) Option {
	return func(o *options) { o.transport = &tr }
}

// WithEventsConfig builds the event-sink transport from the registry.
func WithEventsConfig(cfg transport.Config) Option {
	return func(o *options) { o.eventsCfg = cfg }
}

// New creates a container. Without options events go to a private
// in-memory channel transport.
func New(name string, opts ...Option) (*Container, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	log := logging.OrNop(o.log).With(logging.LogFields{"container": name})

	var events transport.Transport
	var err error
	if o.transport != nil {
		events = *o.transport
	} else if events, err = transport.Build(context.Background(), o.eventsCfg, logging.NewWatermillAdapter(log)); err != nil {
		return nil, fmt.Errorf("kerneltest: event sink for %s: %w", name, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Container{
		name:    name,
		log:     log,
		events:  events,
		seq:     ids.NewSequence(0),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
	}, nil
}

// Name returns the container name.
func (c *Container) Name() string { return c.name }

// Target returns the installation target of the container.
func (c *Container) Target() *Target { return &Target{c: c} }

// entryLocked returns the entry for name, creating a placeholder so
// dependents can wait for services installed later. c.mu must be held.
func (c *Container) entryLocked(name string) *entry {
	e, ok := c.entries[name]
	if !ok {
		e = &entry{name: name, state: StateDown, done: make(chan struct{})}
		c.entries[name] = e
	}
	return e
}

func (c *Container) install(name string, svc Service, deps []string) error {
	if name == "" {
		return ErrServiceNameMissing
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return ErrContainerShutdown
	}
	e := c.entryLocked(name)
	if e.installed {
		return fmt.Errorf("%w: %s", ErrDuplicateService, name)
	}
	if path, ok := c.reachesLocked(deps, name, nil); ok {
		return fmt.Errorf("%w: %s -> %v", ErrDependencyCycle, name, path)
	}
	e.svc = svc
	e.deps = append([]string(nil), deps...)
	e.installed = true
	c.order = append(c.order, name)
	for _, dep := range deps {
		c.entryLocked(dep)
	}
	c.log.Debug("Service installed", logging.LogFields{"service": name, "dependencies": deps})
	c.group.Go(func() error { return c.run(e) })
	return nil
}

// reachesLocked reports whether target is reachable from deps through the
// dependency edges of installed services.
func (c *Container) reachesLocked(deps []string, target string, path []string) ([]string, bool) {
	for _, dep := range deps {
		next := append(append([]string(nil), path...), dep)
		if dep == target {
			return next, true
		}
		e, ok := c.entries[dep]
		if !ok || !e.installed {
			continue
		}
		if found, ok := c.reachesLocked(e.deps, target, next); ok {
			return found, true
		}
	}
	return nil, false
}

func (c *Container) run(e *entry) error {
	for _, dep := range e.deps {
		c.mu.Lock()
		d := c.entryLocked(dep)
		c.mu.Unlock()

		select {
		case <-d.done:
			if d.state != StateUp {
				err := fmt.Errorf("%w: %s", ErrDependencyFailed, dep)
				if listener, ok := e.svc.(FailureListener); ok {
					listener.DependencyFailed(dep, d.err)
				}
				c.finish(e, StateFailed, err)
				return nil
			}
		case <-c.ctx.Done():
			if listener, ok := e.svc.(FailureListener); ok {
				listener.DependencyFailed(dep, ErrContainerShutdown)
			}
			c.finish(e, StateFailed, ErrContainerShutdown)
			return nil
		}
	}

	c.setState(e, StateStarting, nil)
	if err := e.svc.Start(c.ctx); err != nil {
		c.log.Error("Service failed to start", err, logging.LogFields{"service": e.name})
		c.finish(e, StateFailed, err)
		return err
	}
	c.mu.Lock()
	c.started = append(c.started, e.name)
	c.mu.Unlock()
	c.finish(e, StateUp, nil)
	return nil
}

func (c *Container) finish(e *entry, state State, err error) {
	c.setState(e, state, err)
	close(e.done)
}

func (c *Container) setState(e *entry, state State, err error) {
	c.mu.Lock()
	e.state = state
	e.err = err
	c.mu.Unlock()
	c.publish(e.name, state, err)
}

// ServiceState returns the state and failure of an installed service.
func (c *Container) ServiceState(name string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok || !e.installed {
		return "", fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return e.state, e.err
}

// ServiceNames lists installed services in installation order.
func (c *Container) ServiceNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// AwaitStability blocks until every installed service is up or failed.
// It returns the joined failures, or ctx.Err when ctx ends first.
func (c *Container) AwaitStability(ctx context.Context) error {
	c.mu.Lock()
	pending := make([]*entry, 0, len(c.order))
	for _, name := range c.order {
		pending = append(pending, c.entries[name])
	}
	c.mu.Unlock()

	var errs []error
	for _, e := range pending {
		select {
		case <-e.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		if e.state == StateFailed {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, e.err))
		}
		c.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Shutdown stops started services in reverse start order and closes the
// event transport. Calling it again is a no-op.
func (c *Container) Shutdown(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.shutdown = true
		c.mu.Unlock()

		c.cancel()
		_ = c.group.Wait()

		c.mu.Lock()
		started := append([]string(nil), c.started...)
		c.mu.Unlock()

		var errs []error
		for idx := len(started) - 1; idx >= 0; idx-- {
			c.mu.Lock()
			e := c.entries[started[idx]]
			c.mu.Unlock()
			if err := e.svc.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop %s: %w", e.name, err))
			}
			c.setState(e, StateRemoved, nil)
		}
		c.log.Debug("Container shut down", logging.LogFields{"stopped": len(started)})

		if err := c.events.Close(); err != nil {
			errs = append(errs, err)
		}
		c.stopErr = errors.Join(errs...)
	})
	return c.stopErr
}

// IsShutdown reports whether Shutdown was called.
func (c *Container) IsShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdown
}
