package runtime

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/kerneltest/internal/runtime/config"
	"github.com/drblury/kerneltest/internal/runtime/controller"
	"github.com/drblury/kerneltest/internal/runtime/description"
	"github.com/drblury/kerneltest/internal/runtime/ids"
	"github.com/drblury/kerneltest/internal/runtime/logging"

	// Register the built-in event-sink transports
	_ "github.com/drblury/kerneltest/transport/transports"
)

// Session owns what kernels of one test suite share: the monotonic
// sequence container names are built from, the controller factories
// legacy kernels may be built with, the description strategy table,
// metrics and hooks. Kernels of different sessions never share state.
type Session struct {
	id   string
	conf *config.Config
	log  logging.ServiceLogger

	seq        *ids.Sequence
	factories  *controller.FactoryRegistry
	strategies map[string]description.Strategy
	metrics    *KernelMetrics
	hooks      BootHooks
	tracer     trace.Tracer
}

// SessionOption customises a session.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	conf       *config.Config
	log        logging.ServiceLogger
	seq        *ids.Sequence
	factories  *controller.FactoryRegistry
	strategies map[string]description.Strategy
	registerer prometheus.Registerer
	hooks      BootHooks

	tracerProvider trace.TracerProvider
}

// WithConfig sets the session configuration. It is validated.
func WithConfig(conf *config.Config) SessionOption {
	return func(o *sessionOptions) { o.conf = conf }
}

// WithLogger sets the session logger.
func WithLogger(log logging.ServiceLogger) SessionOption {
	return func(o *sessionOptions) { o.log = log }
}

// WithSequence replaces the generator container names are numbered from.
func WithSequence(seq *ids.Sequence) SessionOption {
	return func(o *sessionOptions) { o.seq = seq }
}

// WithFactoryRegistry replaces the default factory registry, which holds
// the 7.1.2 legacy controller factory.
func WithFactoryRegistry(factories *controller.FactoryRegistry) SessionOption {
	return func(o *sessionOptions) { o.factories = factories }
}

// WithDescriptionStrategy maps a controller implementation ID to the dump
// strategy retried when the default entry point is missing.
func WithDescriptionStrategy(controllerID string, strategy description.Strategy) SessionOption {
	return func(o *sessionOptions) { o.strategies[controllerID] = strategy }
}

// WithRegisterer sets where session metrics are registered. Defaults to a
// private registry.
func WithRegisterer(registerer prometheus.Registerer) SessionOption {
	return func(o *sessionOptions) { o.registerer = registerer }
}

// WithBootHooks adds hooks run around every boot of the session.
func WithBootHooks(hooks BootHooks) SessionOption {
	return func(o *sessionOptions) { o.hooks = o.hooks.Merge(hooks) }
}

// NewSession builds a session. Each session gets a ULID that suffixes the
// names of its containers.
func NewSession(opts ...SessionOption) (*Session, error) {
	o := sessionOptions{
		strategies: map[string]description.Strategy{
			controller.Legacy712ID: description.ReadLegacyModelDescription,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	conf := o.conf
	if conf == nil {
		conf = config.Default()
	}
	if err := config.ValidateConfig(conf); err != nil {
		return nil, err
	}
	if o.seq == nil {
		o.seq = ids.NewSequence(0)
	}
	if o.factories == nil {
		o.factories = controller.NewFactoryRegistry()
		if err := o.factories.Register(controller.Legacy712ID, controller.NewLegacy712Factory()); err != nil {
			return nil, err
		}
	}
	if o.registerer == nil {
		o.registerer = prometheus.NewRegistry()
	}

	id := ids.CreateULID()
	log := logging.OrNop(o.log).With(logging.LogFields{"session": id})

	metrics := NewKernelMetrics(o.registerer, conf.MetricsNamespace)
	if err := metrics.Register(); err != nil {
		return nil, fmt.Errorf("kerneltest: register session metrics: %w", err)
	}

	log.Debug("Kernel test session created", logging.LogFields{
		"config":    conf,
		"factories": o.factories.Names(),
	})

	return &Session{
		id:         id,
		conf:       conf,
		log:        log,
		seq:        o.seq,
		factories:  o.factories,
		strategies: o.strategies,
		metrics:    metrics,
		hooks:      LoggingHooks(log).Merge(metrics.Hooks()).Merge(o.hooks),
		tracer:     newTracer(o.tracerProvider),
	}, nil
}

// ID is the session ULID.
func (s *Session) ID() string { return s.id }

// Config returns the session configuration.
func (s *Session) Config() *config.Config { return s.conf }

// Logger returns the session logger.
func (s *Session) Logger() logging.ServiceLogger { return s.log }

// Factories is the registry legacy kernels select their controller from.
func (s *Session) Factories() *controller.FactoryRegistry { return s.factories }

// Metrics returns the session metrics.
func (s *Session) Metrics() *KernelMetrics { return s.metrics }

// nextContainerName returns a container name no other kernel of the
// process uses: the sequence is strictly increasing and the session ID is
// unique.
func (s *Session) nextContainerName() string {
	return fmt.Sprintf("test%d.%s", s.seq.Next(), s.id)
}

var (
	defaultSessionOnce sync.Once
	defaultSession     *Session
	defaultSessionErr  error
)

// DefaultSession returns the lazily created process session Create uses.
func DefaultSession() (*Session, error) {
	defaultSessionOnce.Do(func() {
		defaultSession, defaultSessionErr = NewSession()
	})
	return defaultSession, defaultSessionErr
}
