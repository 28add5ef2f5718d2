package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct{ closed int }

func (m *mockPublisher) Publish(topic string, messages ...*message.Message) error {
	return nil
}

func (m *mockPublisher) Close() error {
	m.closed++
	return nil
}

type mockSubscriber struct{ closed int }

func (m *mockSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (m *mockSubscriber) Close() error {
	m.closed++
	return nil
}

type mockPubSub struct {
	mockPublisher
	mockSubscriber
}

func (m *mockPubSub) Close() error {
	m.mockPublisher.closed++
	return nil
}

func mockBuilder(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return Transport{
		Publisher:  &mockPublisher{},
		Subscriber: &mockSubscriber{},
	}, nil
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.NotNil(t, reg)
	assert.Empty(t, reg.Names())
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("test-sink", mockBuilder, Capabilities{SupportsReplay: true}))
	assert.True(t, reg.Has("test-sink"))
	assert.Contains(t, reg.Names(), "test-sink")

	caps := reg.Capabilities("test-sink")
	assert.Equal(t, "test-sink", caps.Name)
	assert.True(t, caps.SupportsReplay)
	assert.False(t, caps.RequiresEarlySubscription())
}

func TestRegistry_RegisterRejects(t *testing.T) {
	reg := NewRegistry()
	assert.ErrorIs(t, reg.Register("", mockBuilder, Capabilities{}), ErrInvalidSink)
	assert.ErrorIs(t, reg.Register("no-builder", nil, Capabilities{}), ErrInvalidSink)

	require.NoError(t, reg.Register("once", mockBuilder, Capabilities{}))
	assert.ErrorIs(t, reg.Register("once", mockBuilder, Capabilities{Durable: true}), ErrSinkRegistered)
	assert.False(t, reg.Capabilities("once").Durable)
}

func TestRegistry_CapabilitiesUnknown(t *testing.T) {
	caps := NewRegistry().Capabilities("unknown")
	assert.Equal(t, "unknown", caps.Name)
	assert.True(t, caps.RequiresEarlySubscription())
}

func TestSinkName(t *testing.T) {
	assert.Equal(t, DefaultSink, SinkName(nil))
	assert.Equal(t, DefaultSink, SinkName(StaticConfig{}))
	assert.Equal(t, "io", SinkName(StaticConfig{Transport: "io"}))
}

func TestRegistry_Build(t *testing.T) {
	reg := NewRegistry()
	var built []string
	record := func(name string) Builder {
		return func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
			built = append(built, name)
			return mockBuilder(ctx, cfg, logger)
		}
	}
	require.NoError(t, reg.Register(DefaultSink, record(DefaultSink), Capabilities{}))
	require.NoError(t, reg.Register("test-sink", record("test-sink"), Capabilities{}))

	tr, err := reg.Build(context.Background(), StaticConfig{Transport: "test-sink"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, tr.Publisher)
	assert.NotNil(t, tr.Subscriber)

	_, err = reg.Build(context.Background(), nil, nil)
	require.NoError(t, err)
	_, err = reg.Build(context.Background(), StaticConfig{File: "events.log"}, watermill.NopLogger{})
	require.NoError(t, err)

	assert.Equal(t, []string{"test-sink", DefaultSink, DefaultSink}, built)
}

func TestRegistry_Build_Errors(t *testing.T) {
	reg := NewRegistry()
	expectedErr := errors.New("builder error")
	require.NoError(t, reg.Register("failing-sink", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, expectedErr
	}, Capabilities{}))

	_, err := reg.Build(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrUnknownSink)
	assert.ErrorContains(t, err, DefaultSink)

	_, err = reg.Build(context.Background(), StaticConfig{Transport: "unknown-sink"}, nil)
	assert.ErrorIs(t, err, ErrUnknownSink)
	assert.ErrorContains(t, err, "failing-sink")

	_, err = reg.Build(context.Background(), StaticConfig{Transport: "failing-sink"}, nil)
	assert.ErrorIs(t, err, ErrSinkBuildFailed)
	assert.ErrorIs(t, err, expectedErr)
}

func TestRegistry_NamesSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"b", "c", "a"} {
		require.NoError(t, reg.Register(name, mockBuilder, Capabilities{}))
	}
	assert.Equal(t, []string{"a", "b", "c"}, reg.Names())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = reg.Register("sink", mockBuilder, Capabilities{})
				reg.Has("sink")
				reg.Names()
				reg.Capabilities("sink")
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, []string{"sink"}, reg.Names())
}

func TestTransport_Close(t *testing.T) {
	pub := &mockPublisher{}
	sub := &mockSubscriber{}
	require.NoError(t, Transport{Publisher: pub, Subscriber: sub}.Close())
	assert.Equal(t, 1, pub.closed)
	assert.Equal(t, 1, sub.closed)

	shared := &mockPubSub{}
	require.NoError(t, Transport{Publisher: shared, Subscriber: shared}.Close())
	assert.Equal(t, 1, shared.mockPublisher.closed)

	assert.NoError(t, Transport{}.Close())
}

func TestPackageLevelRegister(t *testing.T) {
	original := DefaultRegistry
	defer func() { DefaultRegistry = original }()
	DefaultRegistry = NewRegistry()

	MustRegister("test-pkg-sink", mockBuilder, Capabilities{Durable: true})
	assert.True(t, DefaultRegistry.Has("test-pkg-sink"))
	assert.True(t, GetCapabilities("test-pkg-sink").Durable)
	assert.Panics(t, func() { MustRegister("test-pkg-sink", mockBuilder, Capabilities{}) })

	_, err := Build(context.Background(), StaticConfig{Transport: "test-pkg-sink"}, nil)
	assert.NoError(t, err)
}
