package container

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/drblury/kerneltest/transport"
	_ "github.com/drblury/kerneltest/transport/io"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeService struct {
	name     string
	rec      *recorder
	startErr error
	failed   chan string
}

func (s *fakeService) Start(ctx context.Context) error {
	s.rec.add("start " + s.name)
	return s.startErr
}

func (s *fakeService) Stop(ctx context.Context) error {
	s.rec.add("stop " + s.name)
	return nil
}

func (s *fakeService) DependencyFailed(dependency string, err error) {
	if s.failed != nil {
		s.failed <- dependency
	}
}

func newContainer(t *testing.T) *Container {
	t.Helper()
	c, err := New("test1.container")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c
}

func await(t *testing.T, c *Container) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.AwaitStability(ctx)
}

func TestDependencyInstalledLaterStartsFirst(t *testing.T) {
	c := newContainer(t)
	rec := &recorder{}

	require.NoError(t, c.Target().AddService("controller", &fakeService{name: "controller", rec: rec}).AddDependency("paths").Install())
	require.NoError(t, c.Target().AddService("paths", &fakeService{name: "paths", rec: rec}).Install())

	require.NoError(t, await(t, c))
	assert.Equal(t, []string{"start paths", "start controller"}, rec.list())

	state, err := c.ServiceState("controller")
	require.NoError(t, err)
	assert.Equal(t, StateUp, state)
	assert.Equal(t, []string{"controller", "paths"}, c.ServiceNames())
}

func TestShutdownStopsInReverseStartOrder(t *testing.T) {
	c := newContainer(t)
	rec := &recorder{}

	require.NoError(t, c.Target().AddService("a", &fakeService{name: "a", rec: rec}).Install())
	require.NoError(t, c.Target().AddService("b", &fakeService{name: "b", rec: rec}).AddDependency("a").Install())
	require.NoError(t, await(t, c))

	require.NoError(t, c.Shutdown(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, rec.list())
	assert.True(t, c.IsShutdown())

	err := c.Target().AddService("late", &fakeService{name: "late", rec: rec}).Install()
	assert.ErrorIs(t, err, ErrContainerShutdown)
}

func TestDuplicateServiceRejected(t *testing.T) {
	c := newContainer(t)
	rec := &recorder{}

	require.NoError(t, c.Target().AddService("a", &fakeService{name: "a", rec: rec}).Install())
	err := c.Target().AddService("a", &fakeService{name: "a", rec: rec}).Install()
	assert.ErrorIs(t, err, ErrDuplicateService)

	assert.ErrorIs(t, c.Target().AddService("", &fakeService{rec: rec}).Install(), ErrServiceNameMissing)
}

func TestDependencyCycleRejected(t *testing.T) {
	c := newContainer(t)
	rec := &recorder{}

	require.NoError(t, c.Target().AddService("a", &fakeService{name: "a", rec: rec}).AddDependency("b").Install())
	err := c.Target().AddService("b", &fakeService{name: "b", rec: rec}).AddDependency("a").Install()
	assert.ErrorIs(t, err, ErrDependencyCycle)

	err = c.Target().AddService("self", &fakeService{name: "self", rec: rec}).AddDependency("self").Install()
	assert.ErrorIs(t, err, ErrDependencyCycle)
}

func TestDependencyFailurePropagates(t *testing.T) {
	c := newContainer(t)
	rec := &recorder{}
	boom := errors.New("boom")
	failed := make(chan string, 1)

	require.NoError(t, c.Target().AddService("dependent", &fakeService{name: "dependent", rec: rec, failed: failed}).AddDependency("broken").Install())
	require.NoError(t, c.Target().AddService("broken", &fakeService{name: "broken", rec: rec, startErr: boom}).Install())

	err := await(t, c)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrDependencyFailed)
	assert.Equal(t, "broken", <-failed)
	assert.Equal(t, []string{"start broken"}, rec.list())

	state, stateErr := c.ServiceState("dependent")
	assert.Equal(t, StateFailed, state)
	assert.ErrorIs(t, stateErr, ErrDependencyFailed)

	_, err = c.ServiceState("missing")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestShutdownReleasesWaitingServices(t *testing.T) {
	c := newContainer(t)
	rec := &recorder{}
	failed := make(chan string, 1)

	require.NoError(t, c.Target().AddService("orphan", &fakeService{name: "orphan", rec: rec, failed: failed}).AddDependency("never").Install())
	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, "never", <-failed)
	assert.Empty(t, rec.list())
}

func TestSubscribeReceivesStateChanges(t *testing.T) {
	c := newContainer(t)
	rec := &recorder{}

	require.NoError(t, c.Target().AddService("a", &fakeService{name: "a", rec: rec}).Install())
	require.NoError(t, await(t, c))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events, err := c.Subscribe(ctx)
	require.NoError(t, err)

	var got []Event
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-ctx.Done():
			t.Fatal("timeout waiting for events")
		}
	}
	sort.Slice(got, func(i, j int) bool { return got[i].Seq < got[j].Seq })
	assert.Equal(t, StateStarting, got[0].State)
	assert.Equal(t, StateUp, got[1].State)
	assert.Equal(t, "test1.container", got[1].Container)
	cancel()
}

func TestFileEventSink(t *testing.T) {
	file := filepath.Join(t.TempDir(), "events.log")
	c, err := New("test2.container", WithEventsConfig(transport.StaticConfig{Transport: "io", File: file}))
	require.NoError(t, err)
	rec := &recorder{}

	require.NoError(t, c.Target().AddService("a", &fakeService{name: "a", rec: rec}).Install())
	require.NoError(t, await(t, c))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	events, err := c.Subscribe(ctx)
	require.NoError(t, err)
	first := <-events
	assert.Equal(t, "a", first.Service)
	cancel()
	for range events {
	}
	require.NoError(t, c.Shutdown(context.Background()))
}

func TestUnknownEventsTransport(t *testing.T) {
	_, err := New("test3.container", WithEventsConfig(transport.StaticConfig{Transport: "carrier-pigeon"}))
	assert.ErrorIs(t, err, transport.ErrUnknownSink)
}
