// Package pathmgr resolves named filesystem paths for the kernel. Paths
// can be relative to other named paths; resolution follows the chain.
package pathmgr

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/drblury/kerneltest/internal/runtime/logging"
)

// ServiceName is the container service name of the path manager.
const ServiceName = "kernel.path-manager"

var (
	ErrPathNotFound = errors.New("kerneltest: path not found")
	ErrPathExists   = errors.New("kerneltest: path already defined")
	ErrPathReadOnly = errors.New("kerneltest: path is read-only")
	ErrPathCycle    = errors.New("kerneltest: relative path cycle")
)

// Entry is one named path.
type Entry struct {
	Name       string
	Path       string
	RelativeTo string
	ReadOnly   bool
}

// Manager holds named paths. It is also the path-manager service the
// controller depends on.
type Manager struct {
	mu      sync.RWMutex
	paths   map[string]Entry
	log     logging.ServiceLogger
	started bool
}

// New returns an empty manager.
func New(log logging.ServiceLogger) *Manager {
	return &Manager{
		paths: make(map[string]Entry),
		log:   logging.OrNop(log),
	}
}

// AddPath defines a writable path.
func (m *Manager) AddPath(name, path, relativeTo string) error {
	return m.add(Entry{Name: name, Path: path, RelativeTo: relativeTo})
}

// AddReadOnlyPath defines a path that cannot be removed.
func (m *Manager) AddReadOnlyPath(name, path, relativeTo string) error {
	return m.add(Entry{Name: name, Path: path, RelativeTo: relativeTo, ReadOnly: true})
}

func (m *Manager) add(entry Entry) error {
	if entry.Name == "" || entry.Path == "" {
		return fmt.Errorf("kerneltest: path name and value are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.paths[entry.Name]; exists {
		return fmt.Errorf("%w: %s", ErrPathExists, entry.Name)
	}
	m.paths[entry.Name] = entry
	m.log.Debug("Path defined", logging.LogFields{"name": entry.Name, "path": entry.Path, "relative_to": entry.RelativeTo})
	return nil
}

// RemovePath drops a writable path.
func (m *Manager) RemovePath(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.paths[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPathNotFound, name)
	}
	if entry.ReadOnly {
		return fmt.Errorf("%w: %s", ErrPathReadOnly, name)
	}
	delete(m.paths, name)
	return nil
}

// Entry returns the definition of name.
func (m *Manager) Entry(name string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.paths[name]
	return entry, ok
}

// Resolve returns the absolute-or-joined path for name.
func (m *Manager) Resolve(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolveLocked(name, map[string]bool{})
}

func (m *Manager) resolveLocked(name string, seen map[string]bool) (string, error) {
	if seen[name] {
		return "", fmt.Errorf("%w: %s", ErrPathCycle, name)
	}
	seen[name] = true
	entry, ok := m.paths[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPathNotFound, name)
	}
	if entry.RelativeTo == "" || filepath.IsAbs(entry.Path) {
		return filepath.Clean(entry.Path), nil
	}
	base, err := m.resolveLocked(entry.RelativeTo, seen)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, entry.Path), nil
}

// Names lists defined paths in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.paths))
	for name := range m.paths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start verifies every defined path resolves.
func (m *Manager) Start(ctx context.Context) error {
	var errs []error
	for _, name := range m.Names() {
		if _, err := m.Resolve(name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return nil
}

// Started reports whether the service is up.
func (m *Manager) Started() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}
