package runtime

import (
	"errors"
	"fmt"

	"github.com/drblury/kerneltest/internal/runtime/model"
)

// Builder boots a main kernel and the legacy kernels it is compared
// against, and links them.
type Builder struct {
	session *Session
	main    CreateOptions
	legacy  []legacyKernel
}

type legacyKernel struct {
	version model.Version
	opts    CreateOptions
}

// NewBuilder starts a builder for the main kernel described by opts.
func (s *Session) NewBuilder(opts CreateOptions) *Builder {
	opts.LegacyModelVersion = nil
	return &Builder{session: s, main: opts}
}

// AddLegacy adds a legacy kernel pinned to version. An empty main
// subsystem name is taken from the main kernel.
func (b *Builder) AddLegacy(version model.Version, opts CreateOptions) *Builder {
	if opts.MainSubsystemName == "" {
		opts.MainSubsystemName = b.main.MainSubsystemName
	}
	if opts.TestName == "" {
		opts.TestName = b.main.TestName
	}
	v := version
	opts.LegacyModelVersion = &v
	b.legacy = append(b.legacy, legacyKernel{version: version, opts: opts})
	return b
}

// Build creates every kernel and links the legacy ones to the main
// kernel. Boot failures are reported by the kernels; when a kernel cannot
// be created the ones already created are shut down.
func (b *Builder) Build() (*MainKernelServices, error) {
	created, err := b.session.Create(b.main)
	if err != nil {
		return nil, err
	}
	main := created.(*MainKernelServices)

	for _, lk := range b.legacy {
		services, err := b.session.Create(lk.opts)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("kerneltest: create legacy kernel %s: %w", lk.version, err), main.ShutdownAll())
		}
		legacy := services.(*LegacyKernelServices)
		if err := main.AddLegacyKernelService(lk.version, legacy); err != nil {
			return nil, errors.Join(err, legacy.Shutdown(), main.ShutdownAll())
		}
	}
	return main, nil
}
