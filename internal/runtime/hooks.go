package runtime

import (
	"context"
	"time"

	"github.com/drblury/kerneltest/internal/runtime/logging"
)

// BootContext describes one kernel boot to hooks.
type BootContext struct {
	// TestName is the name the kernel was created for.
	TestName string
	// Container is the unique container name of the kernel.
	Container string
	// Subsystem is the main subsystem under test.
	Subsystem string
	// ControllerID names the controller implementation.
	ControllerID string
	// Legacy is set for kernels pinned to an older model version.
	Legacy bool
	// ModelVersion is the pinned version of a legacy kernel.
	ModelVersion string
	// Operations is the length of the boot log.
	Operations int
	// Context carries the boot span.
	Context context.Context
	// StartedAt is when the kernel started waiting for boot.
	StartedAt time.Time
	// Duration is how long boot took (only set in OnBootDone and OnBootError).
	Duration time.Duration
}

// BootHooks defines callbacks around the boot of a kernel.
// All hooks are optional - nil hooks are simply not called.
type BootHooks struct {
	// OnBootStart is called once the controller is installed, before the
	// kernel blocks on boot.
	OnBootStart func(ctx BootContext)

	// OnBootDone is called when the boot log replayed successfully.
	OnBootDone func(ctx BootContext)

	// OnBootError is called with the captured boot failure.
	OnBootError func(ctx BootContext, err error)
}

// Merge combines two BootHooks, creating a new BootHooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'.
func (h BootHooks) Merge(other BootHooks) BootHooks {
	return BootHooks{
		OnBootStart: chainHooks(h.OnBootStart, other.OnBootStart),
		OnBootDone:  chainHooks(h.OnBootDone, other.OnBootDone),
		OnBootError: chainErrorHooks(h.OnBootError, other.OnBootError),
	}
}

func chainHooks(a, b func(BootContext)) func(BootContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx BootContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(BootContext, error)) func(BootContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx BootContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// runBootHooks invokes the start hook, waits through wait and reports the
// outcome to the matching completion hook.
func runBootHooks(hooks BootHooks, ctx BootContext, wait func() (bool, error)) (bool, error) {
	ctx.StartedAt = time.Now()
	if hooks.OnBootStart != nil {
		hooks.OnBootStart(ctx)
	}

	successful, err := wait()
	ctx.Duration = time.Since(ctx.StartedAt)

	if successful {
		if hooks.OnBootDone != nil {
			hooks.OnBootDone(ctx)
		}
	} else if hooks.OnBootError != nil {
		hooks.OnBootError(ctx, err)
	}
	return successful, err
}

func (ctx BootContext) fields() logging.LogFields {
	fields := logging.LogFields{
		"test":          ctx.TestName,
		"container":     ctx.Container,
		"subsystem":     ctx.Subsystem,
		"controller":    ctx.ControllerID,
		"boot_ops":      ctx.Operations,
		"legacy":        ctx.Legacy,
		"model_version": ctx.ModelVersion,
	}
	if ctx.Duration > 0 {
		fields["duration_ms"] = ctx.Duration.Milliseconds()
	}
	return fields
}

// LoggingHooks returns pre-built hooks that log boot lifecycle events.
func LoggingHooks(logger logging.ServiceLogger) BootHooks {
	logger = logging.OrNop(logger)
	return BootHooks{
		OnBootStart: func(ctx BootContext) {
			logger.Debug("Kernel boot started", ctx.fields())
		},
		OnBootDone: func(ctx BootContext) {
			logger.Info("Kernel booted", ctx.fields())
		},
		OnBootError: func(ctx BootContext, err error) {
			logger.Error("Kernel boot failed", err, ctx.fields())
		},
	}
}

// MetricsHooks returns pre-built hooks that report boots to callbacks.
func MetricsHooks(onStart func(controllerID string), onDone, onError func(controllerID string, duration time.Duration)) BootHooks {
	return BootHooks{
		OnBootStart: func(ctx BootContext) {
			if onStart != nil {
				onStart(ctx.ControllerID)
			}
		},
		OnBootDone: func(ctx BootContext) {
			if onDone != nil {
				onDone(ctx.ControllerID, ctx.Duration)
			}
		},
		OnBootError: func(ctx BootContext, err error) {
			if onError != nil {
				onError(ctx.ControllerID, ctx.Duration)
			}
		},
	}
}
