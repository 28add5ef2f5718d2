/*
Package runtime boots isolated management kernels for subsystem tests.

# Architecture Overview

A kernel is a model controller running in its own service container. The
runtime package creates the container, installs the controller behind the
path manager it depends on, replays the boot operation log and hands the
test a KernelServices handle over the result.

# Package Structure

## Session (session.go)

The Session owns what kernels of one test suite share:
  - Monotonic sequence and ULID used to name containers
  - Controller factory registry for legacy kernels
  - Description strategy table keyed by controller implementation
  - Prometheus metrics and boot hooks

## Bootstrap (kernel.go)

Session.Create builds one kernel from CreateOptions. Wiring failures are
returned as errors; boot failures are captured on the returned services.

## Kernel Services (services.go, main_services.go)

KernelServices executes operations, reads models and dumps descriptions.
MainKernelServices additionally links LegacyKernelServices by model version
and drives transformed model reads and operation transformation against
them.

## Builder (builder.go)

Boots a main kernel with its legacy kernels and links them in one call.

## Hooks, Metrics & Tracing (hooks.go, metrics.go, tracing.go)

Boot hooks, per-session Prometheus collectors and OpenTelemetry spans
around create, boot and execute.

# Sub-packages

  - config/: Session configuration and koanf loader
  - container/: Service graph runtime kernels run in
  - controller/: Model controller service, factories and initializers
  - declarative/: YAML-described subsystem extensions
  - description/: Resource description dumps
  - dmr/: ModelNode values and their encodings
  - errors/: Sentinel errors and error types
  - extension/: Extensions and subsystem registration
  - format/: Boot log parsers (json, yaml, cbor, proto)
  - ids/: ULIDs and sequences
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - model/: Addresses, versions and operation builders
  - pathmgr/: Path manager service
  - persister/: Configuration persister
  - registry/: Resource type registrations
  - transform/: Transformer registry
  - validation/: Operation validator

# Usage Example

	session, err := runtime.NewSession()
	if err != nil {
		return err
	}
	services, err := session.Create(runtime.CreateOptions{
		MainSubsystemName: "test",
		MainExtension:     ext,
		BootOperations: []*dmr.Node{
			model.CreateAddOperation(model.Address(model.Element("extension", "test.ext")), dmr.New().SetString("module", "test.ext")),
			model.CreateAddOperation(model.Subsystem("test"), nil),
		},
	})
	if err != nil {
		return err
	}
	defer services.Shutdown()

	if !services.IsSuccessfulBoot() {
		return services.BootError()
	}
	desc, err := services.ReadFullModelDescription(model.Subsystem("test").ToNode())
*/
package runtime
