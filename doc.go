// Package kerneltest boots isolated management kernels for subsystem tests.
// A kernel is a model controller running in its own service container,
// booted from a list of management operations (the boot log) and wrapped in
// a KernelServices handle the test drives.
//
// Create (or Session.Create) builds one kernel from CreateOptions. The
// kernel's variant follows LegacyModelVersion: without it the result is a
// *MainKernelServices, with it a *LegacyKernelServices pinned to that model
// version. Construction problems are returned as errors; a boot that fails
// while replaying the boot log is captured on the services and reported by
// IsSuccessfulBoot and BootError.
//
// # Legacy kernels
//
// Legacy kernels are built with an alternate controller factory looked up
// in the session's factory registry. A main kernel links legacy kernels by
// model version with AddLegacyKernelService and compares itself against
// them through ReadTransformedModel, CheckTransformedModel and
// TransformOperation. NewBuilder boots and links the whole set in one call.
//
// # Descriptions
//
// ReadFullModelDescription dumps the description of a resource. Controllers
// that predate the current description entry point are dumped through the
// strategy registered for their implementation ID; the 7.1.2 controller is
// registered by default and WithDescriptionStrategy adds others.
//
// # Configuration
//
// Config selects the container event sink (channel or io), the default
// boot log format (json, yaml, cbor, proto, protojson), persistence, the
// controller factory used for legacy kernels and the metrics namespace.
// LoadConfig layers defaults, an optional YAML file, KERNELTEST_ environment
// variables and command line flags.
//
// # Observability
//
// Every session owns Prometheus collectors for boots, operations and legacy
// links, logs boot lifecycle events through its ServiceLogger and opens
// OpenTelemetry spans around create, boot and execute. BootHooks adds
// custom callbacks around each boot.
//
// # Extensions
//
// Subsystems are contributed by extensions: NewExtension wraps an
// initialization function written in Go, and ParseSchema builds one from a
// YAML description of the subsystem's resources and transformers.
package kerneltest
