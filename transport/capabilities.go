package transport

// Capabilities describes the features supported by an event-sink transport.
type Capabilities struct {
	// SupportsOrdering indicates events arrive in publish order.
	SupportsOrdering bool

	// SupportsReplay indicates a late subscriber still receives events
	// published before it subscribed.
	SupportsReplay bool

	// SupportsAck indicates the transport waits for explicit acknowledgment.
	SupportsAck bool

	// Durable indicates events survive the process.
	Durable bool

	// Name is the human-readable name of the transport.
	Name string
}

// RequiresEarlySubscription returns true if subscribers must be attached
// before the container starts to observe every event.
func (c Capabilities) RequiresEarlySubscription() bool {
	return !c.SupportsReplay
}

// Predefined capability sets for the built-in transports.
var (
	// ChannelCapabilities for the in-memory persistent Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsReplay:   true,
		SupportsAck:      true,
	}

	// IOCapabilities for the file-based transport.
	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsOrdering: true,
		SupportsReplay:   true,
		Durable:          true,
	}
)

// GetCapabilities returns the capabilities for a transport by name.
// Returns a zero Capabilities struct if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.Capabilities(transportName)
}
