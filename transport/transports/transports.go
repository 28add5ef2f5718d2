// Package transports imports all built-in event-sink transports for
// auto-registration with the default registry.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/drblury/kerneltest/transport/channel"
	_ "github.com/drblury/kerneltest/transport/io"
)
