package runtime

import (
	"errors"

	"github.com/drblury/kerneltest/internal/runtime/description"
	"github.com/drblury/kerneltest/internal/runtime/dmr"
	"github.com/drblury/kerneltest/internal/runtime/logging"
	"github.com/drblury/kerneltest/internal/runtime/registry"
)

// describe runs the default description dump. When the registration
// lacks its entry point and the session maps controllerID to another
// strategy, that strategy is retried; every other failure is returned
// unchanged.
func (s *Session) describe(controllerID string, reg registry.Registration) (*dmr.Node, error) {
	desc, err := description.ReadFullModelDescription(reg)
	if err == nil || !errors.Is(err, description.ErrEntryPointMissing) {
		return desc, err
	}
	strategy, ok := s.strategies[controllerID]
	if !ok {
		return nil, err
	}
	s.log.Debug("Description entry point missing, retrying with controller strategy", logging.LogFields{
		"controller": controllerID,
		"address":    reg.Address().String(),
	})
	return strategy(reg)
}
