package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired            = sterrors.New("kerneltest: configuration is required")
	ErrLoggerRequired            = sterrors.New("kerneltest: logger is required")
	ErrAdditionalInitRequired    = sterrors.New("kerneltest: additional initialization is required")
	ErrExtensionRegistryRequired = sterrors.New("kerneltest: extension registry is required")
	ErrParserRequired            = sterrors.New("kerneltest: boot operation parser is required")
	ErrPersisterRequired         = sterrors.New("kerneltest: configuration persister is required")
	ErrUnknownControllerFactory  = sterrors.New("kerneltest: unknown controller factory")
	ErrDuplicateControllerName   = sterrors.New("kerneltest: controller factory already registered")

	ErrResourceNotFound  = sterrors.New("kerneltest: resource not found")
	ErrOperationNotFound = sterrors.New("kerneltest: operation not found")
	ErrOperationInvalid  = sterrors.New("kerneltest: operation is invalid")
	ErrOperationFailed   = sterrors.New("kerneltest: operation failed")
	ErrUnexpectedSuccess = sterrors.New("kerneltest: operation was expected to fail")
	ErrDuplicateResource = sterrors.New("kerneltest: resource already exists")
	ErrUnknownAttribute  = sterrors.New("kerneltest: unknown attribute")
	ErrModuleNotFound    = sterrors.New("kerneltest: extension module not found")

	ErrLegacyServicesRequired     = sterrors.New("kerneltest: legacy kernel services are required")
	ErrLegacyVersionNotLinked     = sterrors.New("kerneltest: no legacy kernel linked for model version")
	ErrLegacyVersionAlreadyLinked = sterrors.New("kerneltest: legacy kernel already linked for model version")
	ErrMainSubsystemRequired      = sterrors.New("kerneltest: main subsystem name is required")

	ErrRoundTripMismatch = sterrors.New("kerneltest: persisted boot operations do not round trip")
	ErrUnknownFormat     = sterrors.New("kerneltest: unknown persistence format")
)

// ConfigValidationError wraps an invalid runtime configuration.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("kerneltest: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// OperationFailure carries the failure-description of an operation that
// did not succeed, keeping the address and operation name for messages.
type OperationFailure struct {
	Operation   string
	Address     string
	Description string
}

func (e *OperationFailure) Error() string {
	return fmt.Sprintf("kerneltest: operation %s at %s failed: %s", e.Operation, e.Address, e.Description)
}

func (e *OperationFailure) Unwrap() error {
	return ErrOperationFailed
}
