package secrets

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidReference is returned when a secret reference is malformed
	ErrInvalidReference = errors.New("invalid secret reference")

	// ErrMissingEnvironmentVariable is returned when an environment reference names an unset variable
	ErrMissingEnvironmentVariable = errors.New("missing environment variable")

	// ErrUnsupportedBackend is returned for secret backends that cannot be resolved
	ErrUnsupportedBackend = errors.New("unsupported secret backend")
)

// MissingEnvironmentVariableError names the variable that was not set.
type MissingEnvironmentVariableError struct {
	Name string
}

func (e *MissingEnvironmentVariableError) Error() string {
	return fmt.Sprintf("environment variable %q is not set", e.Name)
}

func (e *MissingEnvironmentVariableError) Is(target error) bool {
	return target == ErrMissingEnvironmentVariable
}

// UnsupportedBackendError names the backend that has no resolver.
type UnsupportedBackendError struct {
	Backend string
}

func (e *UnsupportedBackendError) Error() string {
	return fmt.Sprintf("secret backend not supported: %s", e.Backend)
}

func (e *UnsupportedBackendError) Is(target error) bool {
	return target == ErrUnsupportedBackend
}
