package core

import "errors"

var (
	// ErrBackendNotFound is returned when a backend name is not registered.
	ErrBackendNotFound = errors.New("backend not found")
	// ErrDuplicateBackend is returned when a name is registered twice.
	ErrDuplicateBackend = errors.New("backend already registered")
	// ErrInvalidBackend is returned for an empty name or a nil backend.
	ErrInvalidBackend = errors.New("invalid backend")
	// ErrRegistrySealed is returned when registering after the first run started.
	ErrRegistrySealed = errors.New("registry is sealed")
	// ErrOperationPanicked wraps a panic recovered from a backend operation.
	ErrOperationPanicked = errors.New("operation panicked")
	// ErrMissingVariable is returned when a template placeholder has no value.
	ErrMissingVariable = errors.New("missing template variable")
	// ErrInvalidTemplate is returned for malformed template text.
	ErrInvalidTemplate = errors.New("invalid template")
	// ErrEmptyResponse is returned when a provider answers without any choice or content block.
	ErrEmptyResponse = errors.New("empty response")
)
