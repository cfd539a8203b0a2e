package accessory

import "errors"

// Domain-specific errors for accessory operations.
var (
	// ErrNotFound is returned when a registration record does not exist.
	ErrNotFound = errors.New("accessory: not found")

	// ErrNoService is returned when no service handles a component/capability pair.
	ErrNoService = errors.New("accessory: no service for capability")

	// ErrStatusUnavailable is returned when a status refresh did not succeed.
	ErrStatusUnavailable = errors.New("accessory: status unavailable")

	// ErrAttributeMissing is returned when the cached status lacks the attribute.
	ErrAttributeMissing = errors.New("accessory: attribute missing from status")

	// ErrNoTarget is returned when a service has no target attribute.
	ErrNoTarget = errors.New("accessory: service has no target attribute")
)
