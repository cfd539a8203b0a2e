package platform

import "errors"

// Domain-specific errors for platform operations.
var (
	// ErrDiscoveryFailed is returned when the device inventory could not be
	// fetched within the configured attempts.
	ErrDiscoveryFailed = errors.New("platform: device discovery failed")

	// ErrUnknownDevice is returned for commands addressed to an unmanaged device.
	ErrUnknownDevice = errors.New("platform: unknown device")

	// ErrInvalidMessage is returned for undecodable event or command payloads.
	ErrInvalidMessage = errors.New("platform: invalid message")
)
