package devicesync

import "errors"

// Sentinel errors for device synchronisation.
var (
	// ErrCommandFailed indicates the remote API rejected or failed a command.
	ErrCommandFailed = errors.New("devicesync: command failed")

	// ErrDeviceOffline indicates the call was not attempted because the
	// device is marked offline and has not yet passed a recovery check.
	ErrDeviceOffline = errors.New("devicesync: device offline")
)
