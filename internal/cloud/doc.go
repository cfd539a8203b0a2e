// Package cloud is a thin client for the cloud device REST API.
//
// It covers the five calls the bridge needs:
//
//	GET  /devices               → ListDevices
//	GET  /locations             → ListLocations
//	GET  /devices/{id}/status   → GetDeviceStatus
//	GET  /devices/{id}/health   → GetDeviceHealth
//	POST /devices/{id}/commands → ExecuteCommands (body: JSON array of commands)
//
// HTTP failures are mapped to sentinel errors (ErrUnauthorized, ErrNotFound,
// ErrRateLimited, ErrRequestFailed). The client does not retry; retry and
// offline policy belong to the caller.
package cloud
