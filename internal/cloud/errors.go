package cloud

import "errors"

// Sentinel errors for cloud API operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, cloud.ErrRateLimited) {
//	    // Back off before the next request
//	}
var (
	// ErrUnauthorized indicates the access token was rejected (401/403).
	ErrUnauthorized = errors.New("cloud: unauthorized")

	// ErrNotFound indicates the requested device or resource does not exist.
	ErrNotFound = errors.New("cloud: not found")

	// ErrRateLimited indicates the API rejected the request with 429.
	ErrRateLimited = errors.New("cloud: rate limited")

	// ErrRequestFailed indicates a transport error or unexpected status.
	ErrRequestFailed = errors.New("cloud: request failed")

	// ErrInvalidConfig indicates the client configuration is unusable.
	ErrInvalidConfig = errors.New("cloud: invalid configuration")
)
