// Package api implements the local HTTP API and WebSocket server of the
// cloud bridge.
//
// This package provides:
//   - REST endpoints to list managed devices, read their cloud status and
//     send commands
//   - An on-demand rediscovery endpoint
//   - The activity trail of registrations and commands
//   - A WebSocket hub streaming service values as they are published
//   - Bearer JWT authentication with ticket-based WebSocket auth
//
// # Security
//
// Tokens are HS256 JWTs signed with api.auth.jwt_secret, normally issued by
// Gray Logic Core. The "viewer" role may read; "operator" and "admin" may
// also send commands. Rediscovery and the activity trail are admin-only. WebSocket connections use
// single-use tickets so tokens never appear in URLs.
package api
