// Package v1 provides the business logic for API version 1: dashboard
// authentication, server credential management, and the multi-server
// query fan-out.
//
// Error Handling:
// This package defines sentinel errors for failures the web layer maps to
// HTTP statuses. They are wrapped with context using fmt.Errorf("%w") when
// returned, and checked with errors.Is in the handlers.
//
// Per-selection fan-out failures are NOT errors at this boundary: they are
// captured into the entry's error field and the run itself succeeds. Only
// ErrInvalidRequest rejects a whole fan-out call.
package v1

import "errors"

// Sentinel errors for authentication operations.
var (
	// ErrInvalidCredentials indicates the provided credentials are incorrect.
	// HTTP Status: 401 Unauthorized
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound indicates the user does not exist in the system.
	// HTTP Status: 401 Unauthorized (don't reveal user existence)
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists indicates the username or email already exists in the system.
	// HTTP Status: 409 Conflict
	ErrUserExists = errors.New("user already exists")

	// ErrSessionNotFound indicates the session token does not exist.
	// HTTP Status: 401 Unauthorized
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the session token has expired.
	// HTTP Status: 401 Unauthorized
	ErrSessionExpired = errors.New("session expired")

	// ErrForbidden indicates the caller's role does not permit the operation.
	// HTTP Status: 403 Forbidden
	ErrForbidden = errors.New("operation not permitted")
)

// Sentinel errors for server credential and fan-out operations.
var (
	// ErrInvalidRequest indicates a malformed top-level request (empty query,
	// empty selection list, missing user). Fatal to the whole call; no
	// network activity happens.
	// HTTP Status: 400 Bad Request
	ErrInvalidRequest = errors.New("invalid request")

	// ErrServerNotFound indicates the user has no such server registered.
	// HTTP Status: 404 Not Found
	ErrServerNotFound = errors.New("server not found for this user")
)

// msgServerNotFound is the per-entry message for a failed credential lookup,
// kept verbatim for API compatibility with the dashboard frontend.
const msgServerNotFound = "Server not found for this user"
