// Package errs contains the error taxonomy shared by the transport, cache and command layers.
package errs

import "errors"

// Taxonomy sentinels. Every classified failure unwraps to exactly one of them.
var (
	// ErrNetwork indicates the request produced no response at all.
	ErrNetwork = errors.New("network failure")

	// ErrUnauthorized indicates the session is missing or expired (HTTP 401).
	ErrUnauthorized = errors.New("authentication required")

	// ErrValidation indicates the server rejected the request body (HTTP 400).
	ErrValidation = errors.New("validation failed")

	// ErrForbidden indicates the caller lacks permission (HTTP 403).
	ErrForbidden = errors.New("permission denied")

	// ErrNotFound indicates the requested entity does not exist (HTTP 404).
	ErrNotFound = errors.New("not found")

	// ErrExpired indicates a download window that has closed (HTTP 410).
	ErrExpired = errors.New("resource expired")

	// ErrServer indicates a 5xx response.
	ErrServer = errors.New("server failure")

	// ErrMissingCSRF indicates an unsafe request without an anti-forgery token in strict mode.
	ErrMissingCSRF = errors.New("anti-forgery token missing")
)
