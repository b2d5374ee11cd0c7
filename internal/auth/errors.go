package auth

import "errors"

// Manager-specific errors; session-level errors (invalid credentials,
// refresh failure, expiry) live in pkg/interfaces for cross-component use
var (
	ErrMalformedResponse = errors.New("malformed auth endpoint response")
	ErrNoExpiry          = errors.New("response carries no token expiry and token has no exp claim")
)
