package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrSessionExpired     = errors.New("session expired, re-authentication required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRefreshFailed      = errors.New("token refresh rejected by server")
	ErrNotFound           = errors.New("notification not found")
)
