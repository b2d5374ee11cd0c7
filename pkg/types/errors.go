package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidUserID    = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidEventKind = errors.New("event kind must be STOP, WARNING or INFO")
	ErrEmptyMessage     = errors.New("notification message cannot be empty")
	ErrMessageTooLarge  = errors.New("notification message exceeds 64KB limit")
	ErrInvalidFrameType = errors.New("invalid frame type")
	ErrMissingPayload   = errors.New("event frame requires a payload")
)
