package types

import (
	"regexp"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate ensures a decoded frame is structurally usable before it enters
// the fan-out path
// ARCHITECTURAL DISCOVERY: Validation at type level ensures consistency
// across all components without duplicating validation logic
func (f *Frame) Validate() error {
	switch f.Type {
	case FrameTypeConnect, FrameTypeConnected, FrameTypeSubscribe,
		FrameTypeHeartbeat, FrameTypeError:
		return nil
	case FrameTypeEvent:
		if f.Payload == nil {
			return ErrMissingPayload
		}
		return f.Payload.Validate()
	default:
		return ErrInvalidFrameType
	}
}

// Validate ensures a pushed event payload meets all requirements
func (p *EventPayload) Validate() error {
	if !IsValidEventKind(p.Action) {
		return ErrInvalidEventKind
	}
	if p.Message == "" {
		return ErrEmptyMessage
	}
	// TECHNICAL DISCOVERY: 64KB cap matches the transport frame limit so an
	// oversized message fails validation instead of breaking the socket
	if len(p.Message) > 65536 {
		return ErrMessageTooLarge
	}
	return nil
}

// IsValidEventKind checks if the action is one of the allowed kinds
// ARCHITECTURAL DISCOVERY: Explicit validation prevents undefined kinds
// from entering the notification routing system
func IsValidEventKind(kind string) bool {
	switch kind {
	case EventKindStop, EventKindWarning, EventKindInfo:
		return true
	default:
		return false
	}
}

// IsValidUserID checks if a user ID meets format requirements
// FUNCTIONAL DISCOVERY: 1-50 character limit prevents database issues
// and ensures reasonable display in UI components
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}
