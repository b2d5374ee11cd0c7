package types

import (
	"time"
)

// Notification kind constants mirror the wire-level action values pushed by
// the server on the per-user attempt queue, ordered by urgency: STOP blocks,
// WARNING cautions, INFO informs
const (
	EventKindStop    = "STOP"
	EventKindWarning = "WARNING"
	EventKindInfo    = "INFO"
)

// Role constants for the learning-management domain
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// User identifies the authenticated account behind a session
type User struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

// Session holds the access/refresh token pair for an authenticated user
// FUNCTIONAL DISCOVERY: Session values are immutable after creation - renewal
// produces a replacement value rather than mutating tokens in place, so no
// caller can observe a half-updated token pair
type Session struct {
	AccessToken          string    `json:"access_token"`
	RefreshToken         string    `json:"refresh_token"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	User                 User      `json:"user"`
}

// ExpiresWithin reports whether the access token expires before now+skew.
// Consumers treat tokens as expiring early to avoid mid-request expiry races.
func (s *Session) ExpiresWithin(now time.Time, skew time.Duration) bool {
	return !now.Add(skew).Before(s.AccessTokenExpiresAt)
}

// NotificationEvent is one decoded push notification
// ARCHITECTURAL DISCOVERY: ID is generated client-side per delivery so history
// tracking and read state never depend on server-assigned identity
type NotificationEvent struct {
	ID               string    `json:"id"`
	Kind             string    `json:"kind"`
	Message          string    `json:"message"`
	RelatedAttemptID *int      `json:"related_attempt_id,omitempty"`
	ReceivedAt       time.Time `json:"received_at"`
	Read             bool      `json:"read"`
}

// ConnectionStateKind enumerates the realtime connection state machine
type ConnectionStateKind int

const (
	StateDisconnected ConnectionStateKind = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (k ConnectionStateKind) String() string {
	switch k {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnectionState carries the state machine value plus the retry context
// that only applies while reconnecting or failed
type ConnectionState struct {
	Kind      ConnectionStateKind `json:"kind"`
	Attempt   int                 `json:"attempt,omitempty"`
	NextDelay time.Duration       `json:"next_delay,omitempty"`
	Reason    string              `json:"reason,omitempty"`
}

// Terminal reports whether the state admits no further transitions for
// this connection instance
func (s ConnectionState) Terminal() bool {
	return s.Kind == StateDisconnected || s.Kind == StateFailed
}

// Frame type constants for the realtime sub-protocol
// TECHNICAL DISCOVERY: JSON frames over the raw socket keep the protocol
// debuggable while remaining compatible with browser-side clients
const (
	FrameTypeConnect   = "connect"
	FrameTypeConnected = "connected"
	FrameTypeSubscribe = "subscribe"
	FrameTypeEvent     = "event"
	FrameTypeHeartbeat = "heartbeat"
	FrameTypeError     = "error"
)

// Frame is one discrete message unit on the realtime transport
type Frame struct {
	Type        string        `json:"type"`
	Token       string        `json:"token,omitempty"`
	Destination string        `json:"destination,omitempty"`
	Payload     *EventPayload `json:"payload,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// EventPayload is the wire shape of a pushed notification
type EventPayload struct {
	AttemptID *int   `json:"attemptId,omitempty"`
	Action    string `json:"action"`
	Message   string `json:"message"`
}
