package interfaces

import (
	"context"

	"studyhall/pkg/types"
)

// TokenSource hands out the current authenticated session
// ARCHITECTURAL DISCOVERY: Context-first design pattern ensures proper
// cancellation and timeout handling while a silent renewal is outstanding
type TokenSource interface {
	// GetValidSession returns a session whose access token is not within the
	// renewal skew of expiry, triggering at most one renewal per expiry.
	// FUNCTIONAL DISCOVERY: Concurrent callers during an in-flight renewal
	// must share the same pending result, never issue duplicate refresh calls
	GetValidSession(ctx context.Context) (*types.Session, error)

	// SessionEnded returns a channel closed when the session reaches its
	// Expired terminal state (logout or fatal renewal failure).
	// ARCHITECTURAL DISCOVERY: Channel-based signal lets the supervisor
	// tear down the realtime connection without polling auth state
	SessionEnded() <-chan struct{}
}
