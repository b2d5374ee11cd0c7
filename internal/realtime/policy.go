package realtime

import (
	"time"
)

// ReconnectPolicy computes retry scheduling decisions for the supervisor
// ARCHITECTURAL DISCOVERY: Pure decision logic with no I/O or timers keeps
// retry policy (when to reconnect) independent from connection mechanics
// (how to reconnect) and makes the backoff sequence trivially testable
type ReconnectPolicy struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
}

// NewReconnectPolicy creates a policy with the given backoff parameters
func NewReconnectPolicy(baseDelay, maxDelay time.Duration, maxAttempts int) *ReconnectPolicy {
	return &ReconnectPolicy{
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		maxAttempts: maxAttempts,
	}
}

// NextDelay returns the delay before retry number attempt (zero-based).
// Exponential: base * 2^attempt, capped at the configured maximum.
// FUNCTIONAL DISCOVERY: Deterministic with no jitter - the full retry
// schedule is computable from the attempt number alone
func (p *ReconnectPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := p.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		// TECHNICAL DISCOVERY: Early cap check prevents duration overflow
		// for pathological attempt numbers
		if delay >= p.maxDelay {
			return p.maxDelay
		}
	}

	if delay > p.maxDelay {
		return p.maxDelay
	}
	return delay
}

// ShouldGiveUp reports whether retrying should stop at this attempt number
func (p *ReconnectPolicy) ShouldGiveUp(attempt int) bool {
	return attempt >= p.maxAttempts
}
