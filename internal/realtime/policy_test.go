package realtime

import (
	"testing"
	"time"
)

func defaultTestPolicy() *ReconnectPolicy {
	return NewReconnectPolicy(time.Second, 30*time.Second, 5)
}

func TestReconnectPolicy_ExponentialSequence(t *testing.T) {
	policy := defaultTestPolicy()

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}

	for attempt, want := range expected {
		if got := policy.NextDelay(attempt); got != want {
			t.Errorf("NextDelay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestReconnectPolicy_Capped(t *testing.T) {
	policy := defaultTestPolicy()

	// 2^5 = 32s would exceed the 30s cap
	if got := policy.NextDelay(5); got != 30*time.Second {
		t.Errorf("NextDelay(5) = %v, want capped 30s", got)
	}

	// Large attempt numbers must not overflow past the cap
	for _, attempt := range []int{10, 30, 62, 100} {
		if got := policy.NextDelay(attempt); got != 30*time.Second {
			t.Errorf("NextDelay(%d) = %v, want capped 30s", attempt, got)
		}
	}
}

func TestReconnectPolicy_Monotonic(t *testing.T) {
	policy := defaultTestPolicy()

	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		delay := policy.NextDelay(attempt)
		if delay < prev {
			t.Errorf("NextDelay(%d) = %v decreased from %v", attempt, delay, prev)
		}
		if delay > 30*time.Second {
			t.Errorf("NextDelay(%d) = %v exceeds cap", attempt, delay)
		}
		prev = delay
	}
}

func TestReconnectPolicy_NegativeAttempt(t *testing.T) {
	policy := defaultTestPolicy()

	if got := policy.NextDelay(-3); got != time.Second {
		t.Errorf("NextDelay(-3) = %v, want base delay", got)
	}
}

func TestReconnectPolicy_GiveUpThreshold(t *testing.T) {
	policy := defaultTestPolicy()

	for attempt := 0; attempt < 5; attempt++ {
		if policy.ShouldGiveUp(attempt) {
			t.Errorf("ShouldGiveUp(%d) should be false below maxAttempts", attempt)
		}
	}

	for _, attempt := range []int{5, 6, 100} {
		if !policy.ShouldGiveUp(attempt) {
			t.Errorf("ShouldGiveUp(%d) should be true at or above maxAttempts", attempt)
		}
	}
}

func TestReconnectPolicy_Deterministic(t *testing.T) {
	policy := defaultTestPolicy()

	for attempt := 0; attempt < 10; attempt++ {
		first := policy.NextDelay(attempt)
		second := policy.NextDelay(attempt)
		if first != second {
			t.Errorf("NextDelay(%d) not deterministic: %v vs %v", attempt, first, second)
		}
	}
}
