package service

import (
	"time"

	"agentforms-webhooks/internal/core/domain"
)

// MaxBackoff caps any computed retry wait.
const MaxBackoff = 24 * time.Hour

// BackoffDelay returns the wait after attempt number `attempt` before the next one.
// Exponential: initial * 2^(attempt-1). Linear: initial * attempt.
// Unknown kinds fall back to exponential.
func BackoffDelay(attempt int, policy domain.RetryPolicy) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := time.Duration(policy.InitialDelayMs) * time.Millisecond
	if initial <= 0 {
		return 0
	}

	var d time.Duration
	switch policy.Backoff {
	case domain.BackoffLinear:
		if int64(attempt) > int64(MaxBackoff/initial) {
			return MaxBackoff
		}
		d = initial * time.Duration(attempt)
	default:
		shift := attempt - 1
		if shift >= 62 || initial > MaxBackoff>>uint(shift) {
			return MaxBackoff
		}
		d = initial << uint(shift)
	}

	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}
