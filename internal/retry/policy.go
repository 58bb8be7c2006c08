// Package retry holds the pure retry decision logic: given an entry's
// retry count and last attempt time, decide whether to retry now, wait,
// or dead-letter. No hidden state and no wall-clock reads - callers
// inject now, which keeps the policy testable without sleeps.
package retry

import "time"

// Decision is the outcome of consulting the policy for one entry.
type Decision int

const (
	// Wait means the entry is inside its backoff window; try again on a
	// later cycle. Under strict per-target ordering a waiting entry also
	// blocks everything queued behind it.
	Wait Decision = iota

	// RetryNow means the entry is eligible for a replay attempt.
	RetryNow

	// DeadLetter means the retry budget is spent; the entry must be
	// transitioned to terminal FAILED without another attempt.
	DeadLetter
)

func (d Decision) String() string {
	switch d {
	case Wait:
		return "wait"
	case RetryNow:
		return "retry"
	case DeadLetter:
		return "dead-letter"
	default:
		return "unknown"
	}
}

// Policy is exponential backoff with a cap and a bounded retry budget.
type Policy struct {
	// Base is the backoff before the second attempt; subsequent waits
	// double per attempt: min(Base * 2^retryCount, Cap).
	Base time.Duration

	// Cap bounds the backoff interval.
	Cap time.Duration

	// MaxRetries is the attempt budget. Once retryCount reaches it the
	// entry dead-letters.
	MaxRetries int
}

// Default mirrors the operational defaults: 2s base, 1m cap, 3 attempts.
func Default() Policy {
	return Policy{Base: 2 * time.Second, Cap: time.Minute, MaxRetries: 3}
}

// Decide returns the action for an entry with the given retry count and
// last attempt time at the injected now. A zero lastAttempt means the
// entry has never been attempted and is immediately eligible.
func (p Policy) Decide(retryCount int, lastAttempt, now time.Time) Decision {
	if retryCount >= p.MaxRetries {
		return DeadLetter
	}
	if lastAttempt.IsZero() {
		return RetryNow
	}
	if now.Before(lastAttempt.Add(p.Backoff(retryCount))) {
		return Wait
	}
	return RetryNow
}

// Backoff returns the wait interval after retryCount attempts:
// min(Base * 2^retryCount, Cap).
func (p Policy) Backoff(retryCount int) time.Duration {
	d := p.Base
	for i := 0; i < retryCount; i++ {
		d *= 2
		// Doubling past the cap (or overflowing) pins to the cap.
		if d >= p.Cap || d <= 0 {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// NextAttempt returns the earliest time an entry becomes eligible again.
// Zero lastAttempt yields the zero time (eligible immediately).
func (p Policy) NextAttempt(retryCount int, lastAttempt time.Time) time.Time {
	if lastAttempt.IsZero() {
		return time.Time{}
	}
	return lastAttempt.Add(p.Backoff(retryCount))
}
