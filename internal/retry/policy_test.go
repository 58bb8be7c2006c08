package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var attemptAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestDecide(t *testing.T) {
	p := Default() // 2s base, 1m cap, 3 retries

	tests := []struct {
		name        string
		retryCount  int
		lastAttempt time.Time
		now         time.Time
		want        Decision
	}{
		{
			name:       "never attempted is immediately eligible",
			retryCount: 0,
			now:        attemptAt,
			want:       RetryNow,
		},
		{
			name:        "inside first backoff window",
			retryCount:  1,
			lastAttempt: attemptAt,
			now:         attemptAt.Add(time.Second),
			want:        Wait,
		},
		{
			name:        "first backoff elapsed",
			retryCount:  1,
			lastAttempt: attemptAt,
			now:         attemptAt.Add(4 * time.Second),
			want:        RetryNow,
		},
		{
			name:        "exactly at the boundary is eligible",
			retryCount:  1,
			lastAttempt: attemptAt,
			now:         attemptAt.Add(4 * time.Second).Add(-time.Nanosecond),
			want:        Wait,
		},
		{
			name:        "second backoff doubles",
			retryCount:  2,
			lastAttempt: attemptAt,
			now:         attemptAt.Add(7 * time.Second),
			want:        Wait,
		},
		{
			name:        "second backoff elapsed",
			retryCount:  2,
			lastAttempt: attemptAt,
			now:         attemptAt.Add(8 * time.Second),
			want:        RetryNow,
		},
		{
			name:        "budget spent dead-letters regardless of elapsed time",
			retryCount:  3,
			lastAttempt: attemptAt,
			now:         attemptAt.Add(time.Hour),
			want:        DeadLetter,
		},
		{
			name:       "budget spent even without a recorded attempt",
			retryCount: 3,
			now:        attemptAt,
			want:       DeadLetter,
		},
		{
			name:        "over budget dead-letters",
			retryCount:  7,
			lastAttempt: attemptAt,
			now:         attemptAt,
			want:        DeadLetter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Decide(tt.retryCount, tt.lastAttempt, tt.now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBackoff(t *testing.T) {
	p := Policy{Base: 2 * time.Second, Cap: time.Minute, MaxRetries: 10}

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 16 * time.Second},
		{4, 32 * time.Second},
		{5, time.Minute},  // 64s pins to the cap
		{20, time.Minute}, // stays pinned
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.retryCount),
			"Backoff(%d)", tt.retryCount)
	}
}

func TestBackoff_OverflowPinsToCap(t *testing.T) {
	p := Policy{Base: time.Hour, Cap: 1<<62 - 1, MaxRetries: 100}

	// Doubling an hour 64 times overflows int64; the interval must stay
	// pinned at the cap instead of going negative.
	assert.Equal(t, p.Cap, p.Backoff(64))
}

func TestNextAttempt(t *testing.T) {
	p := Default()

	assert.True(t, p.NextAttempt(0, time.Time{}).IsZero(),
		"unattempted entries are eligible immediately")

	got := p.NextAttempt(1, attemptAt)
	assert.Equal(t, attemptAt.Add(4*time.Second), got)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "wait", Wait.String())
	assert.Equal(t, "retry", RetryNow.String())
	assert.Equal(t, "dead-letter", DeadLetter.String())
	assert.Equal(t, "unknown", Decision(42).String())
}
