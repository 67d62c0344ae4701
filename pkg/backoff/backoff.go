package backoff

import (
	"math"
	"math/rand"
	"time"
)

// stableAfter is how long a connection must stay up before the attempt counter resets
const stableAfter = 60 * time.Second

// Backoff computes exponential reconnect delays with jitter.
// It is not safe for concurrent use.
type Backoff struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int // 0 means unlimited

	attempt     int
	connectedAt time.Time
	now         func() time.Time
	jitter      func() float64
}

// New creates a Backoff with the given bounds
func New(baseDelay, maxDelay time.Duration, maxAttempts int) *Backoff {
	return &Backoff{
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		MaxAttempts: maxAttempts,
		now:         time.Now,
		jitter:      rand.Float64,
	}
}

// Attempt returns the number of delays handed out since the last reset
func (b *Backoff) Attempt() int {
	return b.attempt
}

// ShouldRetry reports whether another attempt is allowed
func (b *Backoff) ShouldRetry() bool {
	b.refresh()
	return b.MaxAttempts == 0 || b.attempt < b.MaxAttempts
}

// MarkConnected records a successful connect
func (b *Backoff) MarkConnected() {
	b.connectedAt = b.now()
}

// Next returns the delay before the next attempt and advances the counter
func (b *Backoff) Next() time.Duration {
	b.refresh()
	jitter := time.Duration(b.jitter() * float64(b.BaseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(b.BaseDelay)*math.Pow(2, float64(b.attempt))+float64(jitter),
		float64(b.MaxDelay),
	))
	b.attempt++
	return delay
}

// refresh resets the counter once the last connection outlived stableAfter
func (b *Backoff) refresh() {
	if !b.connectedAt.IsZero() && b.now().Sub(b.connectedAt) > stableAfter {
		b.attempt = 0
		b.connectedAt = time.Time{}
	}
}

// Reset clears the attempt counter
func (b *Backoff) Reset() {
	b.attempt = 0
	b.connectedAt = time.Time{}
}
