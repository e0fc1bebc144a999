package protocol

import "time"

// Backoff tracks when a layer may be attempted again.
type Backoff struct {
	next     time.Time
	failures int
}

// Ready reports whether an attempt is allowed at now.
func (b *Backoff) Ready(now time.Time) bool {
	return !now.Before(b.next)
}

// Failed records a failed attempt and defers the next one by wait.
func (b *Backoff) Failed(now time.Time, wait time.Duration) {
	b.failures++
	b.next = now.Add(wait)
}

// Reset clears the failure count after a successful registration.
func (b *Backoff) Reset() {
	b.failures = 0
	b.next = time.Time{}
}

// Failures returns the consecutive failure count.
func (b *Backoff) Failures() int {
	return b.failures
}

// NextAttempt returns the earliest time of the next attempt.
func (b *Backoff) NextAttempt() time.Time {
	return b.next
}
