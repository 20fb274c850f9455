package backoff

import "time"

// maxShift caps the exponent so the schedule cannot overflow; with max
// retries at 3 it is never reached in practice.
const maxShift = 16

// Policy computes retry schedules for a channel.
type Policy struct {
	// Base is the first retry delay; doubles per attempt.
	Base time.Duration
	// MaxRetries is the attempt bound after which the item fails.
	MaxRetries int
}

// NextSchedule returns now + base * 2^retryCount.
func (p Policy) NextSchedule(now time.Time, retryCount int) time.Time {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > maxShift {
		retryCount = maxShift
	}
	return now.Add(p.Base * time.Duration(1<<retryCount))
}

// Exhausted reports whether the item has consumed its retry budget.
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxRetries
}
