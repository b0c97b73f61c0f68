// internal/service/backoff.go
package service

import "time"

const (
	backoffBase = 5 * time.Minute
	backoffMax  = 6 * time.Hour
)

// NextAttempt returns how long a failed queue item waits before it may be
// claimed again: exponential in the attempt count, capped. Domain-cap
// deferrals do not use this curve; they wait for the next limiting window.
func NextAttempt(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := backoffBase << uint(attempts-1)
	if d > backoffMax || d <= 0 {
		return backoffMax
	}
	return d
}
