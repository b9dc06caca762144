package receipt

import "time"

// nextAttempt returns when a failed event should be retried, or nil once
// maxAttempts has been reached. The delay grows linearly with attempts.
func nextAttempt(attempts, maxAttempts int, delay time.Duration, now time.Time) *time.Time {
	if attempts >= maxAttempts {
		return nil
	}
	next := now.Add(time.Duration(attempts) * delay)
	return &next
}
