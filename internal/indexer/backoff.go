package indexer

import "time"

const (
	backoffBase    = 250 * time.Millisecond
	backoffCap     = 30 * time.Second
	backoffMaxTry  = 5
)

// nextBackoff returns the delay before retry number attempt (1-indexed),
// doubling from backoffBase and clamped to backoffCap.
func nextBackoff(attempt int) time.Duration {
	delay := backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= backoffCap {
			return backoffCap
		}
	}
	return delay
}
