package infra

import "time"

const (
	baseBackoff = 1 * time.Second
	maxBackoff  = 60 * time.Second
)

// CalculateBackoff returns the delay before the given retry attempt:
// exponential from baseBackoff, capped at maxBackoff.
func CalculateBackoff(retry int) time.Duration {
	if retry <= 0 {
		return baseBackoff
	}
	delay := baseBackoff << uint(retry)
	if delay > maxBackoff || delay <= 0 {
		return maxBackoff
	}
	return delay
}
