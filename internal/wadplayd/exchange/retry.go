package exchange

import "time"

// RetryPolicy bounds how often and how patiently a failed call is repeated
type RetryPolicy struct {
	// MaxAttempts counts the first try; values below 1 mean a single try
	MaxAttempts int
	// BaseDelay is the wait before the second attempt
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the standard exchange retry budget
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// backoff returns the wait after the given failed attempt:
// BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay * time.Duration(1<<uint(attempt-1))
	if p.MaxDelay > 0 && (delay > p.MaxDelay || delay <= 0) {
		delay = p.MaxDelay
	}
	return delay
}
