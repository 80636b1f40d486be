package classify

import "time"

// RetryPolicy computes backoff delays per category.
type RetryPolicy struct {
	MaxAttempts       int
	BackoffBase       time.Duration // exponential base for Transient
	BackoffCap        time.Duration
	DefaultRetryAfter time.Duration // RateLimited fallback when the provider sends no hint
	QuotaCooldown     time.Duration // fixed delay for Quota
}

// DefaultRetryPolicy matches the shipped resilience defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		BackoffBase:       2 * time.Second,
		BackoffCap:        120 * time.Second,
		DefaultRetryAfter: 30 * time.Second,
		QuotaCooldown:     300 * time.Second,
	}
}

// Delay returns the wait before retry number attempt (0-based) for the
// given failure, and whether a retry is allowed at all. Non-retryable
// categories and exhausted attempts return false.
func (p RetryPolicy) Delay(f Failure, c Classification, attempt int) (time.Duration, bool) {
	if !c.Retryable || attempt >= p.MaxAttempts {
		return 0, false
	}
	switch c.Category {
	case Transient:
		d := p.BackoffBase << uint(attempt)
		if d > p.BackoffCap || d <= 0 {
			d = p.BackoffCap
		}
		return d, true
	case RateLimited:
		if f.RetryAfter > 0 {
			return time.Duration(f.RetryAfter * float64(time.Second)), true
		}
		return p.DefaultRetryAfter, true
	case Quota:
		return p.QuotaCooldown, true
	}
	return 0, false
}
