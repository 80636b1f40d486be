// Package classify maps raw model/tool failures to retry categories.
// Classification is pure and total: every input lands in exactly one
// category, and unrecognized failures default to Permanent so an
// unknown condition is never silently retried.
package classify

import "strings"

// Category is the retry class of a failure.
type Category string

const (
	Transient   Category = "TRANSIENT"
	RateLimited Category = "RATE_LIMITED"
	Quota       Category = "QUOTA"
	LimitHit    Category = "LIMIT_HIT"
	Budget      Category = "BUDGET"
	Permanent   Category = "PERMANENT"
	Cancelled   Category = "CANCELLED"
)

// Failure is the raw material for classification: an optional HTTP-ish
// status code, the error message, and an optional provider retry-after
// hint in seconds.
type Failure struct {
	StatusCode int
	Message    string
	RetryAfter float64
}

// Classification is the result: category plus whether the runner may
// retry locally.
type Classification struct {
	Category  Category
	Retryable bool
}

var transientSubstrings = []string{
	"connection reset",
	"connection refused",
	"timed out",
	"timeout",
	"overloaded",
	"temporarily unavailable",
	"server error",
}

var rateLimitedSubstrings = []string{
	"rate limit",
	"too many requests",
}

var quotaSubstrings = []string{
	"quota exceeded",
	"insufficient quota",
	"billing",
}

var permanentSubstrings = []string{
	"invalid key",
	"invalid api key",
	"authentication",
	"model not found",
	"content policy",
	"invalid request",
}

var cancelledSubstrings = []string{
	"cancelled",
	"canceled",
	"context canceled",
}

var limitSubstrings = []string{
	"limit exceeded",
	"_exceeded",
}

var budgetSubstrings = []string{
	"insufficient budget",
	"budget exhausted",
}

// Classify maps a failure to its category. Status code rules take
// precedence over message substrings; anything unmatched is Permanent.
func Classify(f Failure) Classification {
	switch {
	case f.StatusCode == 429:
		return Classification{RateLimited, true}
	case f.StatusCode == 408, f.StatusCode >= 500 && f.StatusCode <= 599:
		return Classification{Transient, true}
	}

	msg := strings.ToLower(f.Message)
	switch {
	case containsAny(msg, cancelledSubstrings):
		return Classification{Cancelled, false}
	case containsAny(msg, budgetSubstrings):
		return Classification{Budget, false}
	case containsAny(msg, limitSubstrings):
		return Classification{LimitHit, false}
	case containsAny(msg, rateLimitedSubstrings):
		return Classification{RateLimited, true}
	case containsAny(msg, quotaSubstrings):
		return Classification{Quota, true}
	case containsAny(msg, transientSubstrings):
		return Classification{Transient, true}
	case containsAny(msg, permanentSubstrings):
		return Classification{Permanent, false}
	}
	return Classification{Permanent, false}
}

func containsAny(msg string, subs []string) bool {
	for _, s := range subs {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
