package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatusCodes(t *testing.T) {
	assert.Equal(t, Transient, Classify(Failure{StatusCode: 500}).Category)
	assert.Equal(t, Transient, Classify(Failure{StatusCode: 503}).Category)
	assert.Equal(t, Transient, Classify(Failure{StatusCode: 408}).Category)
	assert.Equal(t, RateLimited, Classify(Failure{StatusCode: 429}).Category)
	assert.Equal(t, Permanent, Classify(Failure{StatusCode: 400, Message: "bad request"}).Category)
}

func TestClassifyMessages(t *testing.T) {
	cases := []struct {
		msg  string
		want Category
	}{
		{"Connection reset by peer", Transient},
		{"server overloaded, retry shortly", Transient},
		{"Rate limit reached for model", RateLimited},
		{"Monthly quota exceeded", Quota},
		{"Invalid API key provided", Permanent},
		{"model not found: gpt-nonexistent", Permanent},
		{"blocked by content policy", Permanent},
		{"turns_exceeded", LimitHit},
		{"insufficient budget for reservation", Budget},
		{"operation cancelled by user", Cancelled},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(Failure{Message: tc.msg}).Category, tc.msg)
	}
}

func TestClassifyIsTotalAndDeterministic(t *testing.T) {
	inputs := []Failure{
		{},
		{Message: "??? unheard of gibberish ???"},
		{StatusCode: 418, Message: "teapot"},
	}
	for _, f := range inputs {
		first := Classify(f)
		assert.Equal(t, Permanent, first.Category, "unknown failures default to permanent")
		assert.Equal(t, first, Classify(f), "classification must be deterministic")
	}
}

func TestRetryDelays(t *testing.T) {
	p := DefaultRetryPolicy()

	// exponential with cap for transient
	d, ok := p.Delay(Failure{}, Classification{Transient, true}, 0)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
	d, _ = p.Delay(Failure{}, Classification{Transient, true}, 3)
	assert.Equal(t, 16*time.Second, d)
	d, _ = p.Delay(Failure{}, Classification{Transient, true}, 4)
	assert.Equal(t, 32*time.Second, d)

	// provider retry-after wins for rate limits
	d, ok = p.Delay(Failure{RetryAfter: 7}, Classification{RateLimited, true}, 0)
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, d)
	d, _ = p.Delay(Failure{}, Classification{RateLimited, true}, 0)
	assert.Equal(t, 30*time.Second, d)

	// fixed cooldown for quota
	d, _ = p.Delay(Failure{}, Classification{Quota, true}, 2)
	assert.Equal(t, 300*time.Second, d)

	// never retry permanent or past max attempts
	_, ok = p.Delay(Failure{}, Classification{Permanent, false}, 0)
	assert.False(t, ok)
	_, ok = p.Delay(Failure{}, Classification{Transient, true}, 5)
	assert.False(t, ok)
}
