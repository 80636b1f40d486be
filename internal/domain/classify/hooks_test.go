package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookFirstMatchWins(t *testing.T) {
	hooks := HookSet{
		{Event: EventError, Match: "quota", Action: ActionSuspend},
		{Event: EventError, Action: ActionRetry},
		{Event: EventLimit, Match: "turns", Action: ActionEscalate},
	}

	action, matched := hooks.Evaluate(EventError, "quota_exhausted")
	assert.True(t, matched)
	assert.Equal(t, ActionSuspend, action)

	// second hook catches everything else on the error event
	action, matched = hooks.Evaluate(EventError, "connection reset")
	assert.True(t, matched)
	assert.Equal(t, ActionRetry, action)

	action, matched = hooks.Evaluate(EventLimit, "turns_exceeded")
	assert.True(t, matched)
	assert.Equal(t, ActionEscalate, action)
}

func TestHookDefaults(t *testing.T) {
	var hooks HookSet

	action, matched := hooks.Evaluate(EventLimit, "spend_exceeded")
	assert.False(t, matched)
	assert.Equal(t, ActionSuspend, action, "limit violations suspend by default")

	action, matched = hooks.Evaluate(EventError, "permanent")
	assert.False(t, matched)
	assert.Equal(t, ActionFail, action, "errors fail by default")
}

func TestHookEventIsolation(t *testing.T) {
	hooks := HookSet{{Event: EventLimit, Action: ActionFail}}

	// a limit hook never catches error events
	action, matched := hooks.Evaluate(EventError, "anything")
	assert.False(t, matched)
	assert.Equal(t, ActionFail, action)

	action, matched = hooks.Evaluate(EventLimit, "duration_exceeded")
	assert.True(t, matched)
	assert.Equal(t, ActionFail, action)
}
