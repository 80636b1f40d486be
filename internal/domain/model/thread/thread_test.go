package thread

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusRunning.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusRunning.CanTransitionTo(StatusSuspended))
	assert.True(t, StatusRunning.CanTransitionTo(StatusCancelled))
	assert.True(t, StatusSuspended.CanTransitionTo(StatusRunning))
	assert.True(t, StatusSuspended.CanTransitionTo(StatusError))

	// terminal statuses admit nothing
	for _, s := range []Status{StatusCompleted, StatusError, StatusCancelled} {
		assert.True(t, s.IsTerminal())
		assert.False(t, s.CanTransitionTo(StatusRunning), "terminal %s must not transition", s)
	}

	assert.False(t, StatusSuspended.IsTerminal())
	assert.True(t, StatusSuspended.SatisfiesWait())
	assert.False(t, StatusRunning.SatisfiesWait())
}

func TestTerminalThreadIsImmutable(t *testing.T) {
	now := time.Now()
	th := NewThread("job-01ABC", "job", "", Limits{}, nil, now)
	require.NoError(t, th.Finalize(StatusCompleted, Cost{Turns: 3}, "done", "", now))

	err := th.ReportCost(Cost{Turns: 4}, now)
	assert.ErrorIs(t, err, ErrThreadImmutable)
	err = th.TransitionTo(StatusError, "", now)
	assert.ErrorIs(t, err, ErrThreadImmutable)
	assert.Equal(t, 3, th.Cost().Turns)
}

func TestSuspendResumeClearsEscalation(t *testing.T) {
	now := time.Now()
	th := NewThread("job-01ABC", "job", "", Limits{Turns: IntPtr(5)}, nil, now)

	esc := NewEscalation(LimitViolation{Code: "turns_exceeded", Current: 5, Max: 5}, "turn limit reached", now)
	require.NoError(t, th.Suspend(SuspendReasonLimit, &esc, now))
	assert.Equal(t, StatusSuspended, th.Status())
	assert.Equal(t, SuspendReasonLimit, th.SuspendReason())
	require.NotNil(t, th.Escalation())
	assert.Equal(t, float64(10), th.Escalation().ProposedMax)

	require.NoError(t, th.Resume(&Limits{Turns: IntPtr(10)}, now))
	assert.Equal(t, StatusRunning, th.Status())
	assert.Empty(t, th.SuspendReason())
	assert.Nil(t, th.Escalation())
	assert.Equal(t, 10, *th.Limits().Turns)
}

func TestResumeRequiresSuspended(t *testing.T) {
	now := time.Now()
	th := NewThread("job-01ABC", "job", "", Limits{}, nil, now)
	assert.Error(t, th.Resume(nil, now))
}

func TestLimitsResolution(t *testing.T) {
	defaults := Limits{Turns: IntPtr(20), Spend: FloatPtr(5.0)}
	directive := Limits{Turns: IntPtr(50), Tokens: IntPtr(100000)}
	overrides := Limits{Spend: FloatPtr(1.5)}

	resolved := defaults.Merge(directive).Merge(overrides)
	assert.Equal(t, 50, *resolved.Turns)
	assert.Equal(t, 100000, *resolved.Tokens)
	assert.Equal(t, 1.5, *resolved.Spend)

	parent := Limits{Turns: IntPtr(30), Spend: FloatPtr(2.0), Tokens: nil}
	clamped := resolved.ClampToParent(parent)
	assert.Equal(t, 30, *clamped.Turns, "parent bound wins when tighter")
	assert.Equal(t, 1.5, *clamped.Spend, "own bound wins when tighter")
	assert.Equal(t, 100000, *clamped.Tokens, "nil parent bound leaves own")
}

func TestDepthDecrement(t *testing.T) {
	parent := Limits{Depth: IntPtr(2)}

	child, err := Limits{}.DecrementDepth(parent)
	require.NoError(t, err)
	assert.Equal(t, 1, *child.Depth)

	grandchild, err := Limits{}.DecrementDepth(child)
	require.NoError(t, err)
	assert.Equal(t, 0, *grandchild.Depth)

	_, err = Limits{}.DecrementDepth(grandchild)
	assert.ErrorIs(t, err, ErrDepthExhausted)
}

func TestCheckLimits(t *testing.T) {
	limits := Limits{Turns: IntPtr(5), Spend: FloatPtr(1.0)}

	assert.Nil(t, Cost{Turns: 4, Spend: 0.5}.CheckLimits(limits))

	v := Cost{Turns: 5}.CheckLimits(limits)
	require.NotNil(t, v)
	assert.Equal(t, "turns_exceeded", v.Code)

	v = Cost{Spend: 1.2}.CheckLimits(limits)
	require.NotNil(t, v)
	assert.Equal(t, "spend_exceeded", v.Code)

	assert.Nil(t, Cost{Turns: 1000}.CheckLimits(Limits{}), "no limits means unconstrained")
}

func TestGenerateID(t *testing.T) {
	now := time.Now()
	id := GenerateID("review/Code Review.md", now)
	assert.True(t, strings.HasPrefix(id, "code-review-"), id)

	other := GenerateID("review/Code Review.md", now)
	assert.NotEqual(t, id, other)
}
