package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/weftworks/weft/internal/domain/model/thread"
)

func TestWaitUnblocksOnTerminalOrSuspended(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, status := range []string{"completed", "error", "cancelled", "suspended"} {
		c := NewCompletionCoordinator()
		c.CreateSignal("t1")

		go func() {
			time.Sleep(10 * time.Millisecond)
			c.Signal("t1", Outcome{ThreadID: "t1", Status: status})
		}()

		res, err := c.Wait(context.Background(), []string{"t1"}, false, time.Second)
		require.NoError(t, err)
		assert.Equal(t, status, res.Outcomes["t1"].Status)
		assert.Empty(t, res.Outstanding)
	}
}

func TestWaitUnknownIDIsHardError(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCompletionCoordinator()
	res, err := c.Wait(context.Background(), []string{"ghost"}, false, time.Second)
	require.NoError(t, err)
	out := res.Outcomes["ghost"]
	assert.Equal(t, "error", out.Status)
	assert.Contains(t, out.Error, "No active task for thread_id")
}

func TestWaitFailFast(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCompletionCoordinator()
	c.CreateSignal("a")
	c.CreateSignal("b")

	c.Signal("a", Outcome{ThreadID: "a", Status: string(thread.StatusError), Error: "boom"})

	res, err := c.Wait(context.Background(), []string{"a", "b"}, true, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "error", res.Outcomes["a"].Status)
	assert.Equal(t, []string{"b"}, res.Outstanding, "fail-fast leaves b outstanding")

}

func TestWaitTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCompletionCoordinator()
	c.CreateSignal("slow")

	res, err := c.Wait(context.Background(), []string{"slow"}, false, 20*time.Millisecond)
	require.NoError(t, err)
	assert.NotContains(t, res.Outcomes, "slow", "no fabricated outcome for an unsettled thread")
	assert.Equal(t, []string{"slow"}, res.Outstanding)
}

func TestResetSignalAllowsSecondSettle(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCompletionCoordinator()
	c.CreateSignal("t1")
	c.Signal("t1", Outcome{ThreadID: "t1", Status: "suspended"})

	res, err := c.Wait(context.Background(), []string{"t1"}, false, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "suspended", res.Outcomes["t1"].Status)

	// resume path: the fired signal is replaced, not reused
	c.ResetSignal("t1")
	assert.True(t, c.IsActive("t1"), "resumed runner counts as live again")

	c.Signal("t1", Outcome{ThreadID: "t1", Status: "completed", Result: "done"})
	res, err = c.Wait(context.Background(), []string{"t1"}, false, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Outcomes["t1"].Status)
	assert.Equal(t, "done", res.Outcomes["t1"].Result)
	assert.False(t, c.IsActive("t1"))
}

func TestSignalFiresOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCompletionCoordinator()
	c.CreateSignal("t1")
	c.Signal("t1", Outcome{ThreadID: "t1", Status: "completed", Result: "first"})
	c.Signal("t1", Outcome{ThreadID: "t1", Status: "error", Result: "second"})

	res, err := c.Wait(context.Background(), []string{"t1"}, false, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Outcomes["t1"].Status)
	assert.Equal(t, "first", res.Outcomes["t1"].Result)
}

func TestSpawnAndDepthBookkeeping(t *testing.T) {
	c := NewCompletionCoordinator()
	assert.Equal(t, 1, c.RecordSpawn("parent"))
	assert.Equal(t, 2, c.RecordSpawn("parent"))

	c.SetDepth("t1", 3)
	assert.Equal(t, 3, c.Depth("t1"))
	assert.Equal(t, -1, c.Depth("unknown"))
}

func TestIsActiveLifecycle(t *testing.T) {
	c := NewCompletionCoordinator()
	assert.False(t, c.IsActive("t1"))
	c.CreateSignal("t1")
	assert.True(t, c.IsActive("t1"))
	c.Signal("t1", Outcome{ThreadID: "t1", Status: "completed"})
	assert.False(t, c.IsActive("t1"))
	assert.True(t, c.HasSignal("t1"), "signal outlives activity for late waiters")
}
