package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/domain/model/thread"
	"github.com/weftworks/weft/internal/domain/repository"
)

func newTestRepo(t *testing.T) *ThreadRepositoryImpl {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewThreadRepository(db)
}

func TestRegisterAndGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	th := thread.NewThread("review-01ABC", "review", "",
		thread.Limits{Turns: thread.IntPtr(10), Spend: thread.FloatPtr(2.5)},
		[]string{"weft.execute.tool.*"}, now)
	require.NoError(t, repo.Register(ctx, th))

	got, err := repo.Get(ctx, "review-01ABC")
	require.NoError(t, err)
	assert.Equal(t, "review", got.Directive())
	assert.Equal(t, thread.StatusRunning, got.Status())
	assert.Equal(t, 10, *got.Limits().Turns)
	assert.Equal(t, []string{"weft.execute.tool.*"}, got.Capabilities())
}

func TestGetUnknownThread(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, repository.ErrThreadNotFound)
}

func TestUpdateStatusEnforcesLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	th := thread.NewThread("job-01", "job", "", thread.Limits{}, nil, now)
	require.NoError(t, repo.Register(ctx, th))

	require.NoError(t, repo.UpdateStatus(ctx, "job-01", thread.StatusSuspended, thread.SuspendReasonLimit))
	got, err := repo.Get(ctx, "job-01")
	require.NoError(t, err)
	assert.Equal(t, thread.StatusSuspended, got.Status())
	assert.Equal(t, thread.SuspendReasonLimit, got.SuspendReason())

	require.NoError(t, repo.UpdateStatus(ctx, "job-01", thread.StatusRunning, ""))
	require.NoError(t, repo.UpdateStatus(ctx, "job-01", thread.StatusCompleted, ""))

	// terminal rows refuse further transitions
	err = repo.UpdateStatus(ctx, "job-01", thread.StatusRunning, "")
	assert.ErrorIs(t, err, thread.ErrThreadImmutable)
}

func TestSaveRoundTripsEscalation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	th := thread.NewThread("job-02", "job", "", thread.Limits{Turns: thread.IntPtr(5)}, nil, now)
	require.NoError(t, repo.Register(ctx, th))

	esc := thread.NewEscalation(thread.LimitViolation{Code: "turns_exceeded", Current: 5, Max: 5}, "turn limit reached", now)
	require.NoError(t, th.Suspend(thread.SuspendReasonLimit, &esc, now))
	require.NoError(t, repo.Save(ctx, th))

	got, err := repo.Get(ctx, "job-02")
	require.NoError(t, err)
	require.NotNil(t, got.Escalation())
	assert.Equal(t, "turns_exceeded", got.Escalation().LimitCode)
	assert.Equal(t, float64(10), got.Escalation().ProposedMax)
}

func TestListActiveAndChildren(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	parent := thread.NewThread("parent-01", "main", "", thread.Limits{}, nil, now)
	childA := thread.NewThread("child-a", "sub", "parent-01", thread.Limits{}, nil, now.Add(time.Millisecond))
	childB := thread.NewThread("child-b", "sub", "parent-01", thread.Limits{}, nil, now.Add(2*time.Millisecond))
	for _, th := range []*thread.Thread{parent, childA, childB} {
		require.NoError(t, repo.Register(ctx, th))
	}
	require.NoError(t, repo.UpdateStatus(ctx, "child-b", thread.StatusCompleted, ""))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	children, err := repo.ListChildren(ctx, "parent-01")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "child-a", children[0].ID())
}

func TestSetResult(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	th := thread.NewThread("job-03", "job", "", thread.Limits{}, nil, time.Now())
	require.NoError(t, repo.Register(ctx, th))

	cost := thread.Cost{Turns: 4, InputTokens: 100, OutputTokens: 50, Spend: 0.42}
	require.NoError(t, repo.SetResult(ctx, "job-03", cost, "all done", ""))

	got, err := repo.Get(ctx, "job-03")
	require.NoError(t, err)
	assert.Equal(t, "all done", got.Result())
	assert.Equal(t, 4, got.Cost().Turns)
	assert.InDelta(t, 0.42, got.Cost().Spend, 1e-9)
}
