package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/domain/model/budget"
	"github.com/weftworks/weft/internal/domain/model/thread"
	"github.com/weftworks/weft/internal/infrastructure/transaction"
)

func newTestLedger(t *testing.T) (*BudgetLedgerImpl, *sql.DB) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBudgetLedger(db, transaction.NewSQLiteTransactionManager(db)), db
}

func TestReserveAgainstParentRemaining(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Register(ctx, "root", thread.FloatPtr(3.00)))

	// two children at 1.50 each exhaust the allocation
	require.NoError(t, ledger.Reserve(ctx, "child-a", 1.50, "root"))
	require.NoError(t, ledger.Reserve(ctx, "child-b", 1.50, "root"))

	remaining, err := ledger.Remaining(ctx, "root")
	require.NoError(t, err)
	assert.InDelta(t, 0.00, remaining, 1e-9)

	// even a cent more is declined without side effects
	err = ledger.Reserve(ctx, "child-c", 0.01, "root")
	assert.ErrorIs(t, err, budget.ErrInsufficientBudget)
	_, err = ledger.Get(ctx, "child-c")
	assert.Error(t, err, "declined reservation must leave no row")

	// child A finishes under budget and releases
	recorded, err := ledger.ReportActual(ctx, "child-a", 1.20)
	require.NoError(t, err)
	assert.InDelta(t, 1.20, recorded, 1e-9)
	require.NoError(t, ledger.Release(ctx, "child-a", thread.StatusCompleted))

	remaining, err = ledger.Remaining(ctx, "root")
	require.NoError(t, err)
	assert.InDelta(t, 0.30, remaining, 1e-9, "release frees the unspent 0.30")

	// child B over-reports and is clamped to its reservation
	recorded, err = ledger.ReportActual(ctx, "child-b", 1.60)
	require.NoError(t, err)
	assert.InDelta(t, 1.50, recorded, 1e-9)

	entry, err := ledger.Get(ctx, "child-b")
	require.NoError(t, err)
	assert.InDelta(t, 1.50, entry.ActualSpend, 1e-9)
}

func TestConcurrentReservesNeverOverspend(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Register(ctx, "root", thread.FloatPtr(5.00)))

	// 10 siblings want 1.00 each against a 5.00 budget
	var wg sync.WaitGroup
	granted := make([]bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := ledger.Reserve(ctx, fmt.Sprintf("child-%d", i), 1.00, "root")
			granted[i] = err == nil
		}(i)
	}
	wg.Wait()

	var count int
	for _, ok := range granted {
		if ok {
			count++
		}
	}
	assert.Equal(t, 5, count, "granted reservations must sum to exactly max_spend")

	remaining, err := ledger.Remaining(ctx, "root")
	require.NoError(t, err)
	assert.InDelta(t, 0.00, remaining, 1e-9)
}

func TestCascadeSpendSurfacesChildCost(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Register(ctx, "root", thread.FloatPtr(10.00)))
	require.NoError(t, ledger.Reserve(ctx, "child", 2.00, "root"))

	_, err := ledger.ReportActual(ctx, "child", 1.75)
	require.NoError(t, err)
	require.NoError(t, ledger.Release(ctx, "child", thread.StatusCompleted))
	require.NoError(t, ledger.CascadeSpend(ctx, "child", "root", 1.75))

	root, err := ledger.Get(ctx, "root")
	require.NoError(t, err)
	assert.InDelta(t, 1.75, root.ActualSpend, 1e-9)
}

func TestTreeSpendAggregatesDescendants(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Register(ctx, "root", thread.FloatPtr(10.00)))
	require.NoError(t, ledger.Reserve(ctx, "child", 4.00, "root"))
	require.NoError(t, ledger.Reserve(ctx, "grandchild", 1.00, "child"))

	_, err := ledger.ReportActual(ctx, "child", 2.00)
	require.NoError(t, err)
	_, err = ledger.ReportActual(ctx, "grandchild", 0.50)
	require.NoError(t, err)

	total, err := ledger.TreeSpend(ctx, "root")
	require.NoError(t, err)
	assert.InDelta(t, 2.50, total, 1e-9)
}

func TestReserveUnderUnlimitedRoot(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Register(ctx, "root", nil))
	require.NoError(t, ledger.Reserve(ctx, "child", 100.0, "root"))
}

func TestUpdateMaxSpendRaisesReservation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.Register(ctx, "root", thread.FloatPtr(10.00)))
	require.NoError(t, ledger.Reserve(ctx, "child", 1.00, "root"))
	require.NoError(t, ledger.UpdateMaxSpend(ctx, "child", 2.00))

	entry, err := ledger.Get(ctx, "child")
	require.NoError(t, err)
	require.NotNil(t, entry.MaxSpend)
	assert.InDelta(t, 2.00, *entry.MaxSpend, 1e-9)
	assert.InDelta(t, 2.00, entry.ReservedSpend, 1e-9)
}
