package repository

import (
	"context"

	"github.com/weftworks/weft/internal/domain/model/budget"
	"github.com/weftworks/weft/internal/domain/model/thread"
)

// BudgetLedger is the hierarchical spend ledger. Every mutating
// operation runs inside a serializable write transaction so concurrent
// sibling reservations cannot double-spend a shared parent allocation.
type BudgetLedger interface {
	// Register creates the root entry for a thread with no parent.
	Register(ctx context.Context, threadID string, maxSpend *float64) error

	// Reserve atomically checks the parent's remaining allocation and
	// inserts the child entry. Returns budget.ErrInsufficientBudget
	// without side effects when amount exceeds remaining; callers must
	// not start the thread in that case.
	Reserve(ctx context.Context, threadID string, amount float64, parentID string) error

	// ReportActual stores a spend total, clamped to the thread's own
	// reservation. Returns the value actually recorded.
	ReportActual(ctx context.Context, threadID string, spend float64) (float64, error)

	// CascadeSpend adds a finished child's actual spend into the
	// parent's actual. This is how grandchildren's cost surfaces at
	// the root.
	CascadeSpend(ctx context.Context, childID, parentID string, spend float64) error

	// Release finalizes an entry: reserved_spend collapses to
	// actual_spend and the final status is stamped, freeing the
	// difference for siblings.
	Release(ctx context.Context, threadID string, finalStatus thread.Status) error

	// Remaining computes the grantable allocation for a thread.
	Remaining(ctx context.Context, threadID string) (float64, error)

	// UpdateMaxSpend raises or lowers an entry's bound (resume with
	// approved limits).
	UpdateMaxSpend(ctx context.Context, threadID string, maxSpend float64) error

	// Get loads one ledger entry.
	Get(ctx context.Context, threadID string) (*budget.Entry, error)

	// TreeSpend aggregates actual spend across a thread's whole
	// descendant tree, itself included.
	TreeSpend(ctx context.Context, threadID string) (float64, error)
}
