package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/weftworks/weft/internal/application/port/output"
	"github.com/weftworks/weft/internal/domain/model/budget"
	"github.com/weftworks/weft/internal/domain/model/thread"
	"github.com/weftworks/weft/internal/infrastructure/transaction"
)

// BudgetLedgerImpl is the SQLite-backed hierarchical spend ledger.
// Mutating operations wrap themselves in the transaction manager's
// serializable transactions, so the check-then-insert of Reserve is
// atomic against concurrent siblings.
type BudgetLedgerImpl struct {
	db *sql.DB
	tm output.TransactionManager
}

// NewBudgetLedger creates a new budget ledger
func NewBudgetLedger(db *sql.DB, tm output.TransactionManager) *BudgetLedgerImpl {
	return &BudgetLedgerImpl{db: db, tm: tm}
}

func (l *BudgetLedgerImpl) getDB(ctx context.Context) dbtx {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return l.db
}

// Register creates the root entry for a thread with no parent. The
// reservation equals the bound so over-reports clamp to it.
func (l *BudgetLedgerImpl) Register(ctx context.Context, threadID string, maxSpend *float64) error {
	return l.tm.RunInTransaction(ctx, func(ctx context.Context) error {
		reserved := 0.0
		if maxSpend != nil {
			reserved = *maxSpend
		}
		_, err := l.getDB(ctx).ExecContext(ctx, `
			INSERT INTO budget_entries (thread_id, parent_thread_id, reserved_spend, actual_spend, max_spend, status, updated_at)
			VALUES (?, NULL, ?, 0, ?, 'running', ?)`,
			threadID, reserved, maxSpendArg(maxSpend), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("register budget entry %s: %w", threadID, err)
		}
		return nil
	})
}

// Reserve atomically checks the parent's remaining allocation and
// inserts the child entry. Declines without side effects when the
// amount exceeds remaining.
func (l *BudgetLedgerImpl) Reserve(ctx context.Context, threadID string, amount float64, parentID string) error {
	if amount <= 0 {
		return fmt.Errorf("%w: reservation amount must be positive", budget.ErrNoSpendLimit)
	}
	return l.tm.RunInTransaction(ctx, func(ctx context.Context) error {
		parent, err := l.get(ctx, parentID)
		if err != nil {
			return err
		}
		if !parent.Unlimited() {
			remaining, err := l.remaining(ctx, parent)
			if err != nil {
				return err
			}
			if amount > remaining {
				return fmt.Errorf("%w: requested %.4f, remaining %.4f under parent %s",
					budget.ErrInsufficientBudget, amount, remaining, parentID)
			}
		}
		_, err = l.getDB(ctx).ExecContext(ctx, `
			INSERT INTO budget_entries (thread_id, parent_thread_id, reserved_spend, actual_spend, max_spend, status, updated_at)
			VALUES (?, ?, ?, 0, ?, 'running', ?)`,
			threadID, parentID, amount, amount, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert budget entry %s: %w", threadID, err)
		}
		return nil
	})
}

// ReportActual stores a spend total, clamped to the thread's own
// reservation. Returns the value actually recorded.
func (l *BudgetLedgerImpl) ReportActual(ctx context.Context, threadID string, spend float64) (float64, error) {
	var recorded float64
	err := l.tm.RunInTransaction(ctx, func(ctx context.Context) error {
		entry, err := l.get(ctx, threadID)
		if err != nil {
			return err
		}
		if entry.Unlimited() {
			// unlimited root: nothing to clamp against
			recorded = spend
			if recorded < 0 {
				recorded = 0
			}
		} else {
			recorded = entry.ClampActual(spend)
		}
		_, err = l.getDB(ctx).ExecContext(ctx,
			`UPDATE budget_entries SET actual_spend = ?, updated_at = ? WHERE thread_id = ?`,
			recorded, time.Now().UTC(), threadID,
		)
		if err != nil {
			return fmt.Errorf("report actual for %s: %w", threadID, err)
		}
		return nil
	})
	return recorded, err
}

// CascadeSpend adds a finished child's actual spend into the parent's
// actual, surfacing grandchildren's cost at the root.
func (l *BudgetLedgerImpl) CascadeSpend(ctx context.Context, childID, parentID string, spend float64) error {
	if spend <= 0 {
		return nil
	}
	return l.tm.RunInTransaction(ctx, func(ctx context.Context) error {
		res, err := l.getDB(ctx).ExecContext(ctx,
			`UPDATE budget_entries SET actual_spend = actual_spend + ?, updated_at = ? WHERE thread_id = ?`,
			spend, time.Now().UTC(), parentID,
		)
		if err != nil {
			return fmt.Errorf("cascade spend from %s to %s: %w", childID, parentID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("cascade spend: no ledger entry for parent %s", parentID)
		}
		return nil
	})
}

// Release finalizes an entry: the reservation collapses to the actual
// spend and the final status is stamped, freeing the difference for
// siblings.
func (l *BudgetLedgerImpl) Release(ctx context.Context, threadID string, finalStatus thread.Status) error {
	return l.tm.RunInTransaction(ctx, func(ctx context.Context) error {
		res, err := l.getDB(ctx).ExecContext(ctx, `
			UPDATE budget_entries
			SET reserved_spend = actual_spend, status = ?, updated_at = ?
			WHERE thread_id = ?`,
			string(finalStatus), time.Now().UTC(), threadID,
		)
		if err != nil {
			return fmt.Errorf("release budget entry %s: %w", threadID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("release: no ledger entry for %s", threadID)
		}
		return nil
	})
}

// Remaining computes the grantable allocation for a thread.
func (l *BudgetLedgerImpl) Remaining(ctx context.Context, threadID string) (float64, error) {
	entry, err := l.get(ctx, threadID)
	if err != nil {
		return 0, err
	}
	if entry.Unlimited() {
		return 0, nil
	}
	return l.remaining(ctx, entry)
}

// UpdateMaxSpend applies an approved budget increase: both the bound
// and the reservation move to the new value.
func (l *BudgetLedgerImpl) UpdateMaxSpend(ctx context.Context, threadID string, maxSpend float64) error {
	return l.tm.RunInTransaction(ctx, func(ctx context.Context) error {
		res, err := l.getDB(ctx).ExecContext(ctx, `
			UPDATE budget_entries
			SET max_spend = ?, reserved_spend = MAX(reserved_spend, ?), updated_at = ?
			WHERE thread_id = ?`,
			maxSpend, maxSpend, time.Now().UTC(), threadID,
		)
		if err != nil {
			return fmt.Errorf("update max spend of %s: %w", threadID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("update max spend: no ledger entry for %s", threadID)
		}
		return nil
	})
}

// Get loads one ledger entry.
func (l *BudgetLedgerImpl) Get(ctx context.Context, threadID string) (*budget.Entry, error) {
	return l.get(ctx, threadID)
}

// TreeSpend aggregates actual spend across a thread's descendant tree,
// itself included.
func (l *BudgetLedgerImpl) TreeSpend(ctx context.Context, threadID string) (float64, error) {
	var total float64
	err := l.getDB(ctx).QueryRowContext(ctx, `
		WITH RECURSIVE tree(thread_id) AS (
			SELECT thread_id FROM budget_entries WHERE thread_id = ?
			UNION ALL
			SELECT b.thread_id FROM budget_entries b
			JOIN tree t ON b.parent_thread_id = t.thread_id
		)
		SELECT COALESCE(SUM(b.actual_spend), 0)
		FROM budget_entries b JOIN tree t ON b.thread_id = t.thread_id`,
		threadID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("tree spend of %s: %w", threadID, err)
	}
	return total, nil
}

func (l *BudgetLedgerImpl) get(ctx context.Context, threadID string) (*budget.Entry, error) {
	row := l.getDB(ctx).QueryRowContext(ctx, `
		SELECT thread_id, COALESCE(parent_thread_id, ''), reserved_spend, actual_spend, max_spend, status, updated_at
		FROM budget_entries WHERE thread_id = ?`, threadID)

	entry := &budget.Entry{}
	var maxSpend sql.NullFloat64
	err := row.Scan(&entry.ThreadID, &entry.ParentID, &entry.ReservedSpend,
		&entry.ActualSpend, &maxSpend, &entry.Status, &entry.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no ledger entry for thread %s", threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry %s: %w", threadID, err)
	}
	if maxSpend.Valid {
		entry.MaxSpend = &maxSpend.Float64
	}
	return entry, nil
}

// remaining computes max − own actual − Σ(active children reserved) −
// Σ(finished children actual). Runs on whatever connection the context
// carries, so Reserve sees a consistent snapshot inside its tx.
func (l *BudgetLedgerImpl) remaining(ctx context.Context, entry *budget.Entry) (float64, error) {
	var activeReserved, finishedActual float64
	err := l.getDB(ctx).QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status IN ('running', 'suspended') THEN reserved_spend ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status NOT IN ('running', 'suspended') THEN actual_spend ELSE 0 END), 0)
		FROM budget_entries WHERE parent_thread_id = ?`,
		entry.ThreadID,
	).Scan(&activeReserved, &finishedActual)
	if err != nil {
		return 0, fmt.Errorf("sum children of %s: %w", entry.ThreadID, err)
	}
	return entry.Remaining(activeReserved, finishedActual), nil
}

func maxSpendArg(maxSpend *float64) interface{} {
	if maxSpend == nil {
		return nil
	}
	return *maxSpend
}
