// Package transaction provides the SQLite transaction manager behind
// the application's TransactionManager port. Transactions ride in the
// context; repositories pick them up via GetTxFromContext.
package transaction

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteTransactionManager wraps units of work in serializable write
// transactions. Combined with a DSN opened with _txlock=immediate this
// guarantees two sibling budget reservations cannot both observe the
// same stale remaining and jointly overspend.
type SQLiteTransactionManager struct {
	db *sql.DB
}

// NewSQLiteTransactionManager creates a new SQLite transaction manager
func NewSQLiteTransactionManager(db *sql.DB) *SQLiteTransactionManager {
	return &SQLiteTransactionManager{db: db}
}

// txKey is used as a key for storing transaction in context
type txKey struct{}

// RunInTransaction executes fn within a serializable transaction.
// Nested calls reuse the transaction already in the context.
func (m *SQLiteTransactionManager) RunInTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := GetTxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// GetTxFromContext retrieves a transaction from context
// This is a helper function for repositories to use
func GetTxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}
