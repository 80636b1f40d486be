package output

import "context"

// TransactionManager wraps a unit of work in a serializable write
// transaction. The transaction rides in the context; repositories pick
// it up transparently.
type TransactionManager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
