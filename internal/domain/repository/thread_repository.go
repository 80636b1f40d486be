// Package repository defines the persistence contracts for the thread
// registry and the budget ledger. Implementations live under
// internal/infrastructure/persistence.
package repository

import (
	"context"
	"errors"

	"github.com/weftworks/weft/internal/domain/model/thread"
)

// ErrThreadNotFound is returned when no registry row exists for an id.
var ErrThreadNotFound = errors.New("thread not found")

// ThreadRepository is the durable registry of thread records. It is the
// single source of truth consulted by orphan detection, budget release,
// and resume.
type ThreadRepository interface {
	// Register inserts a new thread record.
	Register(ctx context.Context, t *thread.Thread) error

	// Save persists the thread's current state (status, cost, result,
	// escalation) over the existing row.
	Save(ctx context.Context, t *thread.Thread) error

	// UpdateStatus moves a thread between statuses, enforcing the
	// lifecycle rules against the stored row.
	UpdateStatus(ctx context.Context, id string, status thread.Status, reason thread.SuspendReason) error

	// Get loads one thread by id.
	Get(ctx context.Context, id string) (*thread.Thread, error)

	// ListActive returns every thread in a non-terminal status.
	ListActive(ctx context.Context) ([]*thread.Thread, error)

	// ListChildren returns the direct children of a thread.
	ListChildren(ctx context.Context, parentID string) ([]*thread.Thread, error)

	// SetResult finalizes cost and result text for a thread.
	SetResult(ctx context.Context, id string, cost thread.Cost, result, errorText string) error
}
