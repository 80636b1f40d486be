// Package budget defines the hierarchical spend ledger value objects.
// Accounting rules live here; storage lives in the repository layer.
package budget

import (
	"errors"
	"time"
)

// ErrInsufficientBudget is returned when a reservation exceeds the
// parent's remaining allocation. The thread must not start.
var ErrInsufficientBudget = errors.New("insufficient budget")

// ErrNoSpendLimit is returned when a child spawn resolves no spend
// limit. There is no implicit default allocation.
var ErrNoSpendLimit = errors.New("child directive declares no spend limit")

// Entry is one ledger row. Invariant: ActualSpend <= ReservedSpend,
// enforced by clamping on report.
type Entry struct {
	ThreadID      string
	ParentID      string
	ReservedSpend float64
	ActualSpend   float64
	MaxSpend      *float64 // nil = unlimited (root without a bound)
	Status        string   // mirrors thread status for liveness filtering
	UpdatedAt     time.Time
}

// Remaining computes how much of the entry's allocation is still
// grantable given its children. activeReserved sums reserved_spend over
// children in non-terminal statuses; finishedActual sums actual_spend
// over terminal children.
func (e Entry) Remaining(activeReserved, finishedActual float64) float64 {
	if e.MaxSpend == nil {
		return 0
	}
	return *e.MaxSpend - e.ActualSpend - activeReserved - finishedActual
}

// Unlimited reports whether the entry has no spend bound.
func (e Entry) Unlimited() bool {
	return e.MaxSpend == nil
}

// ClampActual applies the over-report rule: an actual spend above the
// reservation is recorded as the reservation, never more.
func (e Entry) ClampActual(spend float64) float64 {
	if spend < 0 {
		return 0
	}
	if spend > e.ReservedSpend {
		return e.ReservedSpend
	}
	return spend
}
