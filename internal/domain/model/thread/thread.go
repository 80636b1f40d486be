// Package thread holds the thread execution unit entity and its
// lifecycle rules. A thread wraps one run of a directive with its own
// limits, cost accounting, and capability set.
package thread

import (
	"errors"
	"fmt"
	"time"
)

// ErrThreadImmutable is returned for any mutation attempt on a thread
// that has reached a terminal status.
var ErrThreadImmutable = errors.New("thread is terminal and immutable")

// Thread is one execution unit. The record is exclusively owned by its
// runner while running; the registry holds the durable mirror.
type Thread struct {
	id            string
	directive     string
	parentID      string
	status        Status
	suspendReason SuspendReason
	limits        Limits
	cost          Cost
	capabilities  []string
	result        string
	errorText     string
	escalation    *Escalation
	createdAt     time.Time
	updatedAt     time.Time
}

// NewThread creates a thread in the running state.
func NewThread(id, directive, parentID string, limits Limits, capabilities []string, now time.Time) *Thread {
	caps := make([]string, len(capabilities))
	copy(caps, capabilities)
	return &Thread{
		id:           id,
		directive:    directive,
		parentID:     parentID,
		status:       StatusRunning,
		limits:       limits.Clone(),
		capabilities: caps,
		createdAt:    now.UTC(),
		updatedAt:    now.UTC(),
	}
}

// ReconstructThread rebuilds a thread from persisted state without
// validation. Used by repositories only.
func ReconstructThread(
	id, directive, parentID string,
	status Status,
	suspendReason SuspendReason,
	limits Limits,
	cost Cost,
	capabilities []string,
	result, errorText string,
	escalation *Escalation,
	createdAt, updatedAt time.Time,
) *Thread {
	return &Thread{
		id:            id,
		directive:     directive,
		parentID:      parentID,
		status:        status,
		suspendReason: suspendReason,
		limits:        limits,
		cost:          cost,
		capabilities:  capabilities,
		result:        result,
		errorText:     errorText,
		escalation:    escalation,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

func (t *Thread) ID() string                   { return t.id }
func (t *Thread) Directive() string            { return t.directive }
func (t *Thread) ParentID() string             { return t.parentID }
func (t *Thread) Status() Status               { return t.status }
func (t *Thread) SuspendReason() SuspendReason { return t.suspendReason }
func (t *Thread) Limits() Limits               { return t.limits.Clone() }
func (t *Thread) Cost() Cost                   { return t.cost }
func (t *Thread) Result() string               { return t.result }
func (t *Thread) ErrorText() string            { return t.errorText }
func (t *Thread) CreatedAt() time.Time         { return t.createdAt }
func (t *Thread) UpdatedAt() time.Time         { return t.updatedAt }

// Capabilities returns a copy of the declared permission patterns.
func (t *Thread) Capabilities() []string {
	out := make([]string, len(t.capabilities))
	copy(out, t.capabilities)
	return out
}

// Escalation returns the pending escalation record, nil unless suspended
// on an unhandled limit.
func (t *Thread) Escalation() *Escalation {
	if t.escalation == nil {
		return nil
	}
	e := *t.escalation
	return &e
}

// TransitionTo moves the thread to the next status, enforcing the
// lifecycle state machine. reason is only meaningful for suspended.
func (t *Thread) TransitionTo(next Status, reason SuspendReason, now time.Time) error {
	if t.status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrThreadImmutable, t.id, t.status)
	}
	if !t.status.CanTransitionTo(next) {
		return fmt.Errorf("invalid transition %s to %s for thread %s", t.status, next, t.id)
	}
	t.status = next
	if next == StatusSuspended {
		t.suspendReason = reason
	} else {
		t.suspendReason = ""
	}
	t.updatedAt = now.UTC()
	return nil
}

// Suspend transitions to suspended and attaches an escalation record.
func (t *Thread) Suspend(reason SuspendReason, escalation *Escalation, now time.Time) error {
	if err := t.TransitionTo(StatusSuspended, reason, now); err != nil {
		return err
	}
	t.escalation = escalation
	return nil
}

// Resume transitions a suspended thread back to running, applying any
// approved limit increases and clearing the escalation record.
func (t *Thread) Resume(newLimits *Limits, now time.Time) error {
	if t.status != StatusSuspended {
		return fmt.Errorf("cannot resume thread %s in status %s", t.id, t.status)
	}
	if err := t.TransitionTo(StatusRunning, "", now); err != nil {
		return err
	}
	if newLimits != nil {
		t.limits = t.limits.Merge(*newLimits)
	}
	t.escalation = nil
	return nil
}

// ReportCost replaces the running cost totals.
func (t *Thread) ReportCost(cost Cost, now time.Time) error {
	if t.status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrThreadImmutable, t.id, t.status)
	}
	t.cost = cost
	t.updatedAt = now.UTC()
	return nil
}

// RecordSpawn increments the spawn count.
func (t *Thread) RecordSpawn(now time.Time) error {
	if t.status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrThreadImmutable, t.id, t.status)
	}
	t.cost.SpawnCount++
	t.updatedAt = now.UTC()
	return nil
}

// Finalize sets the terminal status together with the final cost and
// result or error text.
func (t *Thread) Finalize(status Status, cost Cost, result, errorText string, now time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finalize requires a terminal status, got %s", status)
	}
	if err := t.TransitionTo(status, "", now); err != nil {
		return err
	}
	t.cost = cost
	t.result = result
	t.errorText = errorText
	t.escalation = nil
	return nil
}
