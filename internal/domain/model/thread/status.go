package thread

import "fmt"

// Status represents the lifecycle state of a thread
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// SuspendReason explains why a thread entered the suspended state
type SuspendReason string

const (
	SuspendReasonLimit    SuspendReason = "limit"
	SuspendReasonError    SuspendReason = "error"
	SuspendReasonBudget   SuspendReason = "budget"
	SuspendReasonApproval SuspendReason = "approval"
)

// IsValid checks if the status is a known value
func (s Status) IsValid() bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusError, StatusSuspended, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
// Suspended is NOT terminal; a suspended thread can be resumed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// SatisfiesWait reports whether a waiter blocked on this thread unblocks.
// Suspended satisfies a wait even though it is not terminal: the thread
// makes no further progress without outside intervention.
func (s Status) SatisfiesWait() bool {
	return s.IsTerminal() || s == StatusSuspended
}

// CanTransitionTo validates a status transition.
// Transitions are one-way except suspended to running (resume) and
// suspended to error/cancelled (escalation resolution).
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusRunning:
		return next == StatusCompleted || next == StatusError ||
			next == StatusSuspended || next == StatusCancelled
	case StatusSuspended:
		return next == StatusRunning || next == StatusError || next == StatusCancelled
	}
	return false
}

// ParseStatus converts a string to a Status
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid thread status: %s", s)
	}
	return status, nil
}

// ParseSuspendReason converts a string to a SuspendReason
func ParseSuspendReason(s string) (SuspendReason, error) {
	switch reason := SuspendReason(s); reason {
	case SuspendReasonLimit, SuspendReasonError, SuspendReasonBudget, SuspendReasonApproval:
		return reason, nil
	}
	return "", fmt.Errorf("invalid suspend reason: %s", s)
}
