package output

import (
	"time"

	"github.com/weftworks/weft/internal/domain/model/thread"
)

// MetaRecord is the signed per-thread metadata file. It is serialized
// canonically and signed as an atomic unit; resume and orphan recovery
// verify it before trusting the contents.
type MetaRecord struct {
	ThreadID      string             `json:"thread_id"`
	Directive     string             `json:"directive"`
	ParentID      string             `json:"parent_id,omitempty"`
	Status        string             `json:"status"`
	SuspendReason string             `json:"suspend_reason,omitempty"`
	Limits        thread.Limits      `json:"limits"`
	Cost          thread.Cost        `json:"cost"`
	Capabilities  []string           `json:"capabilities"`
	Result        string             `json:"result,omitempty"`
	ErrorText     string             `json:"error,omitempty"`
	Escalation    *thread.Escalation `json:"escalation,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// MetaStore persists the signed metadata record per thread.
type MetaStore interface {
	// Save writes and signs the record atomically.
	Save(record *MetaRecord) error

	// Load reads and verifies the record. Returns an error wrapping
	// ErrIntegrity when the signature does not match.
	Load(threadID string) (*MetaRecord, error)

	// Exists reports whether a durable record is present, without
	// verifying it.
	Exists(threadID string) bool
}

// CancelRequest is the poison marker's contents.
type CancelRequest struct {
	RequestedAt time.Time `json:"requested_at"`
	Reason      string    `json:"reason"`
}

// CancelStore is the out-of-band cancellation signal. The runner checks
// it only at turn boundaries, never preemptively.
type CancelStore interface {
	// Request writes the poison marker for a thread.
	Request(threadID, reason string, now time.Time) error

	// Check returns the pending request, nil if none.
	Check(threadID string) (*CancelRequest, error)

	// Clear removes the marker after the cancellation is honored.
	Clear(threadID string) error
}
