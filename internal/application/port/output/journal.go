package output

import "time"

// Journal event types. The execution log is append-only NDJSON; a
// checkpoint is just another entry type, never a separate file.
const (
	EventThreadStarted   = "thread_started"
	EventCognitionIn     = "cognition_in"
	EventCognitionOut    = "cognition_out"
	EventToolCallStart   = "tool_call_start"
	EventToolCallResult  = "tool_call_result"
	EventContextInjected = "context_injected"
	EventThreadCompleted = "thread_completed"
	EventThreadError     = "thread_error"
	EventThreadCancelled = "thread_cancelled"
	EventThreadSuspended = "thread_suspended"
	EventCheckpoint      = "checkpoint"
)

// JournalEvent is one execution-log entry.
type JournalEvent struct {
	Type    string                 `json:"type"`
	Turn    int                    `json:"turn"`
	TS      string                 `json:"ts"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// CheckpointInfo describes one signed turn boundary in the log.
type CheckpointInfo struct {
	Turn       int    `json:"turn"`
	ByteOffset int64  `json:"byte_offset"`
	Hash       string `json:"hash"`
	Sig        string `json:"sig"`
	FP         string `json:"fp"`
	TS         string `json:"ts"`
}

// Journal is the per-thread append-only execution log with signed
// checkpoints at turn boundaries.
type Journal interface {
	// Append writes one event and fsyncs.
	Append(threadID string, event JournalEvent) error

	// Checkpoint appends a signed checkpoint covering every byte
	// written before it.
	Checkpoint(threadID string, turn int) (*CheckpointInfo, error)

	// Verify re-checks every checkpoint in order. lenient tolerates
	// unsigned trailing content after the last checkpoint.
	Verify(threadID string, lenient bool) error

	// Snapshot returns the log's full contents for archival.
	Snapshot(threadID string) ([]byte, error)

	// LastModified reports the log's last write time for staleness
	// detection. Returns the zero time when no log exists.
	LastModified(threadID string) (time.Time, error)
}
