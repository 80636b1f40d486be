package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/weftworks/weft/internal/application/port/output"
)

// PoisonStore implements cooperative cancellation via a marker file
// beside the thread's durable record. Runners check it at turn
// boundaries only; writing it never interrupts an in-flight call.
type PoisonStore struct {
	fs      afero.Fs
	baseDir string
}

// NewPoisonStore creates a poison marker store rooted at baseDir.
func NewPoisonStore(fs afero.Fs, baseDir string) *PoisonStore {
	return &PoisonStore{fs: fs, baseDir: baseDir}
}

func (s *PoisonStore) path(threadID string) string {
	return filepath.Join(s.baseDir, threadID, "poison.json")
}

// Request writes the poison marker for a thread.
func (s *PoisonStore) Request(threadID, reason string, now time.Time) error {
	req := output.CancelRequest{RequestedAt: now.UTC(), Reason: reason}
	if err := WriteJSONAtomic(s.fs, s.path(threadID), req); err != nil {
		return fmt.Errorf("write poison marker for %s: %w", threadID, err)
	}
	return nil
}

// Check returns the pending request, nil if none.
func (s *PoisonStore) Check(threadID string) (*output.CancelRequest, error) {
	data, err := afero.ReadFile(s.fs, s.path(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read poison marker for %s: %w", threadID, err)
	}
	req := &output.CancelRequest{}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("parse poison marker for %s: %w", threadID, err)
	}
	return req, nil
}

// Clear removes the marker after the cancellation is honored.
func (s *PoisonStore) Clear(threadID string) error {
	err := s.fs.Remove(s.path(threadID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear poison marker for %s: %w", threadID, err)
	}
	return nil
}
