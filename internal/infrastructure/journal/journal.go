// Package journal implements the per-thread append-only execution log
// with signed checkpoints. A checkpoint is a regular log entry whose
// hash covers every byte written before its own line, so the final
// checkpoint covers the entire log except itself.
package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/weftworks/weft/internal/application/port/output"
)

const journalFile = "journal.ndjson"

// FileJournal stores one NDJSON log per thread under
// <baseDir>/<thread_id>/journal.ndjson.
type FileJournal struct {
	fs      afero.Fs
	baseDir string
	signer  output.Signer

	mu sync.Mutex // serializes appends across goroutines
}

// NewFileJournal creates a journal rooted at baseDir.
func NewFileJournal(fs afero.Fs, baseDir string, signer output.Signer) *FileJournal {
	return &FileJournal{fs: fs, baseDir: baseDir, signer: signer}
}

func (j *FileJournal) path(threadID string) string {
	return filepath.Join(j.baseDir, threadID, journalFile)
}

// Append writes one event and fsyncs.
func (j *FileJournal) Append(threadID string, event output.JournalEvent) error {
	if event.TS == "" {
		event.TS = time.Now().UTC().Format(time.RFC3339Nano)
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal journal event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.appendLine(threadID, append(line, '\n'))
}

func (j *FileJournal) appendLine(threadID string, line []byte) error {
	path := j.path(threadID)
	if err := j.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}
	f, err := j.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append journal %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync journal %s: %w", path, err)
	}
	return nil
}

// Checkpoint appends a signed checkpoint covering every byte written
// before it.
func (j *FileJournal) Checkpoint(threadID string, turn int) (*output.CheckpointInfo, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	prior, err := afero.ReadFile(j.fs, j.path(threadID))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read journal for checkpoint: %w", err)
	}

	digest := j.signer.Hash(prior)
	sig, err := j.signer.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("sign checkpoint: %w", err)
	}

	info := &output.CheckpointInfo{
		Turn:       turn,
		ByteOffset: int64(len(prior)),
		Hash:       digest,
		Sig:        sig,
		FP:         j.signer.Fingerprint(),
		TS:         time.Now().UTC().Format(time.RFC3339Nano),
	}

	event := output.JournalEvent{
		Type: output.EventCheckpoint,
		Turn: turn,
		TS:   info.TS,
		Payload: map[string]interface{}{
			"turn":        info.Turn,
			"byte_offset": info.ByteOffset,
			"hash":        info.Hash,
			"sig":         info.Sig,
			"fp":          info.FP,
			"ts":          info.TS,
		},
	}
	line, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := j.appendLine(threadID, append(line, '\n')); err != nil {
		return nil, err
	}
	return info, nil
}

// Verify re-checks every checkpoint in order. lenient tolerates
// unsigned trailing content after the last checkpoint, which is normal
// for a log still being written.
func (j *FileJournal) Verify(threadID string, lenient bool) error {
	data, err := afero.ReadFile(j.fs, j.path(threadID))
	if err != nil {
		return fmt.Errorf("read journal %s: %w", threadID, err)
	}

	var offset int64
	var lastCheckpointEnd int64 = -1
	checkpoints := 0

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		lineLen := int64(len(line)) + 1 // newline

		var event output.JournalEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return fmt.Errorf("%w: journal %s has a malformed line at offset %d", output.ErrIntegrity, threadID, offset)
		}
		if event.Type == output.EventCheckpoint {
			info, err := checkpointFromPayload(event.Payload)
			if err != nil {
				return fmt.Errorf("%w: journal %s checkpoint at offset %d: %v", output.ErrIntegrity, threadID, offset, err)
			}
			if info.ByteOffset != offset {
				return fmt.Errorf("%w: checkpoint at turn %d records offset %d but sits at %d",
					output.ErrIntegrity, info.Turn, info.ByteOffset, offset)
			}
			digest := j.signer.Hash(data[:offset])
			if digest != info.Hash {
				return fmt.Errorf("%w: content hash mismatch at checkpoint turn %d", output.ErrIntegrity, info.Turn)
			}
			if !j.signer.Verify(digest, info.Sig, info.FP) {
				return fmt.Errorf("%w: signature mismatch at checkpoint turn %d", output.ErrIntegrity, info.Turn)
			}
			checkpoints++
			lastCheckpointEnd = offset + lineLen
		}
		offset += lineLen
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan journal %s: %w", threadID, err)
	}

	if checkpoints == 0 {
		return fmt.Errorf("%w: journal %s has no checkpoints", output.ErrIntegrity, threadID)
	}
	if !lenient && lastCheckpointEnd < int64(len(data)) {
		return fmt.Errorf("%w: journal %s has unsigned content after the last checkpoint", output.ErrIntegrity, threadID)
	}
	return nil
}

// Snapshot returns the log's full contents for archival.
func (j *FileJournal) Snapshot(threadID string) ([]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	data, err := afero.ReadFile(j.fs, j.path(threadID))
	if err != nil {
		return nil, fmt.Errorf("read journal %s: %w", threadID, err)
	}
	return data, nil
}

// LastModified reports the log's last write time, zero when absent.
func (j *FileJournal) LastModified(threadID string) (time.Time, error) {
	fi, err := j.fs.Stat(j.path(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("stat journal %s: %w", threadID, err)
	}
	return fi.ModTime(), nil
}

func checkpointFromPayload(payload map[string]interface{}) (*output.CheckpointInfo, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	info := &output.CheckpointInfo{}
	if err := json.Unmarshal(data, info); err != nil {
		return nil, err
	}
	if info.Hash == "" || info.Sig == "" || info.FP == "" {
		return nil, fmt.Errorf("incomplete checkpoint payload")
	}
	return info, nil
}
