package file

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/weftworks/weft/internal/application/port/output"
)

// metaEnvelope wraps the canonical record bytes with their signature.
// The payload is signed as an atomic unit and stored base64-encoded so
// the bytes on disk are exactly the bytes that were signed, whatever
// formatting the envelope writer applies.
type metaEnvelope struct {
	Payload []byte `json:"payload"`
	Sig     string `json:"sig"`
	FP      string `json:"fp"`
}

// MetaStore persists signed thread metadata records under
// <baseDir>/<thread_id>/thread.json.
type MetaStore struct {
	fs      afero.Fs
	baseDir string
	signer  output.Signer
}

// NewMetaStore creates a metadata store rooted at baseDir.
func NewMetaStore(fs afero.Fs, baseDir string, signer output.Signer) *MetaStore {
	return &MetaStore{fs: fs, baseDir: baseDir, signer: signer}
}

func (s *MetaStore) path(threadID string) string {
	return filepath.Join(s.baseDir, threadID, "thread.json")
}

// Save writes and signs the record atomically.
func (s *MetaStore) Save(record *output.MetaRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal meta record %s: %w", record.ThreadID, err)
	}
	sig, err := s.signer.Sign(s.signer.Hash(payload))
	if err != nil {
		return fmt.Errorf("sign meta record %s: %w", record.ThreadID, err)
	}
	env := metaEnvelope{Payload: payload, Sig: sig, FP: s.signer.Fingerprint()}
	return WriteJSONAtomic(s.fs, s.path(record.ThreadID), env)
}

// Load reads and verifies the record.
func (s *MetaStore) Load(threadID string) (*output.MetaRecord, error) {
	data, err := afero.ReadFile(s.fs, s.path(threadID))
	if err != nil {
		return nil, fmt.Errorf("read meta record %s: %w", threadID, err)
	}
	var env metaEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse meta record %s: %w", threadID, err)
	}
	if !s.signer.Verify(s.signer.Hash(env.Payload), env.Sig, env.FP) {
		return nil, fmt.Errorf("%w: meta record %s failed verification", output.ErrIntegrity, threadID)
	}
	record := &output.MetaRecord{}
	if err := json.Unmarshal(env.Payload, record); err != nil {
		return nil, fmt.Errorf("parse meta payload %s: %w", threadID, err)
	}
	return record, nil
}

// Exists reports whether a durable record is present, unverified.
func (s *MetaStore) Exists(threadID string) bool {
	ok, err := afero.Exists(s.fs, s.path(threadID))
	return err == nil && ok
}
