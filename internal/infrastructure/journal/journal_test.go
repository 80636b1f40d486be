package journal

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/application/port/output"
	"github.com/weftworks/weft/internal/infrastructure/gateway/signing"
)

func newTestJournal(t *testing.T) (*FileJournal, afero.Fs) {
	t.Helper()
	signer, err := signing.NewEphemeralSigner()
	require.NoError(t, err)
	fs := afero.NewMemMapFs()
	return NewFileJournal(fs, "/threads", signer), fs
}

func appendEvents(t *testing.T, j *FileJournal, id string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, j.Append(id, output.JournalEvent{
			Type: output.EventCognitionOut,
			Turn: i,
			Payload: map[string]interface{}{
				"text": "model output",
			},
		}))
	}
}

func TestCheckpointAndVerify(t *testing.T) {
	j, _ := newTestJournal(t)

	appendEvents(t, j, "t1", 3)
	cp1, err := j.Checkpoint("t1", 0)
	require.NoError(t, err)
	assert.Positive(t, cp1.ByteOffset)

	appendEvents(t, j, "t1", 2)
	cp2, err := j.Checkpoint("t1", 1)
	require.NoError(t, err)
	assert.Greater(t, cp2.ByteOffset, cp1.ByteOffset)

	// verification is idempotent
	require.NoError(t, j.Verify("t1", false))
	require.NoError(t, j.Verify("t1", false))
}

func TestVerifyDetectsSingleByteFlip(t *testing.T) {
	j, fs := newTestJournal(t)

	appendEvents(t, j, "t1", 3)
	_, err := j.Checkpoint("t1", 0)
	require.NoError(t, err)

	path := "/threads/t1/journal.ndjson"
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)

	// flip one byte inside the first event, well before the checkpoint
	data[10] ^= 0x01
	require.NoError(t, afero.WriteFile(fs, path, data, 0o644))

	err = j.Verify("t1", false)
	assert.ErrorIs(t, err, output.ErrIntegrity)
}

func TestVerifyLenientToleratesTrailingContent(t *testing.T) {
	j, _ := newTestJournal(t)

	appendEvents(t, j, "t1", 2)
	_, err := j.Checkpoint("t1", 0)
	require.NoError(t, err)
	appendEvents(t, j, "t1", 1) // unsigned tail

	assert.ErrorIs(t, j.Verify("t1", false), output.ErrIntegrity)
	assert.NoError(t, j.Verify("t1", true))
}

func TestVerifyRequiresCheckpoints(t *testing.T) {
	j, _ := newTestJournal(t)
	appendEvents(t, j, "t1", 2)
	assert.ErrorIs(t, j.Verify("t1", false), output.ErrIntegrity)
}

func TestLastModified(t *testing.T) {
	j, _ := newTestJournal(t)

	ts, err := j.LastModified("absent")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	appendEvents(t, j, "t1", 1)
	ts, err = j.LastModified("t1")
	require.NoError(t, err)
	assert.False(t, ts.IsZero())
}
