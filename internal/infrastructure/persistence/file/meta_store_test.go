package file

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/application/port/output"
	"github.com/weftworks/weft/internal/domain/model/thread"
	"github.com/weftworks/weft/internal/infrastructure/gateway/signing"
)

func newMetaStore(t *testing.T) (*MetaStore, afero.Fs) {
	t.Helper()
	signer, err := signing.NewEphemeralSigner()
	require.NoError(t, err)
	fs := afero.NewMemMapFs()
	return NewMetaStore(fs, "/threads", signer), fs
}

func sampleRecord() *output.MetaRecord {
	return &output.MetaRecord{
		ThreadID:  "job-1",
		Directive: "job",
		Status:    string(thread.StatusSuspended),
		Limits:    thread.Limits{Turns: thread.IntPtr(5)},
		Cost:      thread.Cost{Turns: 5, Spend: 0.42},
		UpdatedAt: time.Now().UTC(),
	}
}

func TestMetaRoundTrip(t *testing.T) {
	store, _ := newMetaStore(t)

	require.NoError(t, store.Save(sampleRecord()))
	assert.True(t, store.Exists("job-1"))

	got, err := store.Load("job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.ThreadID)
	assert.Equal(t, string(thread.StatusSuspended), got.Status)
	require.NotNil(t, got.Limits.Turns)
	assert.Equal(t, 5, *got.Limits.Turns)
}

func TestMetaRewriteAfterLoad(t *testing.T) {
	store, _ := newMetaStore(t)
	require.NoError(t, store.Save(sampleRecord()))

	// resume reads the record, mutates it, and persists it again; the
	// rewritten envelope must verify just like the first
	got, err := store.Load("job-1")
	require.NoError(t, err)
	got.Status = string(thread.StatusRunning)
	require.NoError(t, store.Save(got))

	again, err := store.Load("job-1")
	require.NoError(t, err)
	assert.Equal(t, string(thread.StatusRunning), again.Status)
}

func TestMetaTamperDetected(t *testing.T) {
	store, fs := newMetaStore(t)
	require.NoError(t, store.Save(sampleRecord()))

	path := "/threads/job-1/thread.json"
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)

	// flip one byte inside the signed payload
	idx := len(data) / 2
	data[idx] ^= 0x01
	require.NoError(t, afero.WriteFile(fs, path, data, 0o644))

	_, err = store.Load("job-1")
	assert.Error(t, err)
}

func TestMetaMissing(t *testing.T) {
	store, _ := newMetaStore(t)
	assert.False(t, store.Exists("nope"))
	_, err := store.Load("nope")
	assert.Error(t, err)
}

func TestPoisonLifecycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewPoisonStore(fs, "/threads")

	req, err := store.Check("job-1")
	require.NoError(t, err)
	assert.Nil(t, req, "no marker yet")

	now := time.Now()
	require.NoError(t, store.Request("job-1", "operator abort", now))

	req, err = store.Check("job-1")
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "operator abort", req.Reason)

	require.NoError(t, store.Clear("job-1"))
	require.NoError(t, store.Clear("job-1"), "clear is idempotent")

	req, err = store.Check("job-1")
	require.NoError(t, err)
	assert.Nil(t, req)
}
