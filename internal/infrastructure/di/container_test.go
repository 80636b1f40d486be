package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/weftworks/weft/internal/app/config"
	"github.com/weftworks/weft/internal/application/usecase/orchestrate"
	"github.com/weftworks/weft/internal/domain/model/thread"
)

func TestContainerWiresFullSession(t *testing.T) {
	t.Setenv("WEFT_HOME", filepath.Join(t.TempDir(), ".weft"))

	cfg, err := appconfig.Load("")
	require.NoError(t, err)

	c, err := NewContainer(cfg)
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.Orchestrator())
	require.NotNil(t, c.Registry())
	require.NotNil(t, c.Ledger())
	require.NotNil(t, c.Journal())

	// no provider binary configured: the scripted fallback completes
	// immediately, which is enough to prove the wiring end to end
	ctx := context.Background()
	id, err := c.Orchestrator().Spawn(ctx, orchestrate.SpawnRequest{
		Directive:    "smoke",
		Prompt:       "hello",
		Overrides:    thread.Limits{Spend: thread.FloatPtr(1.00)},
		Capabilities: []string{"weft.*"},
	})
	require.NoError(t, err)

	res, err := c.Orchestrator().Wait(ctx, []string{id}, false, false, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, string(thread.StatusCompleted), res.Outcomes[id].Status)

	stored, err := c.Registry().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, thread.StatusCompleted, stored.Status())
	assert.NoError(t, c.Journal().Verify(id, false))
}

func TestContainerRejectsUnknownArchiveBackend(t *testing.T) {
	t.Setenv("WEFT_HOME", filepath.Join(t.TempDir(), ".weft"))

	cfg, err := appconfig.Load("")
	require.NoError(t, err)
	cfg.Archive.Backend = "ftp"

	_, err = NewContainer(cfg)
	assert.Error(t, err)
}
