package experiment

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/phasic/experiment/checkpointer"
	"github.com/samuelfneumann/phasic/experiment/trackers"
)

func testConfig(t *testing.T) Config {
	c, err := DefaultConfig(2, 8, 4)
	require.NoError(t, err)
	c.EnvConf.Length = 4
	c.EnvConf.EpisodeSteps = 6
	c.AgentConf.NPi = 2
	c.AgentConf.NumRetunes = 1
	c.AgentConf.MaxTime = 0
	return c
}

func TestOnlineRun(t *testing.T) {
	c := testConfig(t)
	e, err := c.CreateExp(zerolog.Nop())
	require.NoError(t, err)

	store, err := checkpointer.NewFileStore(t.TempDir(), ".bin",
		checkpointer.FilenameEnumerator(0, "ckpt"))
	require.NoError(t, err)
	cp, err := checkpointer.NewNStep(2, e.Policy(), store, zerolog.Nop())
	require.NoError(t, err)
	e.Register(cp)

	ctx := context.Background()
	require.NoError(t, e.Run(ctx))
	assert.Equal(t, 4, e.Batch())
	assert.Equal(t, 4*2*8, e.Policy().Timesteps())
	assert.Equal(t, 1, e.Policy().Selector().State().RetunesCompleted)

	// Random walks of at most 6 steps always end within a batch
	assert.Greater(t, e.Episodes().Len(), 0)
	filename := filepath.Join(t.TempDir(), "episodes.bin")
	require.NoError(t, e.Save(filename))
	episodes, err := trackers.LoadEpisodes(filename)
	require.NoError(t, err)
	assert.Equal(t, e.Episodes(), episodes)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// A new experiment resumes from the latest checkpoint
	state, err := store.Latest(ctx)
	require.NoError(t, err)
	resumed, err := c.CreateExp(zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, resumed.Restore(state))
	assert.Equal(t, 4, resumed.Batch())
	assert.Equal(t, e.Policy().State().Gamma, resumed.Policy().State().Gamma)
	require.NoError(t, resumed.Run(ctx))
	assert.Equal(t, 4, resumed.Batch())
}

func TestOnlineCancelled(t *testing.T) {
	e, err := testConfig(t).CreateExp(zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Run(ctx), context.Canceled)
	assert.Equal(t, 0, e.Batch())
}

func TestConfigJSON(t *testing.T) {
	c := testConfig(t)
	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, c.AgentConf, decoded.AgentConf)
	assert.Equal(t, c.EnvConf, decoded.EnvConf)
	assert.Equal(t, c.Solver.Config, decoded.Solver.Config)

	decoded.Type = "OfflineExperiment"
	_, err = decoded.CreateExp(zerolog.Nop())
	assert.Error(t, err)
}
