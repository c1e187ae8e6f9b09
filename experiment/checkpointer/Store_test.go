package checkpointer

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/phasic/network"
	"github.com/samuelfneumann/phasic/normalize"
	"github.com/samuelfneumann/phasic/retune"
)

func testState(timesteps int) *State {
	return &State{
		TimestepsTotal: timesteps,
		Weights:        network.Weights{"w": {1, 2}},
		BestReward:     math.Inf(-1),
		RewardWindow:   []float64{1, 2, 3},
		Gamma:          0.99,
		LR:             5e-4,
		RewardNormalizer: &normalize.State{
			Returns: []float64{0.5},
			RMS:     normalize.RunningMeanStd{Mean: 1, Var: 2, Count: 3},
		},
		LastDones: []bool{true},
		Retune: &retune.State{
			Phase:            retune.Filling,
			RetunesCompleted: 2,
			NumRetunesTarget: 3,
		},
		ReplayBuffer: &Blob{Strategy: Failed},
	}
}

func TestStateMarshal(t *testing.T) {
	state := testState(10)
	data, err := state.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, state, decoded)

	_, err = Unmarshal([]byte("not a state"))
	assert.Error(t, err)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "checkpoints")
	store, err := NewFileStore(dir, ".bin", FilenameEnumerator(0, "ckpt"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Latest(ctx)
	assert.True(t, IsNotFound(err))

	entry, err := store.Save(ctx, testState(10))
	require.NoError(t, err)
	assert.Equal(t, "ckpt1.bin", entry.ID)
	assert.Equal(t, Failed, entry.Strategy)

	_, err = store.Save(ctx, testState(20))
	require.NoError(t, err)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	state, err := store.Load(ctx, "ckpt1.bin")
	require.NoError(t, err)
	assert.Equal(t, 10, state.TimestepsTotal)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, latest.TimestepsTotal)

	_, err = store.Load(ctx, "ckpt3.bin")
	assert.True(t, IsNotFound(err))
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	store, err := NewSQLiteStore(path, "")
	require.NoError(t, err)
	defer store.Close()
	assert.NotEmpty(t, store.RunID())

	_, err = store.Latest(ctx)
	assert.True(t, IsNotFound(err))

	first, err := store.Save(ctx, testState(10))
	require.NoError(t, err)
	_, err = store.Save(ctx, testState(20))
	require.NoError(t, err)

	state, err := store.Load(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, testState(10), state)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, latest.TimestepsTotal)

	// A second run shares the database but not the checkpoints
	other, err := NewSQLiteStore(path, "other-run")
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Save(ctx, testState(5))
	require.NoError(t, err)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []int{10, 20},
		[]int{entries[0].Timesteps, entries[1].Timesteps})

	_, err = other.Load(ctx, first.ID)
	assert.True(t, IsNotFound(err))

	all, err := other.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, store.Close())
	_, err = store.Save(ctx, testState(30))
	assert.Error(t, err)
}

type counter struct {
	snapshots int
}

func (c *counter) Snapshot() (*State, error) {
	c.snapshots++
	return testState(c.snapshots), nil
}

func (c *counter) Restore(*State) error {
	return nil
}

func TestNStep(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), ".bin", FileTimer("run"))
	require.NoError(t, err)

	object := &counter{}
	c, err := NewNStep(3, object, store, zerolog.Nop())
	require.NoError(t, err)

	saved := 0
	for batch := 1; batch <= 10; batch++ {
		ok, err := c.Checkpoint(ctx, batch)
		require.NoError(t, err)
		if ok {
			saved++
		}
	}
	assert.Equal(t, 3, saved)
	assert.Equal(t, 3, object.snapshots)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	_, err = NewNStep(0, object, store, zerolog.Nop())
	assert.Error(t, err)
}
