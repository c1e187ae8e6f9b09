package trackers

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/phasic/network"
)

// model is a WeightHolder with a single scalar weight
type model struct {
	w float64
}

func (m *model) Weights() network.Weights {
	return network.Weights{"w": {m.w}}
}

func (m *model) SetWeights(w network.Weights) error {
	if err := m.Weights().Compatible(w); err != nil {
		return err
	}
	m.w = w["w"][0]
	return nil
}

// frozenModel is a model whose weights cannot be set
type frozenModel struct {
	model
}

func (f *frozenModel) SetWeights(network.Weights) error {
	return fmt.Errorf("weights are frozen")
}

func config() BestModelConfig {
	return BestModelConfig{
		TargetTimesteps: 100,
		MaxTime:         time.Minute,
		SafetyBuffer:    10 * time.Second,
		MinTimesteps:    50,
		WindowSize:      4,
	}
}

func newTracker(t *testing.T, c BestModelConfig, m *model) *BestModel {
	b, err := NewBestModel(c, m, zerolog.Nop())
	require.NoError(t, err)
	return b
}

func TestBestModelSnapshots(t *testing.T) {
	m := &model{w: 1}
	b := newTracker(t, config(), m)

	assert.False(t, b.Observe(nil, 10, 0))
	assert.False(t, b.HasSnapshot())

	assert.False(t, b.Observe([]float64{1, 3}, 10, 0))
	assert.Equal(t, 2.0, b.BestReward())
	assert.Equal(t, 20, b.State().BestTimesteps)

	// Trailing mean of {1, 3, 0} is lower
	m.w = 2
	b.Observe([]float64{0}, 10, 0)
	assert.Equal(t, 2.0, b.BestReward())
	assert.Equal(t, []float64{1}, b.State().BestWeights["w"])

	// A full window of episodes in one batch is scored on its own
	m.w = 3
	b.Observe([]float64{5, 5, 5, 5}, 10, 0)
	assert.Equal(t, 5.0, b.BestReward())
	assert.Equal(t, []float64{3}, b.State().BestWeights["w"])
}

func TestBestModelStopRestores(t *testing.T) {
	m := &model{w: 1}
	b := newTracker(t, config(), m)

	assert.False(t, b.Observe([]float64{10}, 60, 0))
	m.w = 7
	assert.False(t, b.Observe([]float64{0, 0, 0}, 30, 0))
	assert.Equal(t, 7.0, m.w)

	// Past the timestep target
	assert.True(t, b.Observe(nil, 20, 0))
	assert.Equal(t, 1.0, m.w)
	assert.Equal(t, 110, b.Timesteps())
}

func TestBestModelTimeBudget(t *testing.T) {
	m := &model{}
	b := newTracker(t, config(), m)

	assert.False(t, b.Observe([]float64{1}, 60, 45*time.Second))
	assert.False(t, b.Observe(nil, 1, 5*time.Second))
	assert.True(t, b.Observe(nil, 1, 6*time.Second))

	// No time limit
	c := config()
	c.MaxTime = 0
	b = newTracker(t, c, m)
	assert.False(t, b.Observe([]float64{1}, 60, time.Hour))
}

// The best reward never decreases, and no stop is signalled before the
// timestep floor, whatever the budget
func TestBestModelInvariants(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		c := config()
		c.TargetTimesteps = rng.Intn(50)
		c.MaxTime = time.Duration(rng.Intn(10)) * time.Second
		c.MinTimesteps = 20 + rng.Intn(200)

		m := &model{}
		b := newTracker(t, c, m)
		best := math.Inf(-1)
		for call := 0; call < 100; call++ {
			m.w = float64(call)
			rewards := make([]float64, rng.Intn(6))
			for i := range rewards {
				rewards[i] = rng.NormFloat64()
			}

			stop := b.Observe(rewards, rng.Intn(10), time.Second)
			assert.GreaterOrEqual(t, b.BestReward(), best)
			best = b.BestReward()

			if b.Timesteps() <= c.MinTimesteps {
				assert.False(t, stop, "seed %d call %d", seed, call)
			}
			if stop {
				assert.True(t, b.HasSnapshot())
				assert.Equal(t, b.State().BestWeights["w"][0], m.w)
			}
		}
	}
}

func TestBestModelState(t *testing.T) {
	m := &model{w: 4}
	b := newTracker(t, config(), m)
	b.Observe([]float64{1, 2}, 30, time.Second)
	state := b.State()

	restored := newTracker(t, config(), &model{})
	require.NoError(t, restored.SetState(state))
	assert.Equal(t, state, restored.State())

	// State is copied, not aliased
	state.BestWeights["w"][0] = 100
	assert.Equal(t, 4.0, restored.State().BestWeights["w"][0])

	bad := restored.State()
	bad.BestWeights = network.Weights{"v": {1}}
	assert.Error(t, restored.SetState(bad))
	assert.Equal(t, 30, restored.Timesteps())

	fresh := newTracker(t, config(), &model{})
	require.NoError(t, fresh.SetState(fresh.State()))
	assert.False(t, fresh.HasSnapshot())
}

func TestEpisodesSave(t *testing.T) {
	var e Episodes
	e.Track(1.5, 10)
	e.Track(-2, 3)

	filename := filepath.Join(t.TempDir(), "episodes.bin")
	require.NoError(t, e.Save(filename))

	loaded, err := LoadEpisodes(filename)
	require.NoError(t, err)
	assert.Equal(t, &e, loaded)

	_, err = LoadEpisodes(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestBestModelStopsWhenRestoreFails(t *testing.T) {
	m := &frozenModel{model{w: 1}}
	b, err := NewBestModel(config(), m, zerolog.Nop())
	require.NoError(t, err)

	assert.False(t, b.Observe([]float64{10}, 60, 0))
	m.w = 4

	// Every call past the budget signals a stop, even though the
	// snapshot can never be restored
	for i := 0; i < 3; i++ {
		assert.True(t, b.Observe(nil, 50, 0))
	}
	assert.Equal(t, 4.0, m.w)
	assert.Equal(t, []float64{1}, b.State().BestWeights["w"])
}
