package retune

import (
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/phasic/buffer/expreplay"
)

const (
	slots = 3
	envs  = 2
	steps = 4
)

func stackedConfig(skips, retunes int) Config {
	return Config{
		Buffer: expreplay.Config{
			Layout:   expreplay.Stacked,
			Slots:    slots,
			Envs:     envs,
			Steps:    steps,
			ObsShape: []int{2},
		},
		Skips:      skips,
		NumRetunes: retunes,
		Seed:       3,
	}
}

// rolloutBatch returns a batch whose observations encode the batch
// number so that stored slots can be identified
func rolloutBatch(id int) ([]uint8, []bool, []float32) {
	n := envs * steps
	obs := make([]uint8, n*2)
	for i := range obs {
		obs[i] = uint8(id)
	}
	rews := make([]float32, n)
	for i := range rews {
		rews[i] = float32(id)
	}
	return obs, make([]bool, n), rews
}

func targets(buffer *expreplay.Buffer, actions int) (pi, ret *tensor.Dense) {
	shape := buffer.Shape()
	n := buffer.Capacity()

	piData := make([]float32, n*actions)
	for i := range piData {
		piData[i] = float32(i / actions)
	}
	retData := make([]float32, n)
	for i := range retData {
		retData[i] = float32(i)
	}

	pi = tensor.New(tensor.WithShape(append(shape, actions)...),
		tensor.WithBacking(piData))
	ret = tensor.New(tensor.WithShape(shape...), tensor.WithBacking(retData))
	return pi, ret
}

func TestSkipsRoundedToSlots(t *testing.T) {
	s, err := New(stackedConfig(4, 1), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 6, s.State().SkipsRemaining)

	for i := 0; i < 6; i++ {
		assert.False(t, s.Update(rolloutBatch(i)))
		assert.Equal(t, 0, s.Buffer().Occupancy())
	}

	assert.False(t, s.Update(rolloutBatch(6)))
	assert.Equal(t, envs*steps, s.Buffer().Occupancy())
	assert.Equal(t, uint8(6), s.Buffer().Observation(0)[0])
}

func TestFillCycle(t *testing.T) {
	s, err := New(stackedConfig(0, 2), zerolog.Nop())
	require.NoError(t, err)

	assert.False(t, s.Update(rolloutBatch(1)))
	assert.False(t, s.Update(rolloutBatch(2)))
	assert.Equal(t, Filling, s.Phase())
	assert.True(t, s.Update(rolloutBatch(3)))
	assert.Equal(t, Ready, s.Phase())
	assert.Equal(t, slots, s.State().SlotsFilled)

	// A full buffer ignores further batches
	assert.False(t, s.Update(rolloutBatch(4)))
	assert.Equal(t, uint8(3), s.Buffer().Observation(2*envs*steps)[0])

	pi, ret := targets(s.Buffer(), 2)
	_, err = s.MakeMinibatches(pi, ret, 1)
	require.NoError(t, err)
	assert.Equal(t, Distilling, s.Phase())

	require.NoError(t, s.RetuneDone())
	assert.Equal(t, 0, s.Buffer().Occupancy())
	assert.Equal(t, 1, s.State().RetunesCompleted)
	assert.Equal(t, Filling, s.Phase())

	assert.True(t, IsNotReady(s.RetuneDone()))
	_, err = s.MakeMinibatches(pi, ret, 1)
	assert.True(t, IsNotReady(err))
}

// Random call sequences never overflow the buffer, trigger exactly
// once per fill, and stop triggering once all retunes are done
func TestSelectorInvariants(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		retunes := 1 + rng.Intn(3)
		s, err := New(stackedConfig(rng.Intn(5), retunes), zerolog.Nop())
		require.NoError(t, err)

		triggers := 0
		for call := 0; call < 200; call++ {
			before := s.State().RetunesCompleted
			triggered := s.Update(rolloutBatch(call))
			assert.LessOrEqual(t, s.Buffer().Occupancy(), s.Buffer().Capacity())

			if before >= retunes {
				assert.False(t, triggered, "seed %d call %d", seed, call)
			}
			if !triggered {
				continue
			}
			triggers++
			assert.True(t, s.Buffer().Full())

			// Further updates while ready never trigger again
			assert.False(t, s.Update(rolloutBatch(call)))

			// Distill for a random number of epochs, possibly none
			pi, ret := targets(s.Buffer(), 3)
			for e := rng.Intn(3); e > 0; e-- {
				mb, err := s.MakeMinibatches(pi, ret, 2)
				require.NoError(t, err)
				for mb.Next() {
				}
			}

			require.NoError(t, s.RetuneDone())
			assert.Equal(t, 0, s.Buffer().Occupancy())
			assert.Equal(t, before+1, s.State().RetunesCompleted)
		}

		assert.Equal(t, retunes, triggers, "seed %d", seed)
		assert.True(t, s.Disabled())
	}
}

func TestNoRetunes(t *testing.T) {
	s, err := New(stackedConfig(0, 0), zerolog.Nop())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		assert.False(t, s.Update(rolloutBatch(i)))
	}
	assert.Equal(t, 0, s.Buffer().Occupancy())
}

func TestStackedMinibatches(t *testing.T) {
	s, err := New(stackedConfig(0, 1), zerolog.Nop())
	require.NoError(t, err)
	for i := 0; i < slots; i++ {
		s.Update(rolloutBatch(i))
	}

	pi, ret := targets(s.Buffer(), 2)
	mb, err := s.MakeMinibatches(pi, ret, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, mb.Len())

	var seen []int
	sizes := []int{}
	for mb.Next() {
		batch := mb.Batch()
		sizes = append(sizes, batch.Len())

		// Each lane segment is a run of consecutive steps
		for i := 0; i < batch.Len(); i += steps {
			assert.Equal(t, 0, batch.Indices[i]%steps)
			for j := 1; j < steps; j++ {
				assert.Equal(t, batch.Indices[i]+j, batch.Indices[i+j])
			}
		}

		for i, idx := range batch.Indices {
			assert.Equal(t, float32(idx), batch.Returns[i])
			assert.Equal(t, []float32{float32(idx), float32(idx)},
				batch.PiTargets[2*i:2*i+2])
			assert.Equal(t, s.Buffer().Observation(idx), batch.Obs[2*i:2*i+2])
		}
		seen = append(seen, batch.Indices...)
	}
	assert.False(t, mb.Next())
	assert.Equal(t, []int{4 * steps, 2 * steps}, sizes)

	sort.Ints(seen)
	want := make([]int, s.Buffer().Capacity())
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, seen)
}

func TestFreshPermutationPerCall(t *testing.T) {
	c := Config{
		Buffer: expreplay.Config{
			Layout:   expreplay.Flat,
			Capacity: 64,
			ObsShape: []int{1},
		},
		NumRetunes: 1,
		Seed:       11,
	}
	s, err := New(c, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, s.Update(make([]uint8, 64), make([]bool, 64),
		make([]float32, 64)))

	pi, ret := targets(s.Buffer(), 1)
	orders := make([][]int, 3)
	for i := range orders {
		mb, err := s.MakeMinibatches(pi, ret, 10)
		require.NoError(t, err)
		for mb.Next() {
			assert.LessOrEqual(t, mb.Batch().Len(), 10)
			orders[i] = append(orders[i], mb.Batch().Indices...)
		}
		assert.Len(t, orders[i], 64)
	}
	assert.False(t, assert.ObjectsAreEqual(orders[0], orders[1]) &&
		assert.ObjectsAreEqual(orders[1], orders[2]))
}

func TestMinibatchTargetShapes(t *testing.T) {
	s, err := New(stackedConfig(0, 1), zerolog.Nop())
	require.NoError(t, err)
	for i := 0; i < slots; i++ {
		s.Update(rolloutBatch(i))
	}

	pi, _ := targets(s.Buffer(), 2)
	badRet := tensor.New(tensor.WithShape(slots, envs),
		tensor.WithBacking(make([]float32, slots*envs)))
	_, err = s.MakeMinibatches(pi, badRet, 1)
	assert.Error(t, err)
	assert.Equal(t, Ready, s.Phase())
}

func TestRestore(t *testing.T) {
	s, err := New(stackedConfig(0, 2), zerolog.Nop())
	require.NoError(t, err)
	for i := 0; i < slots; i++ {
		s.Update(rolloutBatch(i))
	}
	state := s.State()

	restored, err := New(stackedConfig(0, 2), zerolog.Nop())
	require.NoError(t, err)
	clone := s.Buffer().Clone()
	require.NoError(t, restored.Buffer().Load(clone.Observations(),
		clone.Dones(), clone.Rewards(), clone.Occupancy()))
	require.NoError(t, restored.Restore(state))
	assert.Equal(t, Ready, restored.Phase())
	assert.Equal(t, slots, restored.State().SlotsFilled)

	// Without a buffer only the counters survive
	state.RetunesCompleted = 1
	empty, err := New(stackedConfig(0, 2), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, empty.Restore(state))
	assert.Equal(t, Filling, empty.Phase())
	assert.Equal(t, 1, empty.State().RetunesCompleted)
	assert.Equal(t, 0, empty.State().SlotsFilled)
}
