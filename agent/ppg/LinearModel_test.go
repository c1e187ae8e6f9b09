package ppg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/phasic/initwfn"
	"github.com/samuelfneumann/phasic/network"
	"github.com/samuelfneumann/phasic/solver"
)

func newLinearModel(t *testing.T, obsSize int) *LinearModel {
	init, err := initwfn.NewZeroes()
	require.NoError(t, err)
	s, err := solver.NewVanilla(0.5, 1, 0)
	require.NoError(t, err)
	critic, err := network.NewLinearCritic(obsSize, init, s)
	require.NoError(t, err)

	m, err := NewLinearModel(critic, actions)
	require.NoError(t, err)
	return m
}

func TestLinearModelPredict(t *testing.T) {
	m := newLinearModel(t, 2)
	values, logits, err := m.Predict([]uint8{0, 255, 255, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, values)
	assert.Len(t, logits, 2*actions)

	_, err = NewLinearModel(m.critic, 0)
	assert.Error(t, err)
}

func TestLinearModelAccumulates(t *testing.T) {
	m := newLinearModel(t, 2)
	batch := PolicyBatch{
		Obs:        []uint8{255, 0, 0, 255},
		Actions:    []int{0, 1},
		Returns:    []float32{1, 1},
		Values:     []float32{0, 0},
		ActionLogp: []float32{float32(m.LogProb()), float32(m.LogProb())},
		Advantages: []float32{1, -1},
		ClipParam:  0.2,
		VFCoef:     0.5,
	}

	losses, err := m.PolicyStep(batch, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, losses.Value, 1e-6)
	assert.Equal(t, network.Weights{network.WeightsName: {0, 0, 0}},
		m.Weights())

	_, err = m.PolicyStep(batch, true)
	require.NoError(t, err)
	assert.NotEqual(t, network.Weights{network.WeightsName: {0, 0, 0}},
		m.Weights())
	assert.Empty(t, m.obs)
	assert.Empty(t, m.targets)

	values, _, err := m.Predict(batch.Obs, 2)
	require.NoError(t, err)
	for _, v := range values {
		assert.Greater(t, v, float32(0))
	}
}

func TestLinearModelAuxStep(t *testing.T) {
	m := newLinearModel(t, 1)
	batch := AuxBatch{
		Obs:       []uint8{0, 255},
		Returns:   []float32{2, 2},
		PiTargets: []float32{0, 0, 0, 0},
	}

	losses, err := m.AuxStep(batch, false)
	require.NoError(t, err)
	assert.InDelta(t, 0, losses.Policy, 1e-12)
	assert.InDelta(t, 2, losses.Aux, 1e-6)

	batch.PiTargets = []float32{5, 0, 0, 5}
	losses, err = m.AuxStep(batch, false)
	require.NoError(t, err)
	assert.Greater(t, losses.Policy, 0.0)

	batch.PiTargets = batch.PiTargets[:3]
	_, err = m.AuxStep(batch, true)
	assert.Error(t, err)
}
