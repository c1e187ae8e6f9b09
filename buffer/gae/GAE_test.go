package gae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

func dense(backing []float32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
}

func TestMonteCarloReduction(t *testing.T) {
	rewards := []float32{1, 2, 3, 4, -1, 0, 2, 5}
	values := []float32{3, -2, 1, 0, 4, 1, 7, 2}
	dones := make([]bool, len(rewards))

	ret, adv, err := Calculate(dense(values, 1, 8), dones,
		dense(rewards, 1, 8), []float32{0}, 1, 1)
	require.NoError(t, err)

	returns := ret.Data().([]float32)
	advantages := adv.Data().([]float32)
	for i := range rewards {
		var sum float32
		for _, r := range rewards[i:] {
			sum += r
		}
		assert.Equal(t, sum, returns[i], "step %d", i)
		assert.Equal(t, sum-values[i], advantages[i], "step %d", i)
	}
}

func TestOneStepReduction(t *testing.T) {
	const gamma = 0.5
	rewards := []float32{1, 0.5, -2, 4, 1, 1,
		0, 2, 0.25, 1, -1, 3}
	values := []float32{0.5, 1.25, 2, -0.75, 1, 0,
		4, 0.5, 1.5, 2.25, -1, 0.75}
	dones := []bool{false, false, true, false, false, false,
		false, true, false, false, true, false}
	bootstrap := []float32{2.5, -0.25}

	_, adv, err := Calculate(dense(values, 2, 6), dones,
		dense(rewards, 2, 6), bootstrap, gamma, 0)
	require.NoError(t, err)
	advantages := adv.Data().([]float32)

	for e := 0; e < 2; e++ {
		for s := 0; s < 6; s++ {
			i := e*6 + s
			next := bootstrap[e]
			if s < 5 {
				next = values[i+1]
			}
			var nonTerminal float32 = 1
			if dones[i] {
				nonTerminal = 0
			}
			want := rewards[i] + gamma*next*nonTerminal - values[i]
			assert.Equal(t, want, advantages[i], "lane %d step %d", e, s)
		}
	}
}

func TestDeterministic(t *testing.T) {
	values := []float32{0.1, 0.7, 0.3, 0.9, 0.2, 0.4}
	rewards := []float32{1.3, -0.2, 0.8, 0.1, 0.0, 2.2}
	dones := []bool{false, true, false, false, false, true}

	ret1, adv1, err := Calculate(dense(values, 2, 3), dones,
		dense(rewards, 2, 3), []float32{0.5, 0.6}, 0.99, 0.95)
	require.NoError(t, err)
	ret2, adv2, err := Calculate(dense(values, 2, 3), dones,
		dense(rewards, 2, 3), []float32{0.5, 0.6}, 0.99, 0.95)
	require.NoError(t, err)

	assert.Equal(t, ret1.Data(), ret2.Data())
	assert.Equal(t, adv1.Data(), adv2.Data())
}

// Eight lanes of 200 steps with constant reward and a single terminal
// step on lane 0 at step 100.
func TestTerminalResetsLane(t *testing.T) {
	const (
		envs   = 8
		steps  = 200
		gamma  = 0.99
		lambda = 0.95
	)

	values := make([]float32, envs*steps)
	rewards := make([]float32, envs*steps)
	dones := make([]bool, envs*steps)
	bootstrap := make([]float32, envs)
	for e := 0; e < envs; e++ {
		for s := 0; s < steps; s++ {
			values[e*steps+s] = 0.01 * float32(s%50)
			rewards[e*steps+s] = 1
		}
		bootstrap[e] = 0.3
	}
	dones[100] = true

	_, adv, err := Calculate(dense(values, envs, steps), dones,
		dense(rewards, envs, steps), bootstrap, gamma, lambda)
	require.NoError(t, err)
	advantages := adv.Data().([]float32)

	// Reference computed in float64, independently of the recurrence
	// helper
	expected := make([]float64, envs*steps)
	for e := 0; e < envs; e++ {
		last := 0.0
		for s := steps - 1; s >= 0; s-- {
			i := e*steps + s
			next := float64(bootstrap[e])
			if s < steps-1 {
				next = float64(values[i+1])
			}
			nonTerminal := 1.0
			if dones[i] {
				nonTerminal = 0
			}
			delta := float64(rewards[i]) + gamma*next*nonTerminal -
				float64(values[i])
			last = delta + gamma*lambda*nonTerminal*last
			expected[i] = last
		}
	}

	for i := range expected {
		assert.InDelta(t, expected[i], float64(advantages[i]), 1e-3,
			"index %d", i)
	}

	// The terminal step only sees its own TD error
	assert.Equal(t, 1-values[100], advantages[100])

	// Lanes without terminals are identical
	for e := 2; e < envs; e++ {
		assert.Equal(t, advantages[steps:2*steps],
			advantages[e*steps:(e+1)*steps])
	}

	// Lane 0 diverges from the other lanes only up to its terminal step
	assert.Equal(t, advantages[101:steps], advantages[steps+101:2*steps])
	assert.NotEqual(t, advantages[100], advantages[steps+100])
}

func TestReplayMatchesFlat(t *testing.T) {
	const slots, envs, steps = 3, 2, 4
	values := make([]float32, slots*envs*steps)
	rewards := make([]float32, slots*envs*steps)
	dones := make([]bool, slots*envs*steps)
	for i := range values {
		values[i] = float32(i%7) * 0.1
		rewards[i] = float32(i%3) - 0.5
		dones[i] = i%5 == 4
	}

	t.Run("Shared", func(t *testing.T) {
		bootstrap := []float32{0.4, -0.1}
		ret, adv, err := CalculateReplay(dense(values, slots, envs, steps),
			dones, dense(rewards, slots, envs, steps), bootstrap, 0.9, 0.8)
		require.NoError(t, err)
		assert.Equal(t, []int{slots, envs, steps}, []int(adv.Shape()))

		n := envs * steps
		for s := 0; s < slots; s++ {
			fr, fa, err := Calculate(dense(values[s*n:(s+1)*n], envs, steps),
				dones[s*n:(s+1)*n], dense(rewards[s*n:(s+1)*n], envs, steps),
				bootstrap, 0.9, 0.8)
			require.NoError(t, err)
			assert.Equal(t, fr.Data(), ret.Data().([]float32)[s*n:(s+1)*n])
			assert.Equal(t, fa.Data(), adv.Data().([]float32)[s*n:(s+1)*n])
		}
	})

	t.Run("PerSlot", func(t *testing.T) {
		bootstrap := []float32{0.4, -0.1, 1, 2, 3, 4}
		_, adv, err := CalculateReplay(dense(values, slots, envs, steps),
			dones, dense(rewards, slots, envs, steps), bootstrap, 0.9, 0.8)
		require.NoError(t, err)

		n := envs * steps
		_, fa, err := Calculate(dense(values[2*n:], envs, steps),
			dones[2*n:], dense(rewards[2*n:], envs, steps),
			bootstrap[4:], 0.9, 0.8)
		require.NoError(t, err)
		assert.Equal(t, fa.Data(), adv.Data().([]float32)[2*n:])
	})
}

func TestShapeErrors(t *testing.T) {
	values := dense(make([]float32, 6), 2, 3)
	rewards := dense(make([]float32, 6), 2, 3)

	_, _, err := Calculate(values, make([]bool, 5), rewards,
		[]float32{0, 0}, 0.99, 0.95)
	var shapeErr *ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "dones", shapeErr.Name)

	_, _, err = Calculate(values, make([]bool, 6), rewards,
		[]float32{0}, 0.99, 0.95)
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "bootstrap", shapeErr.Name)

	_, _, err = Calculate(values, make([]bool, 6),
		dense(make([]float32, 6), 3, 2), []float32{0, 0}, 0.99, 0.95)
	require.ErrorAs(t, err, &shapeErr)

	wide := tensor.New(tensor.WithShape(2, 3),
		tensor.WithBacking(make([]float64, 6)))
	_, _, err = Calculate(wide, make([]bool, 6), rewards,
		[]float32{0, 0}, 0.99, 0.95)
	var dtypeErr *DtypeError
	require.ErrorAs(t, err, &dtypeErr)
}

func TestStandardize(t *testing.T) {
	adv := Standardize([]float32{1, 2, 3, 4, 5, 6, 7, 8})

	adv64 := make([]float64, len(adv))
	for i, a := range adv {
		adv64[i] = float64(a)
	}
	assert.InDelta(t, 0, stat.Mean(adv64, nil), 1e-6)
	assert.InDelta(t, 1, stat.PopStdDev(adv64, nil), 1e-5)

	constant := Standardize([]float32{2, 2, 2})
	assert.Equal(t, []float32{0, 0, 0}, constant)
}
