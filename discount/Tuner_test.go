package discount

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdate(t *testing.T) {
	tuner := NewTuner(0.99, 0.5, 2)

	// Horizon 50 with multiplier 2 targets ℽ = 1 - 1/100
	got := tuner.Update(50)
	assert.InDelta(t, 0.5*0.99+0.5*0.99, got, 1e-12)

	got = tuner.Update(5)
	assert.InDelta(t, 0.5*0.99+0.5*0.9, got, 1e-12)
	assert.Equal(t, got, tuner.Gamma())
}

func TestUpdateUndefinedHorizon(t *testing.T) {
	tuner := NewTuner(0.97, DefaultMomentum, DefaultEpLenMult)

	for _, h := range []float64{math.NaN(), 0, -4} {
		assert.Equal(t, 0.97, tuner.Update(h))
	}
}

func TestUpdateDeterministic(t *testing.T) {
	a := NewTuner(0.99, DefaultMomentum, DefaultEpLenMult)
	b := NewTuner(0.99, DefaultMomentum, DefaultEpLenMult)
	for _, h := range []float64{10, 200, 35, math.NaN(), 1000} {
		assert.Equal(t, a.Update(h), b.Update(h))
	}
}

func TestTargetHorizon(t *testing.T) {
	assert.True(t, math.IsNaN(TargetHorizon(make([]float64, 99))))

	lengths := make([]float64, 100)
	for i := range lengths {
		lengths[i] = float64(100 - i)
	}
	assert.Equal(t, 81.0, TargetHorizon(lengths))

	// The input is not reordered
	assert.Equal(t, 100.0, lengths[0])
}
