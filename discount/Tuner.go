// Package discount implements an adaptive discount factor which is
// smoothly tuned toward a target effective horizon.
package discount

import (
	"math"
	"sort"
)

// Defaults used by the policy shell
const (
	DefaultMomentum  = 0.98
	DefaultEpLenMult = 3.0

	// HorizonMinSamples is the number of episode lengths needed
	// before a target horizon is defined
	HorizonMinSamples = 100

	// HorizonRank is the index, in ascending order, of the episode
	// length used as the target horizon
	HorizonRank = 80
)

// Tuner adjusts the discount factor ℽ toward the discount whose
// effective horizon, 1 / (1 - ℽ), matches a target horizon scaled by
// an episode-length multiplier. Updates are exponentially smoothed.
type Tuner struct {
	gamma     float64
	momentum  float64
	epLenMult float64
}

// NewTuner returns a new Tuner starting at discount gamma
func NewTuner(gamma, momentum, epLenMult float64) *Tuner {
	return &Tuner{
		gamma:     gamma,
		momentum:  momentum,
		epLenMult: epLenMult,
	}
}

// Update moves the discount toward the target horizon and returns the
// new discount. If the horizon is undefined (NaN) or not positive,
// the discount is left unchanged.
func (t *Tuner) Update(targetHorizon float64) float64 {
	if math.IsNaN(targetHorizon) || targetHorizon <= 0 {
		return t.gamma
	}

	target := 1 - 1/(targetHorizon*t.epLenMult)
	t.gamma = t.momentum*t.gamma + (1-t.momentum)*target
	return t.gamma
}

// Gamma returns the current discount
func (t *Tuner) Gamma() float64 {
	return t.gamma
}

// SetGamma overwrites the current discount, for example when
// restoring from a checkpoint
func (t *Tuner) SetGamma(gamma float64) {
	t.gamma = gamma
}

// TargetHorizon returns the target horizon for a set of episode
// lengths: the length at rank HorizonRank of the lengths sorted in
// ascending order. If fewer than HorizonMinSamples lengths are given,
// NaN is returned.
func TargetHorizon(lengths []float64) float64 {
	if len(lengths) < HorizonMinSamples {
		return math.NaN()
	}

	sorted := append([]float64(nil), lengths...)
	sort.Float64s(sorted)
	return sorted[HorizonRank]
}
