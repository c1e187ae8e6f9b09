// Package normalize implements a running reward-normalization filter.
//
// Rewards are scaled by the running standard deviation of the
// discounted return, tracked separately for each environment lane,
// and clipped to a symmetric bound.
package normalize

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/phasic/utils/floatutils"
)

// Defaults used by the policy shell
const (
	DefaultGamma   = 0.99
	DefaultEpsilon = 1e-8

	// priorCount is the weight of the unit-variance prior of the
	// running statistics
	priorCount = 1e-4
)

// RewardNormalizer normalizes rewards by the running standard
// deviation of the discounted return
type RewardNormalizer struct {
	gamma   float64
	cliprew float64
	epsilon float64

	ret []float64 // Discounted return of each lane
	rms *RunningMeanStd
}

// State is the serializable state of a RewardNormalizer
type State struct {
	Returns []float64
	RMS     RunningMeanStd
}

// New returns a new RewardNormalizer over nenvs environment lanes.
// Normalized rewards are clipped to [-cliprew, cliprew], and epsilon
// floors the running variance.
func New(nenvs int, gamma, cliprew, epsilon float64) *RewardNormalizer {
	return &RewardNormalizer{
		gamma:   gamma,
		cliprew: cliprew,
		epsilon: epsilon,
		ret:     make([]float64, nenvs),
		rms:     NewRunningMeanStd(priorCount),
	}
}

// Normalize normalizes the rewards of a single step over all lanes.
//
// The doneMask holds the done flags of the previous step. If
// resetOnDone is true, then the return of any lane whose previous step
// was terminal is restarted before the new reward is accumulated, so
// that reward scale is not carried across episode boundaries.
func (r *RewardNormalizer) Normalize(rewards []float32, doneMask []bool,
	resetOnDone bool) []float32 {
	if len(rewards) != len(r.ret) {
		panic(fmt.Sprintf("normalize: illegal rewards length \n\twant(%v)"+
			"\n\thave(%v)", len(r.ret), len(rewards)))
	}

	if resetOnDone {
		for i, done := range doneMask {
			if done {
				r.ret[i] = 0
			}
		}
	}

	for i, rew := range rewards {
		r.ret[i] = r.ret[i]*r.gamma + float64(rew)
	}
	r.rms.Update(r.ret)

	scale := math.Sqrt(r.rms.Var + r.epsilon)
	normalized := make([]float32, len(rewards))
	for i, rew := range rewards {
		normalized[i] = float32(floatutils.Clip(float64(rew)/scale,
			-r.cliprew, r.cliprew))
	}
	return normalized
}

// Std returns the running standard deviation of the discounted return
func (r *RewardNormalizer) Std() float64 {
	return r.rms.Std()
}

// Lanes returns the number of environment lanes normalized
func (r *RewardNormalizer) Lanes() int {
	return len(r.ret)
}

// State returns a copy of the normalizer's state
func (r *RewardNormalizer) State() State {
	return State{
		Returns: append([]float64(nil), r.ret...),
		RMS:     *r.rms,
	}
}

// SetState restores the normalizer's state. If the state was recorded
// for a different number of lanes, the normalizer is left unchanged
// and an error is returned.
func (r *RewardNormalizer) SetState(s State) error {
	if len(s.Returns) != len(r.ret) {
		return fmt.Errorf("setState: illegal lanes \n\twant(%v)\n\thave(%v)",
			len(r.ret), len(s.Returns))
	}
	if s.RMS.Count <= 0 || s.RMS.Var < 0 {
		return fmt.Errorf("setState: illegal running statistics %+v", s.RMS)
	}

	copy(r.ret, s.Returns)
	rms := s.RMS
	r.rms = &rms
	return nil
}
