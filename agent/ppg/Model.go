package ppg

import "github.com/samuelfneumann/phasic/network"

// PolicyBatch is a minibatch of the policy phase
type PolicyBatch struct {
	Obs        []uint8
	Actions    []int
	Returns    []float32
	Values     []float32 // Values predicted during the rollout
	ActionLogp []float32 // Action log probabilities during the rollout
	Advantages []float32 // Standardized

	ClipParam   float64
	VFClipParam float64
	GradClip    float64
	EntCoef     float64
	VFCoef      float64
}

// Len returns the number of transitions in the minibatch
func (p PolicyBatch) Len() int {
	return len(p.Returns)
}

// AuxBatch is a minibatch of the auxiliary phase: stored observations
// along with the value and policy targets they are distilled towards
type AuxBatch struct {
	Obs       []uint8
	Returns   []float32
	PiTargets []float32 // Target logits, Len() * actions
}

// Len returns the number of transitions in the minibatch
func (a AuxBatch) Len() int {
	return len(a.Returns)
}

// Losses are the losses of a minibatch
type Losses struct {
	Policy  float64
	Value   float64
	Entropy float64
	Aux     float64
}

// Model is the actor-critic trained by a Policy. Gradients of the
// minibatches passed to PolicyStep and AuxStep are accumulated until a
// call with apply set, which takes an optimizer step over the
// accumulated gradients.
type Model interface {
	network.WeightHolder

	// Predict returns the values and policy logits of n observations
	// stored contiguously in obs. Logits are laid out observation-major.
	Predict(obs []uint8, n int) (values, logits []float32, err error)

	PolicyStep(b PolicyBatch, apply bool) (Losses, error)
	AuxStep(b AuxBatch, apply bool) (Losses, error)

	SetLearningRate(lr float64) error
}
