package ppg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/phasic/network"
	"github.com/samuelfneumann/phasic/utils/floatutils"
)

// LinearModel is a Model made of a linear critic and a uniform random
// policy over a discrete action space. Only the critic is learned; the
// policy losses are reported for monitoring.
type LinearModel struct {
	critic  *network.LinearCritic
	actions int
	obsSize int

	// Minibatches accumulated since the last optimizer step
	obs     []uint8
	targets []float32
}

// NewLinearModel returns a new LinearModel over a number of actions
func NewLinearModel(critic *network.LinearCritic,
	actions int) (*LinearModel, error) {
	if actions < 1 {
		return nil, fmt.Errorf("newLinearModel: illegal number of actions "+
			"\n\twant(> 0)\n\thave(%v)", actions)
	}
	return &LinearModel{
		critic:  critic,
		actions: actions,
		obsSize: critic.Features() - 1,
	}, nil
}

// Predict implements the Model interface
func (m *LinearModel) Predict(obs []uint8, n int) ([]float32, []float32,
	error) {
	values, err := m.critic.Values(obs, n)
	if err != nil {
		return nil, nil, fmt.Errorf("predict: %v", err)
	}
	return values, make([]float32, n*m.actions), nil
}

// LogProb returns the log probability of any action under the policy
func (m *LinearModel) LogProb() float64 {
	return -math.Log(float64(m.actions))
}

// PolicyStep implements the Model interface
func (m *LinearModel) PolicyStep(b PolicyBatch, apply bool) (Losses,
	error) {
	values, err := m.critic.Values(b.Obs, b.Len())
	if err != nil {
		return Losses{}, fmt.Errorf("policyStep: %v", err)
	}

	// Clipped surrogate objective
	logp := m.LogProb()
	pgLosses := make([]float64, b.Len())
	for i := range pgLosses {
		ratio := math.Exp(logp - float64(b.ActionLogp[i]))
		clipped := floatutils.Clip(ratio, 1-b.ClipParam, 1+b.ClipParam)
		adv := float64(b.Advantages[i])
		pgLosses[i] = math.Max(-adv*ratio, -adv*clipped)
	}
	entropy := -logp

	losses := Losses{
		Policy:  stat.Mean(pgLosses, nil) - b.EntCoef*entropy,
		Value:   0.5 * b.VFCoef * meanSquaredError(values, b.Returns),
		Entropy: entropy,
	}
	if err := m.accumulate(b.Obs, b.Returns, apply); err != nil {
		return losses, fmt.Errorf("policyStep: %v", err)
	}
	return losses, nil
}

// AuxStep implements the Model interface
func (m *LinearModel) AuxStep(b AuxBatch, apply bool) (Losses, error) {
	if len(b.PiTargets) != b.Len()*m.actions {
		return Losses{}, fmt.Errorf("auxStep: illegal pi targets length "+
			"\n\twant(%v)\n\thave(%v)", b.Len()*m.actions, len(b.PiTargets))
	}
	values, err := m.critic.Values(b.Obs, b.Len())
	if err != nil {
		return Losses{}, fmt.Errorf("auxStep: %v", err)
	}

	// KL divergence from the target policies to the uniform policy
	kl := make([]float64, b.Len())
	for i := range kl {
		probs := floatutils.Float64s(b.PiTargets[i*m.actions : (i+1)*m.actions])
		lse := floats.LogSumExp(probs)
		for j := range probs {
			probs[j] = math.Exp(probs[j] - lse)
		}
		kl[i] = stat.KullbackLeibler(probs, uniform(m.actions))
	}

	losses := Losses{
		Policy: stat.Mean(kl, nil),
		Aux:    0.5 * meanSquaredError(values, b.Returns),
	}
	if err := m.accumulate(b.Obs, b.Returns, apply); err != nil {
		return losses, fmt.Errorf("auxStep: %v", err)
	}
	return losses, nil
}

// accumulate adds a minibatch to those accumulated since the last
// optimizer step, and fits the critic to all of them if apply is set
func (m *LinearModel) accumulate(obs []uint8, targets []float32,
	apply bool) error {
	m.obs = append(m.obs, obs...)
	m.targets = append(m.targets, targets...)
	if !apply {
		return nil
	}

	defer func() {
		m.obs = m.obs[:0]
		m.targets = m.targets[:0]
	}()
	_, err := m.critic.Fit(m.obs, m.targets)
	return err
}

// Weights implements the network.WeightHolder interface
func (m *LinearModel) Weights() network.Weights {
	return m.critic.Weights()
}

// SetWeights implements the network.WeightHolder interface
func (m *LinearModel) SetWeights(w network.Weights) error {
	return m.critic.SetWeights(w)
}

// SetLearningRate implements the Model interface
func (m *LinearModel) SetLearningRate(lr float64) error {
	return m.critic.SetLearnRate(lr)
}

func meanSquaredError(pred, targets []float32) float64 {
	if len(pred) == 0 {
		return 0
	}
	sum := 0.0
	for i := range pred {
		diff := float64(pred[i] - targets[i])
		sum += diff * diff
	}
	return sum / float64(len(pred))
}

func uniform(n int) []float64 {
	p := make([]float64, n)
	for i := range p {
		p[i] = 1 / float64(n)
	}
	return p
}
