// Package network implements the value function approximators trained
// by the agents, and the weight snapshots used to save and restore
// them.
package network

import "fmt"

// Weights is a snapshot of the learnable parameters of a model, keyed
// by parameter name
type Weights map[string][]float64

// Clone returns a deep copy of the weights
func (w Weights) Clone() Weights {
	if w == nil {
		return nil
	}
	clone := make(Weights, len(w))
	for name, values := range w {
		clone[name] = append([]float64(nil), values...)
	}
	return clone
}

// Compatible returns an error if other does not contain exactly the
// same parameters as w with the same sizes
func (w Weights) Compatible(other Weights) error {
	if len(w) != len(other) {
		return fmt.Errorf("compatible: illegal number of parameters "+
			"\n\twant(%v)\n\thave(%v)", len(w), len(other))
	}
	for name, values := range w {
		otherValues, ok := other[name]
		if !ok {
			return fmt.Errorf("compatible: missing parameter %q", name)
		}
		if len(values) != len(otherValues) {
			return fmt.Errorf("compatible: illegal size of parameter %q "+
				"\n\twant(%v)\n\thave(%v)", name, len(values),
				len(otherValues))
		}
	}
	return nil
}

// WeightHolder is a model whose weights can be snapshot and restored
type WeightHolder interface {
	// Weights returns a deep copy of the model's weights
	Weights() Weights

	// SetWeights overwrites the model's weights with a copy of w. If w
	// is not compatible with the model, the model is left unchanged
	// and an error is returned.
	SetWeights(w Weights) error
}
