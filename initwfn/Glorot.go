package initwfn

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// GlorotUConfig configures Glorot uniform initialization of the
// weights of a linear critic
type GlorotUConfig struct {
	Gain float64
}

// NewGlorotU returns a Glorot uniform initializer. Gain scales the
// width of the sampling interval and must be positive.
func NewGlorotU(gain float64) (*InitWFn, error) {
	return newInitWFn(GlorotUConfig{Gain: gain})
}

func (g GlorotUConfig) Type() Type {
	return GlorotU
}

// Validate returns an error if the gain is not positive and finite
func (g GlorotUConfig) Validate() error {
	if !finite(g.Gain) || g.Gain <= 0 {
		return fmt.Errorf("illegal gain \n\twant(> 0)\n\thave(%v)", g.Gain)
	}
	return nil
}

func (g GlorotUConfig) Create() G.InitWFn {
	return G.GlorotU(g.Gain)
}
