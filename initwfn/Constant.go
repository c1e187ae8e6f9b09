package initwfn

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
)

// ZeroesConfig configures an initializer which sets all weights to 0,
// so that a critic starts out predicting a value of 0 everywhere
type ZeroesConfig struct{}

// NewZeroes returns a zero initializer
func NewZeroes() (*InitWFn, error) {
	return newInitWFn(ZeroesConfig{})
}

func (z ZeroesConfig) Type() Type {
	return Zeroes
}

func (z ZeroesConfig) Validate() error {
	return nil
}

func (z ZeroesConfig) Create() G.InitWFn {
	return G.Zeroes()
}

// ConstantConfig configures an initializer which sets all weights to
// Value
type ConstantConfig struct {
	Value float64
}

// NewConstant returns a constant initializer. The value must be
// finite.
func NewConstant(value float64) (*InitWFn, error) {
	return newInitWFn(ConstantConfig{Value: value})
}

func (c ConstantConfig) Type() Type {
	return Constant
}

// Validate returns an error if the value is NaN or infinite
func (c ConstantConfig) Validate() error {
	if !finite(c.Value) {
		return fmt.Errorf("illegal constant %v", c.Value)
	}
	return nil
}

func (c ConstantConfig) Create() G.InitWFn {
	return G.ValuesOf(c.Value)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
