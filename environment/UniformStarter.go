package environment

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// UniformStarter samples starting positions uniformly from [0, max)
type UniformStarter struct {
	max  int
	seed uint64
	rand distuv.Uniform
}

// NewUniformStarter returns a new UniformStarter
func NewUniformStarter(max int, seed uint64) *UniformStarter {
	source := rand.NewSource(seed)
	rand := distuv.Uniform{Min: 0, Max: float64(max), Src: source}

	return &UniformStarter{max, seed, rand}
}

// Start implements the Starter interface
func (u *UniformStarter) Start() int {
	start := int(math.Floor(u.rand.Rand()))
	if start >= u.max {
		start = u.max - 1
	}
	return start
}
