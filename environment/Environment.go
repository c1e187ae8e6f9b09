// Package environment outlines the interfaces and structs needed to
// implement vectorized environments which produce rollout batches of
// uint8 observations
package environment

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() int
}

// Ender determines whether an episode should be ended after a given
// number of steps
type Ender interface {
	End(steps int) bool
}

// Episode summarizes a completed episode
type Episode struct {
	Return float64
	Length int
}

// Transition is the result of stepping every environment of a VecEnv
// once. All arrays are indexed by environment.
type Transition struct {
	// Obs are the observations following the step. Environments whose
	// episode ended have already been reset, and Obs holds the first
	// observation of their next episode.
	Obs     []uint8
	Rewards []float32
	Dones   []bool

	// Episodes is non-nil for each environment whose episode ended
	Episodes []*Episode
}

// VecEnv implements a set of environments stepped in lockstep
type VecEnv interface {
	NumEnvs() int
	Actions() int

	// ObsShape is the shape of a single observation, with stacked
	// frames concatenated along the last axis
	ObsShape() []int
	FrameStack() int

	// Reset resets every environment and returns their observations
	Reset() []uint8
	Step(actions []int) (Transition, error)
}
