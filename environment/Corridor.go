package environment

import "fmt"

// Corridor actions
const (
	Left = iota
	Right
)

// CorridorConfig configures a Corridor
type CorridorConfig struct {
	NumEnvs      int
	Length       int // Cells in the corridor and pixels per frame
	EpisodeSteps int
	GoalReward   float64

	// RandomStarts starts episodes uniformly in the left half of the
	// corridor rather than at its left end
	RandomStarts bool
	Seed         uint64
}

// DefaultCorridorConfig returns the default configuration with a
// given number of environments
func DefaultCorridorConfig(numEnvs int) CorridorConfig {
	return CorridorConfig{
		NumEnvs:      numEnvs,
		Length:       16,
		EpisodeSteps: 200,
		GoalReward:   10,
	}
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c CorridorConfig) Validate() error {
	if c.NumEnvs < 1 {
		return fmt.Errorf("validate: illegal number of environments "+
			"\n\twant(> 0)\n\thave(%v)", c.NumEnvs)
	}
	if c.Length < 2 {
		return fmt.Errorf("validate: illegal corridor length \n\twant(>= 2)"+
			"\n\thave(%v)", c.Length)
	}
	if c.EpisodeSteps < 1 {
		return fmt.Errorf("validate: illegal episode steps \n\twant(> 0)"+
			"\n\thave(%v)", c.EpisodeSteps)
	}
	return nil
}

// SingleStart starts every episode at the same position
type SingleStart struct {
	position int
}

// Start implements the Starter interface
func (s SingleStart) Start() int {
	return s.position
}

// Corridor is a vectorized one dimensional corridor. Each agent moves
// left or right and earns the goal reward when it reaches the right
// end, which ends its episode. Episodes are also ended by a step limit.
//
// Each observation is a stack of two frames, the previous frame
// followed by the current one. A frame has one pixel per cell of the
// corridor, set to 255 at the agent's position and 0 elsewhere. After
// a reset both frames show the starting position.
type Corridor struct {
	config  CorridorConfig
	starter Starter
	ender   Ender

	positions []int
	steps     []int
	returns   []float64
	obs       []uint8
}

// NewCorridor returns a new Corridor
func NewCorridor(c CorridorConfig) (*Corridor, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newCorridor: %v", err)
	}

	var starter Starter = SingleStart{0}
	if c.RandomStarts {
		starter = NewUniformStarter(c.Length/2, c.Seed)
	}

	corridor := &Corridor{
		config:    c,
		starter:   starter,
		ender:     NewStepLimit(c.EpisodeSteps),
		positions: make([]int, c.NumEnvs),
		steps:     make([]int, c.NumEnvs),
		returns:   make([]float64, c.NumEnvs),
		obs:       make([]uint8, c.NumEnvs*2*c.Length),
	}
	corridor.Reset()
	return corridor, nil
}

// NumEnvs implements the VecEnv interface
func (c *Corridor) NumEnvs() int {
	return c.config.NumEnvs
}

// Actions implements the VecEnv interface
func (c *Corridor) Actions() int {
	return 2
}

// ObsShape implements the VecEnv interface
func (c *Corridor) ObsShape() []int {
	return []int{2 * c.config.Length}
}

// FrameStack implements the VecEnv interface
func (c *Corridor) FrameStack() int {
	return 2
}

// Reset implements the VecEnv interface
func (c *Corridor) Reset() []uint8 {
	for env := range c.positions {
		c.reset(env)
	}
	return append([]uint8(nil), c.obs...)
}

// Step implements the VecEnv interface
func (c *Corridor) Step(actions []int) (Transition, error) {
	n := c.config.NumEnvs
	if len(actions) != n {
		return Transition{}, fmt.Errorf("step: illegal number of actions "+
			"\n\twant(%v)\n\thave(%v)", n, len(actions))
	}

	for _, action := range actions {
		if action != Left && action != Right {
			return Transition{}, fmt.Errorf("step: illegal action %v", action)
		}
	}

	t := Transition{
		Rewards:  make([]float32, n),
		Dones:    make([]bool, n),
		Episodes: make([]*Episode, n),
	}
	for env, action := range actions {
		if action == Right {
			c.positions[env]++
		} else if c.positions[env] > 0 {
			c.positions[env]--
		}
		c.steps[env]++

		atGoal := c.positions[env] == c.config.Length-1
		if atGoal {
			t.Rewards[env] = float32(c.config.GoalReward)
			c.returns[env] += c.config.GoalReward
		}

		if atGoal || c.ender.End(c.steps[env]) {
			t.Dones[env] = true
			t.Episodes[env] = &Episode{
				Return: c.returns[env],
				Length: c.steps[env],
			}
			c.reset(env)
			continue
		}

		// The current frame becomes the previous one
		stack := c.stack(env)
		copy(stack[:c.config.Length], stack[c.config.Length:])
		c.draw(stack[c.config.Length:], c.positions[env])
	}

	t.Obs = append([]uint8(nil), c.obs...)
	return t, nil
}

// reset starts a new episode in an environment
func (c *Corridor) reset(env int) {
	c.positions[env] = c.starter.Start()
	c.steps[env] = 0
	c.returns[env] = 0

	stack := c.stack(env)
	c.draw(stack[:c.config.Length], c.positions[env])
	c.draw(stack[c.config.Length:], c.positions[env])
}

func (c *Corridor) stack(env int) []uint8 {
	size := 2 * c.config.Length
	return c.obs[env*size : (env+1)*size]
}

func (c *Corridor) draw(frame []uint8, position int) {
	for i := range frame {
		frame[i] = 0
	}
	frame[position] = 255
}
