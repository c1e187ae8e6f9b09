package ppg

import (
	"fmt"
	"time"

	"github.com/samuelfneumann/phasic/experiment/checkpointer"
	"github.com/samuelfneumann/phasic/experiment/trackers"
	"github.com/samuelfneumann/phasic/solver"
	"github.com/samuelfneumann/phasic/utils/intutils"
)

// Config configures a Policy. It is JSON serializable so that runs
// can be described in configuration files.
type Config struct {
	// Rollout geometry
	NumEnvs    int
	NumSteps   int
	ObsShape   []int
	FrameStack int // Frames stacked along the last observation axis
	Actions    int

	// Generalized Advantage Estimation
	Lambda float64
	Gamma  float64

	// Policy phase
	ClipParam         float64
	VFClipParam       float64
	GradClip          float64
	VFLossCoeff       float64
	EntropyCoeff      float64
	FinalEntropyCoeff float64
	EntropySchedule   bool
	LR                float64
	FinalLR           float64
	LRSchedule        solver.ScheduleType
	NumSGDIter        int
	MaxMinibatchSize  int
	UpdatesPerBatch   int

	// Rewards
	StandardizeRewards bool
	ResetReturns       bool
	ScaleReward        float64
	MaxReward          float64

	// Auxiliary phase
	RetuneSkips       int
	NPi               int // Rollout batches stored per retune
	NumRetunes        int
	RetuneEpochs      int
	FlatBuffer        bool
	AuxMinibatchSize  int
	AuxNumAccumulates int

	// Budget
	MaxTime         time.Duration
	TargetTimesteps int
	MinTimesteps    int // Timesteps before the budget may stop a run
	AdaptiveGamma   bool

	CheckpointCeiling int64
	Seed              uint64
}

// DefaultConfig returns the default configuration for a rollout
// geometry
func DefaultConfig(numEnvs, numSteps int, obsShape []int,
	actions int) Config {
	return Config{
		NumEnvs:  numEnvs,
		NumSteps: numSteps,
		ObsShape: obsShape,
		Actions:  actions,

		Lambda: 0.95,
		Gamma:  0.999,

		ClipParam:         0.2,
		VFClipParam:       0.2,
		GradClip:          0.5,
		VFLossCoeff:       0.5,
		EntropyCoeff:      0.01,
		FinalEntropyCoeff: 0.002,
		LR:                5e-4,
		FinalLR:           2e-4,
		LRSchedule:        solver.Constant,
		NumSGDIter:        1,
		MaxMinibatchSize:  2048,
		UpdatesPerBatch:   8,

		StandardizeRewards: true,
		ResetReturns:       true,
		ScaleReward:        1.0,
		MaxReward:          10,

		NPi:               32,
		NumRetunes:        100,
		RetuneEpochs:      6,
		AuxMinibatchSize:  4,
		AuxNumAccumulates: 1,

		MaxTime:         2 * time.Hour,
		TargetTimesteps: trackers.DefaultTargetTimesteps,
		MinTimesteps:    trackers.DefaultMinTimesteps,

		CheckpointCeiling: checkpointer.DefaultCeiling,
	}
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c Config) Validate() error {
	if c.NumEnvs < 1 || c.NumSteps < 1 || c.Actions < 1 {
		return fmt.Errorf("validate: environments, steps and actions must "+
			"be >= 1, have (%v, %v, %v)", c.NumEnvs, c.NumSteps, c.Actions)
	}
	if len(c.ObsShape) == 0 {
		return fmt.Errorf("validate: observation shape must be given")
	}
	if c.Gamma <= 0 || c.Gamma > 1 || c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("validate: illegal (gamma, lambda) \n\twant(0 < "+
			"gamma <= 1, 0 <= lambda <= 1)\n\thave(%v, %v)", c.Gamma, c.Lambda)
	}
	if c.UpdatesPerBatch < 1 || c.MaxMinibatchSize < 1 {
		return fmt.Errorf("validate: updates per batch and max minibatch " +
			"size must be >= 1")
	}
	if c.UpdatesPerBatch > c.NumEnvs*c.NumSteps {
		return fmt.Errorf("validate: illegal updates per batch \n\twant(<= "+
			"%v)\n\thave(%v)", c.NumEnvs*c.NumSteps, c.UpdatesPerBatch)
	}
	if c.NumSGDIter < 0 || c.RetuneEpochs < 0 || c.RetuneSkips < 0 ||
		c.NumRetunes < 0 {
		return fmt.Errorf("validate: epochs, skips and retunes must be >= 0")
	}
	if c.NPi < 1 || c.AuxMinibatchSize < 1 || c.AuxNumAccumulates < 1 {
		return fmt.Errorf("validate: n_pi, aux minibatch size and aux " +
			"accumulates must be >= 1")
	}
	if c.LR <= 0 {
		return fmt.Errorf("validate: illegal learning rate \n\twant(> 0)"+
			"\n\thave(%v)", c.LR)
	}
	if c.MaxReward <= 0 {
		return fmt.Errorf("validate: illegal max reward \n\twant(> 0)"+
			"\n\thave(%v)", c.MaxReward)
	}
	if c.CheckpointCeiling <= 0 {
		return fmt.Errorf("validate: illegal checkpoint ceiling \n\twant("+
			"> 0)\n\thave(%v)", c.CheckpointCeiling)
	}
	if err := c.lrSchedule().Validate(); err != nil {
		return fmt.Errorf("validate: lr schedule: %v", err)
	}
	if err := c.entropySchedule().Validate(); err != nil {
		return fmt.Errorf("validate: entropy schedule: %v", err)
	}
	return nil
}

// Warnings returns the inconsistencies of the configuration which do
// not prevent training but degrade it
func (c Config) Warnings() []string {
	var warnings []string

	nbatch := c.batchSize()
	if nbatch%c.trainBatchSize() != 0 || nbatch%c.memLimitedBatchSize() != 0 {
		warnings = append(warnings, fmt.Sprintf("memory limited batching "+
			"not set properly: batch size %v is not divisible by the train "+
			"batch size %v and minibatch size %v, the last minibatch of "+
			"each epoch will be uneven", nbatch, c.trainBatchSize(),
			c.memLimitedBatchSize()))
	}
	if c.FrameStack != 0 && c.FrameStack != 2 {
		warnings = append(warnings, fmt.Sprintf("frame stack %v cannot be "+
			"sliced, checkpoints of large replay buffers will be omitted",
			c.FrameStack))
	}
	return warnings
}

// batchSize returns the number of transitions in a rollout batch
func (c Config) batchSize() int {
	return c.NumEnvs * c.NumSteps
}

// trainBatchSize returns the number of transitions in each optimizer
// step
func (c Config) trainBatchSize() int {
	return c.batchSize() / c.UpdatesPerBatch
}

// accumulate returns the number of minibatches whose gradients are
// accumulated into each optimizer step
func (c Config) accumulate() int {
	return intutils.CeilDiv(c.trainBatchSize(), c.MaxMinibatchSize)
}

// memLimitedBatchSize returns the number of transitions in each
// minibatch
func (c Config) memLimitedBatchSize() int {
	return c.trainBatchSize() / c.accumulate()
}

func (c Config) obsSize() int {
	return intutils.Prod(c.ObsShape...)
}

func (c Config) lrSchedule() solver.Schedule {
	return solver.Schedule{
		Type:    c.LRSchedule,
		Initial: c.LR,
		Final:   c.FinalLR,
		Total:   c.TargetTimesteps,
	}
}

func (c Config) entropySchedule() solver.Schedule {
	if !c.EntropySchedule {
		return solver.Schedule{Type: solver.Constant}
	}
	return solver.Schedule{
		Type:    solver.Linear,
		Initial: c.EntropyCoeff,
		Final:   c.FinalEntropyCoeff,
		Total:   c.TargetTimesteps,
	}
}
