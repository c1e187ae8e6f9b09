package trackers

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/samuelfneumann/phasic/network"
	"github.com/samuelfneumann/phasic/utils/floatutils"
)

// Default budget of a BestModel
const (
	DefaultTargetTimesteps = 8_000_000
	DefaultSafetyBuffer    = 20 * time.Second
	DefaultMinTimesteps    = 1_000_000
	DefaultWindowSize      = 100
)

// BestModelConfig describes the time and step budget of a BestModel
type BestModelConfig struct {
	// TargetTimesteps is the number of timesteps after which training
	// should stop
	TargetTimesteps int

	// MaxTime is the wall clock budget of training, or 0 for no limit.
	// Training stops once the time elapsed is within SafetyBuffer of
	// MaxTime.
	MaxTime      time.Duration
	SafetyBuffer time.Duration

	// MinTimesteps is the number of timesteps which must be exceeded
	// before a stop is signalled, whatever the budget
	MinTimesteps int

	// WindowSize is the number of recent episodes averaged to score
	// the model
	WindowSize int
}

// DefaultBestModelConfig returns the default budget with a given wall
// clock limit
func DefaultBestModelConfig(maxTime time.Duration) BestModelConfig {
	return BestModelConfig{
		TargetTimesteps: DefaultTargetTimesteps,
		MaxTime:         maxTime,
		SafetyBuffer:    DefaultSafetyBuffer,
		MinTimesteps:    DefaultMinTimesteps,
		WindowSize:      DefaultWindowSize,
	}
}

// Validate returns an error describing whether or not the
// configuration is valid
func (b BestModelConfig) Validate() error {
	if b.WindowSize < 1 {
		return fmt.Errorf("validate: illegal window size \n\twant(> 0)"+
			"\n\thave(%v)", b.WindowSize)
	}
	if b.TargetTimesteps < 0 || b.MinTimesteps < 0 {
		return fmt.Errorf("validate: timestep budgets must be >= 0")
	}
	if b.MaxTime < 0 || b.SafetyBuffer < 0 {
		return fmt.Errorf("validate: time budgets must be >= 0")
	}
	return nil
}

// BestModelState is the serializable state of a BestModel
type BestModelState struct {
	TimestepsTotal int
	TimeElapsed    time.Duration

	BestReward    float64
	BestTimesteps int
	BestWeights   network.Weights // nil if no snapshot has been taken

	RewardWindow []float64
}

// BestModel tracks the reward of a model over training and keeps a
// snapshot of its weights at the best trailing-mean reward seen. It
// also tracks the time and step budget of training. Once the budget is
// exhausted, it restores the best snapshot into the model and signals
// that training should stop.
//
// The best reward is non-decreasing over the lifetime of a BestModel.
type BestModel struct {
	config BestModelConfig
	model  network.WeightHolder
	window *Window

	timesteps int
	elapsed   time.Duration

	bestReward    float64
	bestTimesteps int
	bestWeights   network.Weights

	logger zerolog.Logger
}

// NewBestModel returns a new BestModel tracking model
func NewBestModel(c BestModelConfig, model network.WeightHolder,
	logger zerolog.Logger) (*BestModel, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newBestModel: %v", err)
	}
	if model == nil {
		return nil, fmt.Errorf("newBestModel: model must not be nil")
	}

	window, err := NewWindow(c.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("newBestModel: %v", err)
	}

	return &BestModel{
		config:     c,
		model:      model,
		window:     window,
		bestReward: math.Inf(-1),
		logger:     logger.With().Str("component", "best_model").Logger(),
	}, nil
}

// Observe records the episodes completed in a batch of timestepsDelta
// timesteps, along with the wall clock time elapsed since the previous
// call, and returns whether training should stop.
//
// The model is scored by the mean reward of the batch's episodes if
// there are at least a window's worth of them, and by the mean of the
// trailing window otherwise. A strictly better score snapshots the
// model's weights. When Observe returns true, the best snapshot has
// been restored into the model, and the caller should not take an
// optimizer step on the batch. If the snapshot cannot be restored the
// error is logged, the model keeps its current weights and the stop
// is still signalled.
func (b *BestModel) Observe(episodeRewards []float64, timestepsDelta int,
	elapsed time.Duration) bool {
	b.timesteps += timestepsDelta
	b.elapsed += elapsed

	b.window.Add(episodeRewards...)
	reward := b.window.Mean()
	if len(episodeRewards) >= b.window.Cap() {
		reward = floatutils.SafeMean(episodeRewards)
	}

	if reward > b.bestReward {
		b.bestReward = reward
		b.bestWeights = b.model.Weights()
		b.bestTimesteps = b.timesteps
		b.logger.Info().
			Float64("reward", reward).
			Int("timesteps", b.timesteps).
			Msg("new best model")
	}

	if !b.budgetExhausted() || b.timesteps <= b.config.MinTimesteps ||
		b.bestWeights == nil {
		return false
	}

	if err := b.model.SetWeights(b.bestWeights); err != nil {
		b.logger.Error().Err(err).
			Int("timesteps", b.timesteps).
			Msg("budget exhausted, could not restore best model, " +
				"keeping current weights")
		return true
	}
	b.logger.Info().
		Float64("best_reward", b.bestReward).
		Int("best_timesteps", b.bestTimesteps).
		Int("timesteps", b.timesteps).
		Dur("elapsed", b.elapsed).
		Msg("budget exhausted, restored best model")
	return true
}

func (b *BestModel) budgetExhausted() bool {
	if b.timesteps > b.config.TargetTimesteps {
		return true
	}
	return b.config.MaxTime > 0 &&
		b.elapsed+b.config.SafetyBuffer > b.config.MaxTime
}

// AddTime adds wall clock time to the time elapsed without observing
// a batch
func (b *BestModel) AddTime(elapsed time.Duration) {
	b.elapsed += elapsed
}

// BestReward returns the best reward seen, or -Inf if no episodes have
// been observed
func (b *BestModel) BestReward() float64 {
	return b.bestReward
}

// HasSnapshot returns whether a best model snapshot has been taken
func (b *BestModel) HasSnapshot() bool {
	return b.bestWeights != nil
}

// Timesteps returns the total number of timesteps observed
func (b *BestModel) Timesteps() int {
	return b.timesteps
}

// Elapsed returns the total wall clock time observed
func (b *BestModel) Elapsed() time.Duration {
	return b.elapsed
}

// State returns a copy of the state of the BestModel
func (b *BestModel) State() BestModelState {
	return BestModelState{
		TimestepsTotal: b.timesteps,
		TimeElapsed:    b.elapsed,
		BestReward:     b.bestReward,
		BestTimesteps:  b.bestTimesteps,
		BestWeights:    b.bestWeights.Clone(),
		RewardWindow:   b.window.Values(),
	}
}

// SetState restores the BestModel from a saved state. The state is
// validated before anything is changed: if the saved snapshot does
// not fit the model, an error is returned and the BestModel is left
// as it was.
func (b *BestModel) SetState(s BestModelState) error {
	if s.TimestepsTotal < 0 || s.TimeElapsed < 0 || s.BestTimesteps < 0 {
		return fmt.Errorf("setState: illegal negative budget in state")
	}
	if s.BestWeights != nil {
		if err := b.model.Weights().Compatible(s.BestWeights); err != nil {
			return fmt.Errorf("setState: best weights: %v", err)
		}
	}
	if s.BestWeights == nil && !math.IsInf(s.BestReward, -1) {
		return fmt.Errorf("setState: best reward %v without a snapshot",
			s.BestReward)
	}

	b.timesteps = s.TimestepsTotal
	b.elapsed = s.TimeElapsed
	b.bestReward = s.BestReward
	b.bestTimesteps = s.BestTimesteps
	b.bestWeights = s.BestWeights.Clone()
	b.window.Load(s.RewardWindow)
	return nil
}
