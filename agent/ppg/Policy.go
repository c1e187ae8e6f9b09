// Package ppg implements the training-statistics engine of a phasic
// policy gradient agent. A Policy turns batches of rollout transitions
// into training targets for a Model, decides when to run an auxiliary
// distillation phase over stored experience, tracks the time and step
// budget of training, and captures all of this state in checkpoints.
//
// A Policy is not safe for concurrent use: LearnOnBatch, Snapshot and
// Restore must be called from the training loop which owns it.
package ppg

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/phasic/buffer/expreplay"
	"github.com/samuelfneumann/phasic/buffer/gae"
	"github.com/samuelfneumann/phasic/discount"
	"github.com/samuelfneumann/phasic/experiment/checkpointer"
	"github.com/samuelfneumann/phasic/experiment/trackers"
	"github.com/samuelfneumann/phasic/normalize"
	"github.com/samuelfneumann/phasic/retune"
	"github.com/samuelfneumann/phasic/solver"
	"github.com/samuelfneumann/phasic/utils/floatutils"
	"github.com/samuelfneumann/phasic/utils/intutils"
)

// Option configures optional behaviour of a Policy
type Option func(*Policy)

// WithClock sets the clock used to time batches
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		p.now = now
	}
}

// Policy trains a Model on batches of rollout transitions
type Policy struct {
	config Config
	model  Model
	state  TrainingState

	normalizer *normalize.RewardNormalizer
	tuner      *discount.Tuner
	horizons   *trackers.Window
	best       *trackers.BestModel
	selector   *retune.Selector
	codec      *checkpointer.Codec

	lrSchedule  solver.Schedule
	entSchedule solver.Schedule

	rng    *rand.Rand
	now    func() time.Time
	logger zerolog.Logger
}

// New returns a new Policy training model. Inconsistencies in the
// configuration which do not prevent training are logged as warnings.
func New(c Config, model Model, logger zerolog.Logger,
	opts ...Option) (*Policy, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if model == nil {
		return nil, fmt.Errorf("new: model must not be nil")
	}

	budget := trackers.DefaultBestModelConfig(c.MaxTime)
	budget.TargetTimesteps = c.TargetTimesteps
	budget.MinTimesteps = c.MinTimesteps
	best, err := trackers.NewBestModel(budget, model, logger)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	horizons, err := trackers.NewWindow(discount.HorizonMinSamples)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	selector, err := retune.New(c.retuneConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	p := &Policy{
		config: c,
		model:  model,
		state: TrainingState{
			Gamma:     c.Gamma,
			LR:        c.LR,
			EntCoef:   c.EntropyCoeff,
			LastDones: make([]bool, c.NumEnvs),
		},
		normalizer: normalize.New(c.NumEnvs, normalize.DefaultGamma,
			c.MaxReward, normalize.DefaultEpsilon),
		tuner: discount.NewTuner(c.Gamma, discount.DefaultMomentum,
			discount.DefaultEpLenMult),
		horizons:    horizons,
		best:        best,
		selector:    selector,
		codec:       checkpointer.NewCodec(c.CheckpointCeiling, logger),
		lrSchedule:  c.lrSchedule(),
		entSchedule: c.entropySchedule(),
		rng:         rand.New(rand.NewSource(c.Seed)),
		now:         time.Now,
		logger:      logger.With().Str("component", "ppg").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, warning := range c.Warnings() {
		p.logger.Warn().Msg(warning)
	}

	// The schedule is stepped once before the first batch, so an
	// exponential schedule starts one decay below the configured rate
	p.state.BatchEnd = p.now()
	if err := p.updateLR(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	return p, nil
}

// retuneConfig returns the configuration of the retune selector
func (c Config) retuneConfig() retune.Config {
	buffer := expreplay.Config{
		Layout:     expreplay.Stacked,
		Slots:      c.NPi,
		Envs:       c.NumEnvs,
		Steps:      c.NumSteps,
		ObsShape:   c.ObsShape,
		FrameStack: c.FrameStack,
	}
	if c.FlatBuffer {
		buffer = expreplay.Config{
			Layout:     expreplay.Flat,
			Capacity:   c.NPi * c.batchSize(),
			ObsShape:   c.ObsShape,
			FrameStack: c.FrameStack,
		}
	}

	return retune.Config{
		Buffer:     buffer,
		Skips:      c.RetuneSkips,
		NumRetunes: c.NumRetunes,
		Seed:       c.Seed,
	}
}

// LearnOnBatch trains the model on a batch of rollout transitions.
//
// Rewards are normalized and scaled, then the best model tracker is
// consulted: if the budget is exhausted the best model is restored and
// the batch is not trained on. Otherwise advantages are estimated with
// GAE and the policy phase runs over shuffled minibatches, the batch is
// offered to the retune selector, which may trigger the auxiliary
// phase, and finally the discount, learning rate and entropy
// coefficient are updated.
func (p *Policy) LearnOnBatch(s *Samples) (Stats, error) {
	c := p.config
	n := c.batchSize()
	if err := s.Validate(n, c.obsSize()); err != nil {
		return Stats{}, fmt.Errorf("learnOnBatch: %v", err)
	}

	rewards := p.normalizeRewards(s.Rewards, s.Dones)
	episodeReturns, episodeLengths := s.episodes()

	stats := Stats{
		Episodes:   len(episodeReturns),
		MeanReturn: floatutils.SafeMean(episodeReturns),
	}

	if p.best.Observe(episodeReturns, n, 0) {
		p.endBatch()
		stats.Stopped = true
		return p.fillStats(stats), nil
	}

	// Bootstrap from the observation following the last step of each
	// environment
	obsSize := c.obsSize()
	lastObs := make([]uint8, 0, c.NumEnvs*obsSize)
	for env := 0; env < c.NumEnvs; env++ {
		i := env*c.NumSteps + c.NumSteps - 1
		lastObs = append(lastObs, s.NewObs[i*obsSize:(i+1)*obsSize]...)
	}
	lastValues, _, err := p.model.Predict(lastObs, c.NumEnvs)
	if err != nil {
		return Stats{}, fmt.Errorf("learnOnBatch: %v", err)
	}
	p.state.LastValues = lastValues

	values := tensor.New(
		tensor.WithShape(c.NumEnvs, c.NumSteps),
		tensor.WithBacking(append([]float32(nil), s.Values...)),
	)
	rewardsTensor := tensor.New(
		tensor.WithShape(c.NumEnvs, c.NumSteps),
		tensor.WithBacking(rewards),
	)
	returns, advantages, err := gae.Calculate(values, s.Dones,
		rewardsTensor, lastValues, p.state.Gamma, c.Lambda)
	if err != nil {
		return Stats{}, fmt.Errorf("learnOnBatch: %v", err)
	}

	stats.Losses, err = p.trainPolicy(s, returns.Data().([]float32),
		gae.Standardize(advantages.Data().([]float32)))
	if err != nil {
		return Stats{}, fmt.Errorf("learnOnBatch: %v", err)
	}

	stats.Retuned, err = p.retune(s.Obs, s.Dones, rewards)
	if err != nil {
		return Stats{}, fmt.Errorf("learnOnBatch: %v", err)
	}

	p.updateGamma(episodeReturns, episodeLengths)
	if err := p.updateLR(); err != nil {
		return Stats{}, fmt.Errorf("learnOnBatch: %v", err)
	}
	p.updateEntCoef()

	p.endBatch()
	stats = p.fillStats(stats)
	p.logger.Debug().
		Int("batch", p.state.Batches).
		Int("timesteps", stats.Timesteps).
		Float64("mean_return", stats.MeanReturn).
		Float64("value_loss", stats.Losses.Value).
		Float64("gamma", stats.Gamma).
		Float64("lr", stats.LR).
		Msg("learned on batch")
	return stats, nil
}

// normalizeRewards returns the normalized and scaled rewards of a
// batch. Each step is normalized over all environments, resetting the
// returns of environments whose previous step was terminal.
func (p *Policy) normalizeRewards(rewards []float32,
	dones []bool) []float32 {
	c := p.config
	out := append([]float32(nil), rewards...)

	stepRewards := make([]float32, c.NumEnvs)
	mask := make([]bool, c.NumEnvs)
	copy(mask, p.state.LastDones)
	for t := 0; t < c.NumSteps; t++ {
		if c.StandardizeRewards {
			for env := 0; env < c.NumEnvs; env++ {
				stepRewards[env] = rewards[env*c.NumSteps+t]
			}
			normalized := p.normalizer.Normalize(stepRewards, mask,
				c.ResetReturns)
			for env := 0; env < c.NumEnvs; env++ {
				out[env*c.NumSteps+t] = normalized[env]
			}
		}
		for env := 0; env < c.NumEnvs; env++ {
			mask[env] = dones[env*c.NumSteps+t]
		}
	}
	copy(p.state.LastDones, mask)

	if c.ScaleReward != 1.0 {
		for i := range out {
			out[i] *= float32(c.ScaleReward)
		}
	}
	return out
}

// trainPolicy runs the policy phase over shuffled minibatches,
// accumulating gradients over several minibatches per optimizer step,
// and returns the losses of the last minibatch
func (p *Policy) trainPolicy(s *Samples, returns,
	advantages []float32) (Losses, error) {
	c := p.config
	n := c.batchSize()
	size := c.memLimitedBatchSize()
	accumulate := c.accumulate()
	obsSize := c.obsSize()

	var losses Losses
	optimCount := 0
	for epoch := 0; epoch < c.NumSGDIter; epoch++ {
		inds := p.rng.Perm(n)
		for start := 0; start < n; start += size {
			mbInds := inds[start:intutils.Min(start+size, n)]

			batch := PolicyBatch{
				Obs:         make([]uint8, 0, len(mbInds)*obsSize),
				Actions:     make([]int, len(mbInds)),
				Returns:     make([]float32, len(mbInds)),
				Values:      make([]float32, len(mbInds)),
				ActionLogp:  make([]float32, len(mbInds)),
				Advantages:  make([]float32, len(mbInds)),
				ClipParam:   c.ClipParam,
				VFClipParam: c.VFClipParam,
				GradClip:    c.GradClip,
				EntCoef:     p.state.EntCoef,
				VFCoef:      c.VFLossCoeff,
			}
			for j, i := range mbInds {
				batch.Obs = append(batch.Obs, s.Obs[i*obsSize:(i+1)*obsSize]...)
				batch.Actions[j] = s.Actions[i]
				batch.Returns[j] = returns[i]
				batch.Values[j] = s.Values[i]
				batch.ActionLogp[j] = s.ActionLogp[i]
				batch.Advantages[j] = advantages[i]
			}

			optimCount++
			var err error
			losses, err = p.model.PolicyStep(batch,
				optimCount%accumulate == 0)
			if err != nil {
				return losses, err
			}
		}
	}
	return losses, nil
}

// retune offers a batch to the retune selector and runs the auxiliary
// phase if the selector's buffer is full, returning whether it ran
func (p *Policy) retune(obs []uint8, dones []bool,
	rewards []float32) (bool, error) {
	ready := p.selector.Update(obs, dones, rewards)

	// A buffer restored full from a checkpoint is distilled on the
	// first batch after the restore
	if !ready && p.selector.Phase() != retune.Ready {
		return false, nil
	}
	return true, p.auxTrain()
}

// auxTrain distills the model towards its own predictions on the
// stored experience, with value targets recomputed under the current
// discount
func (p *Policy) auxTrain() error {
	c := p.config
	buf := p.selector.Buffer()
	shape := buf.Shape()

	values, logits, err := p.model.Predict(buf.Observations(),
		buf.Capacity())
	if err != nil {
		return fmt.Errorf("auxTrain: %v", err)
	}

	returns := tensor.New(tensor.WithShape(shape...),
		tensor.WithBacking(values))
	if buf.Layout() == expreplay.Stacked {
		rewards := tensor.New(
			tensor.WithShape(shape...),
			tensor.WithBacking(append([]float32(nil), buf.Rewards()...)),
		)
		returns, _, err = gae.CalculateReplay(returns, buf.Dones(), rewards,
			p.state.LastValues, p.state.Gamma, c.Lambda)
		if err != nil {
			return fmt.Errorf("auxTrain: %v", err)
		}
	}
	piTargets := tensor.New(
		tensor.WithShape(append(append([]int(nil), shape...), c.Actions)...),
		tensor.WithBacking(logits),
	)

	var losses Losses
	counter := 0
	for epoch := 0; epoch < c.RetuneEpochs; epoch++ {
		mb, err := p.selector.MakeMinibatches(piTargets, returns,
			c.AuxMinibatchSize)
		if err != nil {
			return fmt.Errorf("auxTrain: %v", err)
		}
		for mb.Next() {
			batch := mb.Batch()
			counter++
			losses, err = p.model.AuxStep(AuxBatch{
				Obs:       batch.Obs,
				Returns:   batch.Returns,
				PiTargets: batch.PiTargets,
			}, counter%c.AuxNumAccumulates == 0)
			if err != nil {
				return fmt.Errorf("auxTrain: %v", err)
			}
		}
	}

	p.logger.Info().
		Int("epochs", c.RetuneEpochs).
		Int("minibatches", counter).
		Float64("aux_loss", losses.Aux).
		Float64("pi_loss", losses.Policy).
		Msg("auxiliary phase done")
	return p.selector.RetuneDone()
}

// updateGamma tunes the discount towards the horizon of episodes which
// reach the maximum reward
func (p *Policy) updateGamma(returns []float64, lengths []int) {
	if !p.config.AdaptiveGamma {
		return
	}
	for i, r := range returns {
		if r >= p.config.MaxReward {
			p.horizons.Add(float64(lengths[i]))
		}
	}
	horizon := discount.TargetHorizon(p.horizons.Values())
	p.state.Gamma = p.tuner.Update(horizon)
}

func (p *Policy) updateLR() error {
	p.state.LR = p.lrSchedule.Value(p.state.LR, p.best.Timesteps())
	return p.model.SetLearningRate(p.state.LR)
}

func (p *Policy) updateEntCoef() {
	p.state.EntCoef = p.entSchedule.Value(p.state.EntCoef,
		p.best.Timesteps())
}

// endBatch adds the time since the end of the previous batch to the
// time elapsed
func (p *Policy) endBatch() {
	now := p.now()
	p.best.AddTime(now.Sub(p.state.BatchEnd))
	p.state.BatchEnd = now
	p.state.Batches++
}

func (p *Policy) fillStats(s Stats) Stats {
	s.Timesteps = p.best.Timesteps()
	s.BestReward = p.best.BestReward()
	s.Gamma = p.state.Gamma
	s.LR = p.state.LR
	s.EntCoef = p.state.EntCoef
	return s
}

// State returns a copy of the training state
func (p *Policy) State() TrainingState {
	s := p.state
	s.LastDones = append([]bool(nil), p.state.LastDones...)
	s.LastValues = append([]float32(nil), p.state.LastValues...)
	return s
}

// Selector returns the retune selector of the Policy
func (p *Policy) Selector() *retune.Selector {
	return p.selector
}

// Timesteps returns the number of timesteps trained on
func (p *Policy) Timesteps() int {
	return p.best.Timesteps()
}

// Elapsed returns the training time elapsed
func (p *Policy) Elapsed() time.Duration {
	return p.best.Elapsed()
}
