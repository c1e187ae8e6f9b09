package ppg

import (
	"fmt"

	"github.com/samuelfneumann/phasic/experiment/checkpointer"
	"github.com/samuelfneumann/phasic/experiment/trackers"
	"github.com/samuelfneumann/phasic/retune"
)

// Snapshot implements the checkpointer.Checkpointable interface. The
// replay buffer is encoded under the configured checkpoint ceiling,
// and is omitted from the state if no encoding fits.
func (p *Policy) Snapshot() (*checkpointer.State, error) {
	best := p.best.State()
	normalizer := p.normalizer.State()
	selector := p.selector.State()

	return &checkpointer.State{
		TimeElapsed:    best.TimeElapsed,
		TimestepsTotal: best.TimestepsTotal,

		Weights:       p.model.Weights(),
		BestWeights:   best.BestWeights,
		BestReward:    best.BestReward,
		BestTimesteps: best.BestTimesteps,
		RewardWindow:  best.RewardWindow,

		Gamma:   p.state.Gamma,
		LR:      p.state.LR,
		EntCoef: p.state.EntCoef,

		RewardNormalizer: &normalizer,
		LastDones:        append([]bool(nil), p.state.LastDones...),
		HorizonWindow:    p.horizons.Values(),

		RetunesCompleted: selector.RetunesCompleted,
		Retune:           &selector,
		ReplayBuffer:     p.codec.Encode(p.selector.Buffer()),
	}, nil
}

// Restore implements the checkpointer.Checkpointable interface.
//
// Each part of the state is validated before it is applied. Parts
// which do not fit the Policy, for example weights of a different
// model or a replay buffer of a different geometry, are skipped with a
// warning and the Policy keeps its current values for them.
func (p *Policy) Restore(s *checkpointer.State) error {
	if s == nil {
		return fmt.Errorf("restore: state must not be nil")
	}

	p.restoreWeights(s)
	p.restoreBudget(s)
	p.restoreHyperparameters(s)
	p.restoreRewards(s)
	p.restoreSelector(s)

	p.logger.Info().
		Int("timesteps", p.best.Timesteps()).
		Dur("elapsed", p.best.Elapsed()).
		Int("retunes_completed", p.selector.State().RetunesCompleted).
		Str("phase", string(p.selector.Phase())).
		Msg("restored from checkpoint")
	return nil
}

func (p *Policy) restoreWeights(s *checkpointer.State) {
	if s.Weights == nil {
		return
	}
	if err := p.model.SetWeights(s.Weights); err != nil {
		p.logger.Warn().Err(err).Msg("skipping weights")
	}
}

func (p *Policy) restoreBudget(s *checkpointer.State) {
	err := p.best.SetState(trackers.BestModelState{
		TimestepsTotal: s.TimestepsTotal,
		TimeElapsed:    s.TimeElapsed,
		BestReward:     s.BestReward,
		BestTimesteps:  s.BestTimesteps,
		BestWeights:    s.BestWeights,
		RewardWindow:   s.RewardWindow,
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("skipping best model and budget")
	}
}

func (p *Policy) restoreHyperparameters(s *checkpointer.State) {
	if s.Gamma > 0 && s.Gamma <= 1 {
		p.state.Gamma = s.Gamma
		p.tuner.SetGamma(s.Gamma)
	} else {
		p.logger.Warn().Float64("gamma", s.Gamma).Msg("skipping gamma")
	}

	if s.LR > 0 {
		if err := p.model.SetLearningRate(s.LR); err != nil {
			p.logger.Warn().Err(err).Msg("skipping learning rate")
		} else {
			p.state.LR = s.LR
		}
	} else {
		p.logger.Warn().Float64("lr", s.LR).Msg("skipping learning rate")
	}

	if s.EntCoef >= 0 {
		p.state.EntCoef = s.EntCoef
	} else {
		p.logger.Warn().Float64("ent_coef", s.EntCoef).
			Msg("skipping entropy coefficient")
	}

	if s.HorizonWindow != nil {
		p.horizons.Load(s.HorizonWindow)
	}
}

func (p *Policy) restoreRewards(s *checkpointer.State) {
	if s.RewardNormalizer != nil {
		if err := p.normalizer.SetState(*s.RewardNormalizer); err != nil {
			p.logger.Warn().Err(err).Msg("skipping reward normalizer")
		}
	}

	if s.LastDones == nil {
		return
	}
	if len(s.LastDones) != p.config.NumEnvs {
		p.logger.Warn().
			Int("want", p.config.NumEnvs).
			Int("have", len(s.LastDones)).
			Msg("skipping last dones")
		return
	}
	copy(p.state.LastDones, s.LastDones)
}

// restoreSelector restores the replay buffer and then the retune
// counters, whose phase is derived from the restored buffer
func (p *Policy) restoreSelector(s *checkpointer.State) {
	state := p.selector.State()
	if s.Retune != nil {
		state.RetunesCompleted = s.Retune.RetunesCompleted
		state.SkipsRemaining = s.Retune.SkipsRemaining
	} else {
		state.RetunesCompleted = s.RetunesCompleted
	}
	if state.RetunesCompleted < 0 || state.SkipsRemaining < 0 {
		p.logger.Warn().Interface("retune", state).
			Msg("skipping retune state and replay buffer")
		return
	}

	if s.ReplayBuffer != nil {
		p.restoreBuffer(s.ReplayBuffer)
	}

	if err := p.selector.Restore(state); err != nil {
		p.logger.Warn().Err(err).Msg("skipping retune state")
	}
}

func (p *Policy) restoreBuffer(blob *checkpointer.Blob) {
	buf := p.selector.Buffer()
	decoded := buf.Clone()

	err := p.codec.Decode(blob, decoded)
	switch {
	case checkpointer.IsBufferOmitted(err):
		p.logger.Warn().Msg("replay buffer was omitted from checkpoint")
		return
	case err != nil:
		p.logger.Warn().Err(err).Msg("skipping replay buffer")
		return
	}

	if err := buf.Load(decoded.Observations(), decoded.Dones(),
		decoded.Rewards(), decoded.Occupancy()); err != nil {
		p.logger.Warn().Err(err).Msg("skipping replay buffer")
		return
	}
	p.logger.Info().
		Str("strategy", string(blob.Strategy)).
		Int("occupancy", buf.Occupancy()).
		Msg("restored replay buffer")
}

var _ checkpointer.Checkpointable = (*Policy)(nil)

// Phase returns the phase of the Policy's distillation cycle
func (p *Policy) Phase() retune.Phase {
	return p.selector.Phase()
}
