package experiment

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/phasic/agent/ppg"
	"github.com/samuelfneumann/phasic/environment"
	"github.com/samuelfneumann/phasic/experiment/checkpointer"
	"github.com/samuelfneumann/phasic/experiment/trackers"
)

// Online is an Experiment that trains a policy online on the batches
// it collects. Actions are sampled uniformly at random, which is the
// policy of the linear model trained here.
type Online struct {
	env    environment.VecEnv
	policy *ppg.Policy
	model  ppg.Model

	numSteps int
	batches  int
	batch    int

	obs          []uint8 // Current observation of each environment
	episodes     *trackers.Episodes
	checkpointer []checkpointer.Checkpointer

	rng    *rand.Rand
	logger zerolog.Logger
}

// NewOnline creates and returns a new online experiment on a given
// environment with a given policy, which trains model. The batches
// parameter determines how many batches of numSteps steps of every
// environment the experiment is run for, counting the batches the
// policy has already been trained on.
func NewOnline(env environment.VecEnv, policy *ppg.Policy, model ppg.Model,
	numSteps, batches int, seed uint64, logger zerolog.Logger) *Online {
	return &Online{
		env:      env,
		policy:   policy,
		model:    model,
		numSteps: numSteps,
		batches:  batches,
		batch:    policy.Timesteps() / (numSteps * env.NumEnvs()),
		obs:      env.Reset(),
		episodes: &trackers.Episodes{},
		rng:      rand.New(rand.NewSource(seed)),
		logger:   logger.With().Str("component", "experiment").Logger(),
	}
}

// Register registers a checkpointer.Checkpointer with an Experiment so
// that the policy is checkpointed as the experiment runs
func (o *Online) Register(c checkpointer.Checkpointer) {
	o.checkpointer = append(o.checkpointer, c)
}

// Restore restores the policy from a checkpoint, resuming the batch
// count from the timesteps it was trained on
func (o *Online) Restore(s *checkpointer.State) error {
	if err := o.policy.Restore(s); err != nil {
		return errors.Wrap(err, "could not restore policy")
	}
	o.batch = o.policy.Timesteps() / (o.numSteps * o.env.NumEnvs())
	o.logger.Info().Int("batch", o.batch).Msg("resuming")
	return nil
}

// Policy returns the policy trained by the experiment
func (o *Online) Policy() *ppg.Policy {
	return o.policy
}

// Episodes returns the episodes completed so far
func (o *Online) Episodes() *trackers.Episodes {
	return o.episodes
}

// Batch returns the number of batches run
func (o *Online) Batch() int {
	return o.batch
}

// RunBatch collects a batch of rollouts and trains the policy on it
func (o *Online) RunBatch(ctx context.Context) (ppg.Stats, error) {
	samples, err := o.collect()
	if err != nil {
		return ppg.Stats{}, err
	}

	stats, err := o.policy.LearnOnBatch(samples)
	if err != nil {
		return ppg.Stats{}, errors.Wrap(err, "could not learn on batch")
	}
	o.batch++

	for _, c := range o.checkpointer {
		if _, err := c.Checkpoint(ctx, o.batch); err != nil {
			return stats, errors.Wrapf(err, "could not checkpoint batch %v",
				o.batch)
		}
	}

	o.logger.Info().
		Int("batch", o.batch).
		Int("timesteps", stats.Timesteps).
		Int("episodes", stats.Episodes).
		Float64("mean_return", stats.MeanReturn).
		Float64("best_reward", stats.BestReward).
		Bool("retuned", stats.Retuned).
		Msg("batch done")
	return stats, nil
}

// Run runs the experiment until the batch limit is reached, the
// policy's budget is exhausted or ctx is cancelled
func (o *Online) Run(ctx context.Context) error {
	for o.batch < o.batches {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats, err := o.RunBatch(ctx)
		if err != nil {
			return err
		}
		if stats.Stopped {
			o.logger.Info().
				Int("batch", o.batch).
				Float64("best_reward", stats.BestReward).
				Msg("budget exhausted, stopping")
			return nil
		}
	}
	return nil
}

// Save saves the episodes tracked to filename
func (o *Online) Save(filename string) error {
	return o.episodes.Save(filename)
}

// collect steps every environment numSteps times and lays the
// transitions out env-major
func (o *Online) collect() (*ppg.Samples, error) {
	envs := o.env.NumEnvs()
	actions := o.env.Actions()
	n := envs * o.numSteps
	obsSize := len(o.obs) / envs

	s := &ppg.Samples{
		Obs:        make([]uint8, n*obsSize),
		NewObs:     make([]uint8, n*obsSize),
		Actions:    make([]int, n),
		Rewards:    make([]float32, n),
		Dones:      make([]bool, n),
		Values:     make([]float32, n),
		ActionLogp: make([]float32, n),
		Infos:      make([]ppg.Info, n),
	}
	logp := float32(-math.Log(float64(actions)))

	stepActions := make([]int, envs)
	for t := 0; t < o.numSteps; t++ {
		values, _, err := o.model.Predict(o.obs, envs)
		if err != nil {
			return nil, errors.Wrap(err, "could not predict values")
		}
		for env := range stepActions {
			stepActions[env] = o.rng.Intn(actions)
		}

		tr, err := o.env.Step(stepActions)
		if err != nil {
			return nil, errors.Wrap(err, "could not step environment")
		}

		for env := 0; env < envs; env++ {
			i := env*o.numSteps + t
			copy(s.Obs[i*obsSize:], o.obs[env*obsSize:(env+1)*obsSize])
			copy(s.NewObs[i*obsSize:], tr.Obs[env*obsSize:(env+1)*obsSize])
			s.Actions[i] = stepActions[env]
			s.Rewards[i] = tr.Rewards[env]
			s.Dones[i] = tr.Dones[env]
			s.Values[i] = values[env]
			s.ActionLogp[i] = logp

			if ep := tr.Episodes[env]; ep != nil {
				s.Infos[i].Episode = &ppg.EpisodeSummary{
					R: ep.Return,
					L: ep.Length,
				}
				o.episodes.Track(ep.Return, ep.Length)
			}
		}
		o.obs = tr.Obs
	}
	return s, nil
}

var _ Experiment = (*Online)(nil)
