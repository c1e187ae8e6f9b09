// Package experiment implements functionality for running an experiment:
// collecting rollout batches from a vectorized environment, training a
// policy on them, and checkpointing the policy as training progresses.
package experiment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/samuelfneumann/phasic/agent/ppg"
	"github.com/samuelfneumann/phasic/environment"
	"github.com/samuelfneumann/phasic/experiment/checkpointer"
	"github.com/samuelfneumann/phasic/initwfn"
	"github.com/samuelfneumann/phasic/network"
	"github.com/samuelfneumann/phasic/solver"
	"github.com/samuelfneumann/phasic/utils/intutils"
)

// Experiment outlines structs that can run experiments. The Run()
// method runs batches until the batch limit is reached or the policy
// signals that its budget is exhausted, and RunBatch() runs a single
// batch.
//
// Completed episodes are tracked in RAM, to be saved to disk with
// Save() once the experiment has been run. Checkpointers registered
// with an Experiment are called after every batch.
type Experiment interface {
	Run(ctx context.Context) error
	RunBatch(ctx context.Context) (ppg.Stats, error)

	// Save all tracked episodes to disk
	Save(filename string) error

	// Adds a new checkpointer.Checkpointer to the (possibly already
	// running) experiment
	Register(c checkpointer.Checkpointer)
}

type Type string

const (
	OnlineExp Type = "OnlineExperiment"
)

// Config represents a configuration of an experiment
type Config struct {
	Type
	Batches   int
	EnvConf   environment.CorridorConfig
	AgentConf ppg.Config
	Solver    *solver.Solver
	InitWFn   *initwfn.InitWFn
}

// DefaultConfig returns the default configuration of an online
// experiment with the given rollout geometry
func DefaultConfig(numEnvs, numSteps, batches int) (Config, error) {
	env := environment.DefaultCorridorConfig(numEnvs)

	s, err := solver.NewDefaultAdam(1e-3, 1)
	if err != nil {
		return Config{}, err
	}
	init, err := initwfn.NewZeroes()
	if err != nil {
		return Config{}, err
	}

	agent := ppg.DefaultConfig(numEnvs, numSteps, []int{2 * env.Length}, 2)
	agent.FrameStack = 2
	agent.MaxReward = env.GoalReward

	return Config{
		Type:      OnlineExp,
		Batches:   batches,
		EnvConf:   env,
		AgentConf: agent,
		Solver:    s,
		InitWFn:   init,
	}, nil
}

// CreateExp creates the experiment described by the configuration. The
// rollout geometry of the agent is taken from the environment.
func (c Config) CreateExp(logger zerolog.Logger) (*Online, error) {
	if c.Type != OnlineExp {
		return nil, fmt.Errorf("createExp: no such experiment type %v",
			c.Type)
	}
	if c.Solver == nil || c.InitWFn == nil {
		return nil, fmt.Errorf("createExp: solver and initializer must " +
			"be given")
	}

	env, err := environment.NewCorridor(c.EnvConf)
	if err != nil {
		return nil, fmt.Errorf("createExp: could not create environment: "+
			"%v", err)
	}

	agentConf := c.AgentConf
	agentConf.NumEnvs = env.NumEnvs()
	agentConf.ObsShape = env.ObsShape()
	agentConf.FrameStack = env.FrameStack()
	agentConf.Actions = env.Actions()

	critic, err := network.NewLinearCritic(intutils.Prod(agentConf.ObsShape...),
		c.InitWFn, c.Solver)
	if err != nil {
		return nil, fmt.Errorf("createExp: could not create critic: %v", err)
	}
	model, err := ppg.NewLinearModel(critic, agentConf.Actions)
	if err != nil {
		return nil, fmt.Errorf("createExp: %v", err)
	}

	policy, err := ppg.New(agentConf, model, logger)
	if err != nil {
		return nil, fmt.Errorf("createExp: could not create policy: %v", err)
	}

	return NewOnline(env, policy, model, agentConf.NumSteps, c.Batches,
		agentConf.Seed, logger), nil
}
