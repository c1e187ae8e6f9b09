package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/samuelfneumann/phasic/experiment"
	"github.com/samuelfneumann/phasic/experiment/checkpointer"
)

// Store backends
const (
	sqliteStore = "sqlite"
	fileStore   = "file"
)

// Names of the checkpoints written by the stores
const (
	databaseName  = "checkpoints.db"
	fileExtension = ".bin"
)

var (
	trainConfigFile string
	trainEnvs       int
	trainSteps      int
	trainBatches    int
	trainSeed       uint64
	trainStore      string
	trainDir        string
	trainRun        string
	trainEvery      int
	trainResume     bool
	trainCeiling    int64
	trainEpisodes   string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train an agent",
	Long: `Train a phasic policy gradient agent on a vectorized corridor
environment of stacked frames, checkpointing the training state every
few batches.

The experiment is read from a JSON configuration file if one is given,
and otherwise built from the default configuration and the flags.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}

		config, err := trainConfig()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return train(ctx, config, logger)
	},
}

// trainConfig returns the experiment configuration described by the
// command line
func trainConfig() (experiment.Config, error) {
	var config experiment.Config
	if trainConfigFile != "" {
		data, err := os.ReadFile(trainConfigFile)
		if err != nil {
			return config, errors.Wrap(err, "could not read configuration")
		}
		if err := json.Unmarshal(data, &config); err != nil {
			return config, errors.Wrap(err, "could not parse configuration")
		}
		return config, nil
	}

	config, err := experiment.DefaultConfig(trainEnvs, trainSteps,
		trainBatches)
	if err != nil {
		return config, err
	}
	config.EnvConf.Seed = trainSeed
	config.EnvConf.RandomStarts = true
	config.AgentConf.Seed = trainSeed
	if trainCeiling > 0 {
		config.AgentConf.CheckpointCeiling = trainCeiling
	}
	return config, nil
}

// openStore opens the checkpoint store of the given kind in dir. The
// run ID selects the run of a SQLite store; a new one is generated if
// it is empty. File stores hold a single run and ignore it.
func openStore(kind, dir, run string) (checkpointer.Store, error) {
	switch kind {
	case sqliteStore:
		return checkpointer.NewSQLiteStore(filepath.Join(dir, databaseName),
			run)

	case fileStore:
		name := checkpointer.FileTimer("checkpoint")
		return checkpointer.NewFileStore(dir, fileExtension, name)

	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}

func train(ctx context.Context, config experiment.Config,
	logger zerolog.Logger) error {
	e, err := config.CreateExp(logger)
	if err != nil {
		return err
	}

	store, err := openStore(trainStore, trainDir, trainRun)
	if err != nil {
		return err
	}
	defer store.Close()
	if s, ok := store.(*checkpointer.SQLiteStore); ok {
		fmt.Printf("Run ID: %s\n", s.RunID())
	}

	if trainResume {
		state, err := store.Latest(ctx)
		switch {
		case checkpointer.IsNotFound(err):
			logger.Warn().Msg("no checkpoint to resume from, starting anew")
		case err != nil:
			return errors.Wrap(err, "could not load checkpoint")
		default:
			if err := e.Restore(state); err != nil {
				return err
			}
		}
	}

	if trainEvery > 0 {
		cp, err := checkpointer.NewNStep(trainEvery, e.Policy(), store,
			logger)
		if err != nil {
			return err
		}
		e.Register(cp)
	}

	runErr := e.Run(ctx)

	// Save what was learned even if interrupted
	if trainEpisodes != "" {
		if err := e.Save(trainEpisodes); err != nil {
			return err
		}
	}
	state, err := e.Policy().Snapshot()
	if err != nil {
		return err
	}
	entry, err := store.Save(context.Background(), state)
	if err != nil {
		return errors.Wrap(err, "could not save final checkpoint")
	}
	logger.Info().
		Str("id", entry.ID).
		Int("timesteps", entry.Timesteps).
		Int("episodes", e.Episodes().Len()).
		Msg("saved final checkpoint")

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func init() {
	flags := trainCmd.Flags()
	flags.StringVarP(&trainConfigFile, "config", "c", "",
		"Experiment configuration file (JSON)")
	flags.IntVar(&trainEnvs, "envs", 8, "Number of environments")
	flags.IntVar(&trainSteps, "steps", 128, "Steps per environment per batch")
	flags.IntVarP(&trainBatches, "batches", "b", 200, "Number of batches")
	flags.Uint64Var(&trainSeed, "seed", 1, "Random seed")
	flags.StringVar(&trainStore, "store", sqliteStore,
		"Checkpoint store (sqlite, file)")
	flags.StringVarP(&trainDir, "dir", "d", "checkpoints",
		"Checkpoint directory")
	flags.StringVar(&trainRun, "run", "",
		"Run ID of the SQLite store, generated if empty")
	flags.IntVar(&trainEvery, "every", 25,
		"Checkpoint every this many batches, 0 to disable")
	flags.BoolVar(&trainResume, "resume", false,
		"Resume from the latest checkpoint of the run")
	flags.Int64Var(&trainCeiling, "ceiling", 0,
		"Replay buffer checkpoint size ceiling in bytes, 0 for the default")
	flags.StringVar(&trainEpisodes, "episodes", "",
		"File to save the completed episodes to")
}
