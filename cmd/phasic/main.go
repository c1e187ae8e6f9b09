// Command phasic trains phasic policy gradient agents on synthetic
// frame-stacked environments and inspects their checkpoints.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	logLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "phasic",
	Short: "Phasic policy gradient training statistics engine",
	Long: `phasic trains a phasic policy gradient agent on a synthetic
vectorized environment of stacked frames.

It provides:
  - Reward normalization and adaptive discounting
  - Auxiliary distillation phases over a replay of past rollouts
  - A time and step budget which restores the best model seen
  - Checkpoints of the full training state, stored on disk or in SQLite`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// newLogger returns a console logger at the level given on the command
// line
func newLogger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("illegal log level %q", logLevel)
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger(), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (debug, info, warn, error)")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(checkpointsCmd)
}
