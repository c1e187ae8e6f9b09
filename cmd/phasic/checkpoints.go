package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/samuelfneumann/phasic/experiment/checkpointer"
)

var (
	checkpointsStore string
	checkpointsDir   string
	checkpointsRun   string
	checkpointsID    string
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Checkpoint commands",
	Long: `Commands for listing and inspecting the checkpoints written by
train, from either the SQLite or the file store.`,
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints",
	Long: `List the checkpoints of a run. With the SQLite store and no run,
the checkpoints of every run are listed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(checkpointsStore, checkpointsDir,
			checkpointsRun)
		if err != nil {
			return err
		}
		defer store.Close()

		return listCheckpoints(cmd.Context(), cmd.OutOrStdout(), store,
			checkpointsRun == "")
	},
}

var checkpointsInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect a checkpoint",
	Long: `Print a summary of the training state stored in a checkpoint.
The SQLite store needs the run to be given with --run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkpointsStore == sqliteStore && checkpointsRun == "" {
			return fmt.Errorf("a run ID must be given with --run")
		}
		store, err := openStore(checkpointsStore, checkpointsDir,
			checkpointsRun)
		if err != nil {
			return err
		}
		defer store.Close()

		return inspectCheckpoint(cmd.Context(), cmd.OutOrStdout(), store,
			checkpointsID)
	},
}

// listCheckpoints writes a table of the checkpoints in store. If all
// is set and the store holds several runs, every run is listed.
func listCheckpoints(ctx context.Context, out io.Writer,
	store checkpointer.Store, all bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var entries []checkpointer.Entry
	var err error
	if s, ok := store.(*checkpointer.SQLiteStore); ok && all {
		entries, err = s.ListAll(ctx)
	} else {
		entries, err = store.List(ctx)
	}
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No checkpoints found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRUN\tTIMESTEPS\tBUFFER\tBYTES\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\n", e.ID, orDash(e.RunID),
			e.Timesteps, orDash(string(e.Strategy)), e.Size,
			e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

// inspectCheckpoint writes a JSON summary of the checkpoint with the
// given ID, or of the latest checkpoint if id is empty
func inspectCheckpoint(ctx context.Context, out io.Writer,
	store checkpointer.Store, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var state *checkpointer.State
	var err error
	if id == "" {
		state, err = store.Latest(ctx)
	} else {
		state, err = store.Load(ctx, id)
	}
	if err != nil {
		return err
	}

	output, err := json.MarshalIndent(summarize(state), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(output))
	return nil
}

func summarize(state *checkpointer.State) map[string]interface{} {
	summary := map[string]interface{}{
		"timesteps":         state.TimestepsTotal,
		"timeElapsed":       state.TimeElapsed.String(),
		"bestReward":        state.BestReward,
		"bestTimesteps":     state.BestTimesteps,
		"gamma":             state.Gamma,
		"lr":                state.LR,
		"entCoef":           state.EntCoef,
		"retunesCompleted":  state.RetunesCompleted,
		"rewardWindowSize":  len(state.RewardWindow),
		"horizonWindowSize": len(state.HorizonWindow),
	}
	if state.Retune != nil {
		summary["retunePhase"] = state.Retune.Phase
		summary["slotsFilled"] = state.Retune.SlotsFilled
	}
	if state.ReplayBuffer != nil {
		summary["replayBuffer"] = state.ReplayBuffer.String()
	}
	if math.IsInf(state.BestReward, 0) {
		summary["bestReward"] = nil
	}
	return summary
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	flags := checkpointsCmd.PersistentFlags()
	flags.StringVar(&checkpointsStore, "store", sqliteStore,
		"Checkpoint store (sqlite, file)")
	flags.StringVarP(&checkpointsDir, "dir", "d", "checkpoints",
		"Checkpoint directory")
	flags.StringVar(&checkpointsRun, "run", "", "Run ID of the SQLite store")

	checkpointsInspectCmd.Flags().StringVar(&checkpointsID, "id", "",
		"Checkpoint ID, the latest of the run if empty")

	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsInspectCmd)
}
