// Package checkpointer implements checkpointing of training runs: the
// state dictionary of a run, the size-bounded encoding of its replay
// buffer, the stores checkpoints are saved in, and the Checkpointers
// which decide when to save them.
package checkpointer

import "context"

// Checkpointer checkpoints a Checkpointable object after training
// batches
type Checkpointer interface {
	// Checkpoint is called after each batch, numbered from 1, and
	// returns whether a checkpoint was saved
	Checkpoint(ctx context.Context, batch int) (bool, error)
}
