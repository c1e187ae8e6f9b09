package checkpointer

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// nStep implements checkpointing every N batches
type nStep struct {
	interval int
	object   Checkpointable
	store    Store
	logger   zerolog.Logger
}

// NewNStep returns a checkpointer that saves object to store every n
// batches
func NewNStep(n int, object Checkpointable, store Store,
	logger zerolog.Logger) (Checkpointer, error) {
	if n < 1 {
		return nil, fmt.Errorf("newNStep: illegal interval \n\twant(> 0)"+
			"\n\thave(%v)", n)
	}
	return &nStep{
		interval: n,
		object:   object,
		store:    store,
		logger:   logger.With().Str("component", "checkpointer").Logger(),
	}, nil
}

// Checkpoint implements the Checkpointer interface
func (n *nStep) Checkpoint(ctx context.Context, batch int) (bool, error) {
	if batch%n.interval != 0 {
		return false, nil
	}

	state, err := n.object.Snapshot()
	if err != nil {
		return false, errors.Wrap(err, "could not snapshot state")
	}

	entry, err := n.store.Save(ctx, state)
	if err != nil {
		return false, errors.Wrap(err, "could not save checkpoint")
	}

	n.logger.Info().
		Str("id", entry.ID).
		Int("batch", batch).
		Int("timesteps", entry.Timesteps).
		Str("buffer", string(entry.Strategy)).
		Int64("bytes", entry.Size).
		Msg("saved checkpoint")
	return true, nil
}
