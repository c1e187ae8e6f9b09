package checkpointer

import (
	"context"
	"time"
)

// Entry describes a stored checkpoint
type Entry struct {
	ID        string
	RunID     string
	Timesteps int
	Strategy  Strategy // Strategy of the replay buffer blob, if any
	Size      int64    // Bytes
	CreatedAt time.Time
}

// Store saves and loads checkpoints
type Store interface {
	// Save stores a checkpoint and returns its entry
	Save(ctx context.Context, s *State) (Entry, error)

	// Load loads the checkpoint with the given ID
	Load(ctx context.Context, id string) (*State, error)

	// Latest loads the most recently saved checkpoint
	Latest(ctx context.Context) (*State, error)

	// List lists the stored checkpoints, oldest first
	List(ctx context.Context) ([]Entry, error)

	Close() error
}

func strategyOf(s *State) Strategy {
	if s.ReplayBuffer == nil {
		return ""
	}
	return s.ReplayBuffer.Strategy
}
