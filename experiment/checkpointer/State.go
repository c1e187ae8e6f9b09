package checkpointer

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/pkg/errors"

	"github.com/samuelfneumann/phasic/network"
	"github.com/samuelfneumann/phasic/normalize"
	"github.com/samuelfneumann/phasic/retune"
)

// State is the state dictionary of a training run. Fields which are
// nil were not captured and are skipped on restore.
type State struct {
	TimeElapsed    time.Duration
	TimestepsTotal int

	// Weights are the current weights of the model
	Weights network.Weights

	BestWeights   network.Weights
	BestReward    float64
	BestTimesteps int
	RewardWindow  []float64

	Gamma   float64
	LR      float64
	EntCoef float64

	RewardNormalizer *normalize.State
	LastDones        []bool

	// HorizonWindow holds the lengths of recent episodes which reached
	// the maximum reward
	HorizonWindow []float64

	RetunesCompleted int
	Retune           *retune.State
	ReplayBuffer     *Blob
}

// Marshal encodes the state with gob
func (s *State) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, errors.Wrap(err, "could not encode state")
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a state encoded with Marshal
func Unmarshal(data []byte) (*State, error) {
	var s State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "could not decode state")
	}
	return &s, nil
}

// Checkpointable is an object whose state can be captured in a State
// and restored from one
type Checkpointable interface {
	Snapshot() (*State, error)
	Restore(*State) error
}
