package checkpointer

import (
	"fmt"

	"github.com/samuelfneumann/phasic/buffer/expreplay"
)

// Strategy is the tag of a Blob, naming how its replay buffer is
// stored
type Strategy string

const (
	// Raw stores a copy of all observations
	Raw Strategy = "Raw"

	// Sliced stores each frame of a 2-frame stacked buffer only once,
	// along with a mask of which stacked frames were duplicates
	Sliced Strategy = "Sliced"

	// Compressed stores the Sliced payload deflated
	Compressed Strategy = "Compressed"

	// Failed stores nothing: no strategy fit the size ceiling
	Failed Strategy = "Failed"
)

// Blob is a replay buffer encoded for a checkpoint. It is a tagged
// union: Strategy determines how Obs is interpreted. Dones and Rewards
// are stored unencoded with every strategy except Failed.
type Blob struct {
	Strategy Strategy

	Config    expreplay.Config
	Occupancy int

	// Obs is the observation payload: the raw observations for Raw,
	// the sliced frames for Sliced, and the deflated sliced frames for
	// Compressed
	Obs []uint8

	// Match is the duplicate frame mask of the Sliced and Compressed
	// strategies
	Match FrameMatch

	Dones   []bool
	Rewards []float32
}

// Size returns the number of bytes of encoded buffer data in the blob
func (b *Blob) Size() int64 {
	return int64(len(b.Obs) + len(b.Match.Mask))
}

// String implements the fmt.Stringer interface
func (b *Blob) String() string {
	return fmt.Sprintf("{%v blob: %v bytes, %v/%v transitions}", b.Strategy,
		b.Size(), b.Occupancy, len(b.Dones))
}
