package retune

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/phasic/buffer/expreplay"
	"github.com/samuelfneumann/phasic/utils/intutils"
)

// Minibatch is a minibatch of stored experience with distillation
// targets
type Minibatch struct {
	// Indices are the buffer positions of the transitions in the
	// minibatch, in the order they appear in the other fields.
	Indices []int

	Obs       []uint8   // len(Indices) * observation size
	Returns   []float32 // len(Indices)
	PiTargets []float32 // len(Indices) * Actions
	Actions   int
}

// Len returns the number of transitions in the minibatch
func (m Minibatch) Len() int {
	return len(m.Indices)
}

// Minibatches is a finite, non-restartable sequence of disjoint
// minibatches over a replay buffer, drawn in a random order fixed at
// creation. Use it as:
//
//	for mb.Next() {
//		batch := mb.Batch()
//		...
//	}
type Minibatches struct {
	buffer  *expreplay.Buffer
	pi      []float32
	returns []float32
	actions int

	order []int // Shuffled units
	unit  int   // Consecutive transitions per unit
	size  int   // Units per minibatch
	pos   int

	current Minibatch
}

// newMinibatches validates the targets and shuffles the buffer's units
func newMinibatches(buffer *expreplay.Buffer, piTargets,
	returnTargets *tensor.Dense, size int,
	rng *rand.Rand) (*Minibatches, error) {
	if piTargets == nil || returnTargets == nil {
		return nil, fmt.Errorf("targets must not be nil")
	}
	if piTargets.Dtype() != tensor.Float32 ||
		returnTargets.Dtype() != tensor.Float32 {
		return nil, fmt.Errorf("targets must be float32")
	}

	leading := tensor.Shape(buffer.Shape())
	if !leading.Eq(returnTargets.Shape()) {
		return nil, fmt.Errorf("illegal return targets shape \n\twant(%v)"+
			"\n\thave(%v)", leading, returnTargets.Shape())
	}

	piShape := piTargets.Shape()
	if piShape.Dims() != leading.Dims()+1 ||
		!leading.Eq(piShape[:leading.Dims()]) {
		return nil, fmt.Errorf("illegal pi targets shape \n\twant(%v + "+
			"[actions])\n\thave(%v)", leading, piShape)
	}

	var units, unit int
	if buffer.Layout() == expreplay.Stacked {
		units, unit = buffer.Lanes()
	} else {
		units, unit = buffer.Occupancy(), 1
	}

	return &Minibatches{
		buffer:  buffer,
		pi:      piTargets.Data().([]float32),
		returns: returnTargets.Data().([]float32),
		actions: piShape[len(piShape)-1],
		order:   rng.Perm(units),
		unit:    unit,
		size:    size,
	}, nil
}

// Next advances to the next minibatch, returning false once all
// minibatches have been consumed
func (m *Minibatches) Next() bool {
	if m.pos >= len(m.order) {
		return false
	}

	stop := intutils.Min(m.pos+m.size, len(m.order))
	units := m.order[m.pos:stop]
	m.pos = stop

	n := len(units) * m.unit
	obsSize := m.buffer.ObsSize()
	batch := Minibatch{
		Indices:   make([]int, 0, n),
		Obs:       make([]uint8, 0, n*obsSize),
		Returns:   make([]float32, 0, n),
		PiTargets: make([]float32, 0, n*m.actions),
		Actions:   m.actions,
	}

	for _, u := range units {
		for i := u * m.unit; i < (u+1)*m.unit; i++ {
			batch.Indices = append(batch.Indices, i)
			batch.Obs = append(batch.Obs, m.buffer.Observation(i)...)
			batch.Returns = append(batch.Returns, m.returns[i])
			batch.PiTargets = append(batch.PiTargets,
				m.pi[i*m.actions:(i+1)*m.actions]...)
		}
	}

	m.current = batch
	return true
}

// Batch returns the current minibatch
func (m *Minibatches) Batch() Minibatch {
	return m.current
}

// Len returns the total number of minibatches in the sequence
func (m *Minibatches) Len() int {
	return intutils.CeilDiv(len(m.order), m.size)
}
