// Package retune implements the selector which decides when an
// auxiliary distillation phase should run, and which supplies
// minibatches of stored experience to that phase.
//
// A Selector cycles through three phases. While Filling, each rollout
// batch is copied into a replay buffer (after an initial number of
// skipped batches). Once the buffer is full the Selector is Ready and
// signals that distillation should begin. While Distilling, minibatches
// are drawn from the buffer. Completing distillation empties the
// buffer and returns the Selector to Filling, until the configured
// number of retunes has been reached, after which the Selector never
// triggers again.
package retune

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/phasic/buffer/expreplay"
)

// Phase is a phase of a Selector's fill/distill cycle
type Phase string

const (
	Filling    Phase = "Filling"
	Ready      Phase = "Ready"
	Distilling Phase = "Distilling"
)

var errNotReady = errors.New("buffer not ready for distillation")

// Config configures a Selector
type Config struct {
	Buffer expreplay.Config

	// Skips is the number of batches ignored before the buffer starts
	// filling, re-armed after every retune. In the Stacked layout it is
	// rounded up to a multiple of the number of slots.
	Skips int

	// NumRetunes is the total number of retunes to run
	NumRetunes int

	Seed uint64
}

// State is the serializable state of a Selector
type State struct {
	Phase            Phase
	SkipsRemaining   int
	SlotsFilled      int
	RetunesCompleted int
	NumRetunesTarget int
}

// Selector owns a replay buffer and tracks the distillation cycle
type Selector struct {
	buffer *expreplay.Buffer
	skips  int
	state  State
	rng    *rand.Rand
	logger zerolog.Logger
}

// New returns a new Selector with an empty buffer
func New(c Config, logger zerolog.Logger) (*Selector, error) {
	if c.Skips < 0 || c.NumRetunes < 0 {
		return nil, fmt.Errorf("new: skips and retunes must be >= 0")
	}

	buffer, err := expreplay.New(c.Buffer)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	skips := c.Skips
	if c.Buffer.Layout == expreplay.Stacked {
		slots := c.Buffer.Slots
		skips += (slots - skips%slots) % slots
	}

	return &Selector{
		buffer: buffer,
		skips:  skips,
		state: State{
			Phase:            Filling,
			SkipsRemaining:   skips,
			NumRetunesTarget: c.NumRetunes,
		},
		rng:    rand.New(rand.NewSource(c.Seed)),
		logger: logger.With().Str("component", "retune_selector").Logger(),
	}, nil
}

// Update records a rollout batch and returns whether distillation
// should run now. It returns true exactly once per fill cycle, on the
// batch which fills the buffer. Batches are ignored while skips
// remain, while the buffer is full, and once all retunes are done.
func (s *Selector) Update(obs []uint8, dones []bool,
	rewards []float32) bool {
	if s.Disabled() || s.state.Phase != Filling {
		return false
	}

	if s.state.SkipsRemaining > 0 {
		s.state.SkipsRemaining--
		return false
	}

	if _, err := s.buffer.Add(obs, dones, rewards); err != nil {
		s.logger.Warn().Err(err).Msg("could not add batch to replay buffer")
		return false
	}
	s.state.SlotsFilled = s.buffer.SlotsFilled()

	if !s.buffer.Full() {
		return false
	}

	s.state.Phase = Ready
	s.logger.Info().
		Int("retune", s.state.RetunesCompleted+1).
		Int("of", s.state.NumRetunesTarget).
		Msg("replay buffer full, distillation ready")
	return true
}

// MakeMinibatches returns a lazy sequence of disjoint minibatches
// covering the whole buffer in a freshly shuffled order. It may be
// called once per distillation epoch.
//
// The pi targets must have the buffer's leading shape followed by the
// number of actions, and the return targets the buffer's leading
// shape. In the Stacked layout size counts lanes of consecutive steps
// per minibatch, and in the Flat layout it counts transitions.
func (s *Selector) MakeMinibatches(piTargets, returnTargets *tensor.Dense,
	size int) (*Minibatches, error) {
	const op = "makeMinibatches"

	if s.state.Phase == Filling {
		return nil, fmt.Errorf("%v: %w", op, errNotReady)
	}
	if size < 1 {
		return nil, fmt.Errorf("%v: minibatch size must be >= 1", op)
	}

	mb, err := newMinibatches(s.buffer, piTargets, returnTargets, size,
		s.rng)
	if err != nil {
		return nil, fmt.Errorf("%v: %v", op, err)
	}

	s.state.Phase = Distilling
	return mb, nil
}

// RetuneDone ends the distillation phase: the buffer is emptied, the
// skip countdown is re-armed and the number of completed retunes is
// incremented.
func (s *Selector) RetuneDone() error {
	if s.state.Phase == Filling {
		return fmt.Errorf("retuneDone: %w", errNotReady)
	}

	s.buffer.Reset()
	s.state.Phase = Filling
	s.state.SlotsFilled = 0
	s.state.SkipsRemaining = s.skips
	s.state.RetunesCompleted++

	event := s.logger.Info().Int("retunes_completed",
		s.state.RetunesCompleted)
	if s.Disabled() {
		event.Msg("all retunes completed, retuning disabled")
	} else {
		event.Msg("retune done")
	}
	return nil
}

// Disabled returns whether all retunes have been completed
func (s *Selector) Disabled() bool {
	return s.state.RetunesCompleted >= s.state.NumRetunesTarget
}

// Phase returns the current phase
func (s *Selector) Phase() Phase {
	return s.state.Phase
}

// Buffer returns the replay buffer owned by the Selector
func (s *Selector) Buffer() *expreplay.Buffer {
	return s.buffer
}

// State returns a copy of the Selector's state
func (s *Selector) State() State {
	return s.state
}

// Restore restores the Selector's counters from a saved state. The
// buffer contents must already have been restored (or left empty);
// the phase and filled slots are derived from the buffer, and the
// number of retunes to run is kept from the Selector's configuration.
func (s *Selector) Restore(state State) error {
	if state.RetunesCompleted < 0 || state.SkipsRemaining < 0 {
		return fmt.Errorf("restore: illegal state %+v", state)
	}

	s.state.RetunesCompleted = state.RetunesCompleted
	s.state.SkipsRemaining = state.SkipsRemaining
	if s.state.SkipsRemaining > s.skips {
		s.state.SkipsRemaining = s.skips
	}
	s.state.SlotsFilled = s.buffer.SlotsFilled()

	s.state.Phase = Filling
	if s.buffer.Full() && !s.Disabled() {
		s.state.Phase = Ready
	}
	return nil
}

// IsNotReady returns whether an error reports that the Selector was
// asked for distillation data before its buffer was full
func IsNotReady(err error) bool {
	return errors.Is(err, errNotReady)
}
