// Package expreplay implements a fixed-capacity replay buffer of raw
// observations, along with the done flags and rewards needed to
// re-derive value targets for stored experience.
//
// The buffer is an owned container: data is copied in on Add and
// Load, and the buffer is explicitly emptied with Reset. Its occupancy
// only grows between resets.
package expreplay

import (
	"fmt"

	"github.com/samuelfneumann/phasic/utils/intutils"
)

// Layout describes how a Buffer arranges its transitions
type Layout string

const (
	// Stacked stores whole rollout batches in slots, with shape
	// (slots, envs, steps, *obs). Each (slot, env) pair is a lane of
	// consecutive steps.
	Stacked Layout = "Stacked"

	// Flat stores individual transitions with shape (capacity, *obs).
	// The whole buffer is treated as a single lane.
	Flat Layout = "Flat"
)

// Config describes the geometry of a Buffer
type Config struct {
	Layout Layout

	// Stacked layout
	Slots int
	Envs  int
	Steps int

	// Flat layout, in transitions
	Capacity int

	// ObsShape is the shape of a single observation, with stacked
	// frames concatenated along the last axis.
	ObsShape []int

	// FrameStack is the number of frames stacked along the last
	// observation axis, or 0 if unknown.
	FrameStack int
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c Config) Validate() error {
	switch c.Layout {
	case Stacked:
		if c.Slots < 1 || c.Envs < 1 || c.Steps < 1 {
			return fmt.Errorf("validate: stacked layout needs slots, envs "+
				"and steps >= 1, have (%v, %v, %v)", c.Slots, c.Envs, c.Steps)
		}
	case Flat:
		if c.Capacity < 1 {
			return fmt.Errorf("validate: flat layout needs capacity >= 1")
		}
	default:
		return fmt.Errorf("validate: unknown layout %q", c.Layout)
	}

	if len(c.ObsShape) == 0 {
		return fmt.Errorf("validate: observation shape must be given")
	}
	for _, d := range c.ObsShape {
		if d < 1 {
			return fmt.Errorf("validate: illegal observation shape %v",
				c.ObsShape)
		}
	}
	if c.FrameStack > 0 && c.ObsShape[len(c.ObsShape)-1]%c.FrameStack != 0 {
		return fmt.Errorf("validate: last observation axis (%v) not "+
			"divisible by frame stack (%v)", c.ObsShape[len(c.ObsShape)-1],
			c.FrameStack)
	}
	return nil
}

// Buffer is a fixed-capacity replay buffer of uint8 observations
type Buffer struct {
	config   Config
	capacity int // In transitions
	obsSize  int // Elements per observation

	obs     []uint8
	dones   []bool
	rewards []float32

	occupancy int // Transitions currently stored
}

// New returns a new, empty Buffer
func New(c Config) (*Buffer, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	c.ObsShape = append([]int(nil), c.ObsShape...)

	capacity := c.Capacity
	if c.Layout == Stacked {
		capacity = c.Slots * c.Envs * c.Steps
	}
	obsSize := intutils.Prod(c.ObsShape...)

	return &Buffer{
		config:   c,
		capacity: capacity,
		obsSize:  obsSize,
		obs:      make([]uint8, capacity*obsSize),
		dones:    make([]bool, capacity),
		rewards:  make([]float32, capacity),
	}, nil
}

// Add copies a batch of transitions into the buffer and returns the
// number of transitions stored.
//
// In the Stacked layout the batch must be exactly one rollout batch of
// envs*steps transitions, laid out env-major, and it fills the next
// free slot. In the Flat layout transitions are appended until the
// buffer is full; any transitions beyond capacity are dropped.
func (b *Buffer) Add(obs []uint8, dones []bool, rewards []float32) (int,
	error) {
	const op = "add"

	n := len(dones)
	if len(rewards) != n || len(obs) != n*b.obsSize {
		return 0, &ReplayError{Op: op, Err: errBatchShape}
	}
	if b.Full() {
		return 0, &ReplayError{Op: op, Err: errBufferFull}
	}

	if b.config.Layout == Stacked && n != b.config.Envs*b.config.Steps {
		return 0, &ReplayError{Op: op, Err: errBatchShape}
	}

	n = intutils.Min(n, b.capacity-b.occupancy)
	start := b.occupancy
	copy(b.obs[start*b.obsSize:], obs[:n*b.obsSize])
	copy(b.dones[start:], dones[:n])
	copy(b.rewards[start:], rewards[:n])
	b.occupancy += n

	return n, nil
}

// Load replaces the contents of the buffer with copies of the given
// arrays, which must span the full capacity of the buffer. If the
// arrays do not fit, the buffer is left unchanged.
func (b *Buffer) Load(obs []uint8, dones []bool, rewards []float32,
	occupancy int) error {
	if len(obs) != len(b.obs) || len(dones) != b.capacity ||
		len(rewards) != b.capacity || occupancy < 0 ||
		occupancy > b.capacity {
		return &ReplayError{Op: "load", Err: errBatchShape}
	}

	copy(b.obs, obs)
	copy(b.dones, dones)
	copy(b.rewards, rewards)
	b.occupancy = occupancy
	return nil
}

// Reset empties the buffer. Stored data is not cleared, but is no
// longer considered part of the buffer.
func (b *Buffer) Reset() {
	b.occupancy = 0
}

// Clone returns a deep copy of the buffer
func (b *Buffer) Clone() *Buffer {
	clone := *b
	clone.config.ObsShape = append([]int(nil), b.config.ObsShape...)
	clone.obs = append([]uint8(nil), b.obs...)
	clone.dones = append([]bool(nil), b.dones...)
	clone.rewards = append([]float32(nil), b.rewards...)
	return &clone
}

// Full returns whether the buffer is at capacity
func (b *Buffer) Full() bool {
	return b.occupancy == b.capacity
}

// Occupancy returns the number of transitions stored
func (b *Buffer) Occupancy() int {
	return b.occupancy
}

// SlotsFilled returns the number of filled slots in the Stacked
// layout, or the number of transitions in the Flat layout
func (b *Buffer) SlotsFilled() int {
	if b.config.Layout == Stacked {
		return b.occupancy / (b.config.Envs * b.config.Steps)
	}
	return b.occupancy
}

// Capacity returns the maximum number of transitions in the buffer
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Config returns the configuration of the buffer
func (b *Buffer) Config() Config {
	c := b.config
	c.ObsShape = append([]int(nil), b.config.ObsShape...)
	return c
}

// Layout returns the layout of the buffer
func (b *Buffer) Layout() Layout {
	return b.config.Layout
}

// Shape returns the leading shape of the buffer, excluding the
// observation shape: (slots, envs, steps) or (capacity)
func (b *Buffer) Shape() []int {
	if b.config.Layout == Stacked {
		return []int{b.config.Slots, b.config.Envs, b.config.Steps}
	}
	return []int{b.capacity}
}

// ObsShape returns the shape of a single observation
func (b *Buffer) ObsShape() []int {
	return append([]int(nil), b.config.ObsShape...)
}

// ObsSize returns the number of elements in a single observation
func (b *Buffer) ObsSize() int {
	return b.obsSize
}

// FrameStack returns the number of frames stacked in each observation
func (b *Buffer) FrameStack() int {
	return b.config.FrameStack
}

// Lanes returns the number of lanes of consecutive steps and the
// number of steps in each lane
func (b *Buffer) Lanes() (lanes, steps int) {
	if b.config.Layout == Stacked {
		return b.config.Slots * b.config.Envs, b.config.Steps
	}
	return 1, b.capacity
}

// ByteSize returns the size of the observation storage in bytes
func (b *Buffer) ByteSize() int64 {
	return int64(len(b.obs))
}

// Observations returns the observation storage over the full
// capacity. The returned slice aliases the buffer and must not be
// retained across calls that mutate the buffer.
func (b *Buffer) Observations() []uint8 {
	return b.obs
}

// Observation returns the i-th stored observation. The returned slice
// aliases the buffer.
func (b *Buffer) Observation(i int) []uint8 {
	return b.obs[i*b.obsSize : (i+1)*b.obsSize]
}

// Dones returns the done flags over the full capacity. The returned
// slice aliases the buffer.
func (b *Buffer) Dones() []bool {
	return b.dones
}

// Rewards returns the rewards over the full capacity. The returned
// slice aliases the buffer.
func (b *Buffer) Rewards() []float32 {
	return b.rewards
}

// String returns the string representation of the buffer
func (b *Buffer) String() string {
	return fmt.Sprintf("{%v buffer %v x %v: %v/%v transitions}",
		b.config.Layout, b.Shape(), b.config.ObsShape, b.occupancy,
		b.capacity)
}
