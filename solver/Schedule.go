package solver

import (
	"fmt"
	"math"
)

// ScheduleType describes how a Schedule anneals a value
type ScheduleType string

// Available schedule types
const (
	Constant    ScheduleType = "None"
	Linear      ScheduleType = "Linear"
	Exponential ScheduleType = "Exponential"
)

// DefaultDecay is the per-batch multiplier of an Exponential schedule
// whose Decay is unset
const DefaultDecay = 0.997

// Schedule anneals a hyperparameter, such as a learning rate or an
// entropy coefficient, as training progresses.
//
// A Linear schedule interpolates from Initial to Final over Total
// timesteps and stays at Final afterwards. An Exponential schedule
// multiplies the current value by Decay once per call, independent of
// the number of timesteps. A Constant schedule never changes the value.
type Schedule struct {
	Type    ScheduleType
	Initial float64
	Final   float64
	Decay   float64
	Total   int
}

// Validate returns an error describing whether or not the schedule is
// valid
func (s Schedule) Validate() error {
	switch s.Type {
	case Constant, "":
	case Linear:
		if s.Total <= 0 {
			return fmt.Errorf("validate: linear schedule needs total "+
				"timesteps > 0, have %v", s.Total)
		}
	case Exponential:
		if s.Decay < 0 || s.Decay > 1 {
			return fmt.Errorf("validate: illegal decay \n\twant(0 <= decay "+
				"<= 1)\n\thave(%v)", s.Decay)
		}
	default:
		return fmt.Errorf("validate: unknown schedule type %q", s.Type)
	}
	return nil
}

// Value returns the next value of the scheduled hyperparameter given
// its current value and the total number of timesteps seen so far
func (s Schedule) Value(current float64, timesteps int) float64 {
	switch s.Type {
	case Linear:
		frac := math.Min(float64(timesteps)/float64(s.Total), 1.0)
		return s.Initial + frac*(s.Final-s.Initial)

	case Exponential:
		decay := s.Decay
		if decay == 0 {
			decay = DefaultDecay
		}
		return current * decay

	default:
		return current
	}
}
