// Package trackers implements trackers of training progress: trailing
// windows of episode statistics, the best model selector which decides
// when a run should stop, and savers of per-episode data.
package trackers

import (
	"fmt"

	"github.com/samuelfneumann/phasic/utils/floatutils"
)

// Window is a trailing fixed-size window of values. Once full, adding
// a value evicts the oldest one.
type Window struct {
	values []float64
	start  int
	size   int
}

// NewWindow returns a new, empty window of the given capacity
func NewWindow(capacity int) (*Window, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("newWindow: illegal capacity \n\twant(> 0)"+
			"\n\thave(%v)", capacity)
	}
	return &Window{values: make([]float64, capacity)}, nil
}

// Add adds values to the window, oldest first
func (w *Window) Add(values ...float64) {
	for _, v := range values {
		if w.size < len(w.values) {
			w.values[(w.start+w.size)%len(w.values)] = v
			w.size++
			continue
		}
		w.values[w.start] = v
		w.start = (w.start + 1) % len(w.values)
	}
}

// Values returns a copy of the values in the window, oldest first
func (w *Window) Values() []float64 {
	out := make([]float64, w.size)
	for i := range out {
		out[i] = w.values[(w.start+i)%len(w.values)]
	}
	return out
}

// Load replaces the contents of the window with values. If more
// values are given than fit, only the most recent are kept.
func (w *Window) Load(values []float64) {
	w.start, w.size = 0, 0
	w.Add(values...)
}

// Mean returns the mean of the window, or NaN if it is empty
func (w *Window) Mean() float64 {
	return floatutils.SafeMean(w.Values())
}

// Len returns the number of values in the window
func (w *Window) Len() int {
	return w.size
}

// Cap returns the capacity of the window
func (w *Window) Cap() int {
	return len(w.values)
}
