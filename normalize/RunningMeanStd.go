package normalize

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RunningMeanStd tracks the running mean and variance of a stream of
// scalars. Batches are merged using the parallel variant of Welford's
// algorithm (Chan et al.), so that updating with one batch of n
// samples is equivalent to updating with the n samples one at a time.
type RunningMeanStd struct {
	Mean  float64
	Var   float64
	Count float64
}

// NewRunningMeanStd returns a RunningMeanStd with a unit-variance
// prior weighted by epsilon samples
func NewRunningMeanStd(epsilon float64) *RunningMeanStd {
	return &RunningMeanStd{Mean: 0, Var: 1, Count: epsilon}
}

// Update merges a batch of samples into the running statistics
func (r *RunningMeanStd) Update(batch []float64) {
	if len(batch) == 0 {
		return
	}
	mean, variance := stat.PopMeanVariance(batch, nil)
	r.updateFromMoments(mean, variance, float64(len(batch)))
}

// updateFromMoments merges the moments of a batch into the running
// statistics
func (r *RunningMeanStd) updateFromMoments(batchMean, batchVar,
	batchCount float64) {
	delta := batchMean - r.Mean
	total := r.Count + batchCount

	newMean := r.Mean + delta*batchCount/total
	m2 := r.Var*r.Count + batchVar*batchCount +
		delta*delta*r.Count*batchCount/total

	r.Mean = newMean
	r.Var = m2 / total
	r.Count = total
}

// Std returns the running standard deviation
func (r *RunningMeanStd) Std() float64 {
	return math.Sqrt(r.Var)
}
