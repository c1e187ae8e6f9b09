// Package gae implements generalized advantage estimation, GAE(λ),
// following https://arxiv.org/abs/1506.02438.
//
// Two forms are provided which share a single backward recurrence:
// Calculate works on a flat batch of trajectories laid out as
// (envs, steps), while CalculateReplay works on a replay of such
// batches laid out as (slots, envs, steps), recursing over each slot
// independently.
//
// All arrays are float32 gorgonia tensors. Indices are env-major, so
// that the data of lane e at step t is found at e*steps + t.
package gae

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gorgonia.org/tensor"
)

// Calculate computes the λ-returns and advantages of a batch of
// trajectories with shape (envs, steps). Each lane is scanned
// backwards from its last step. The value of the state following the
// last step of lane e is bootstrap[e].
//
// With λ = 1 the advantages reduce to Monte-Carlo returns minus the
// baseline, and with λ = 0 they reduce to one-step TD errors.
func Calculate(values *tensor.Dense, dones []bool, rewards *tensor.Dense,
	bootstrap []float32, gamma, lambda float64) (*tensor.Dense,
	*tensor.Dense, error) {
	const op = "calculate"

	shape, err := checkTensors(op, 2, values, rewards)
	if err != nil {
		return nil, nil, err
	}
	envs, steps := shape[0], shape[1]

	if len(dones) != envs*steps {
		return nil, nil, &ShapeError{Op: op, Name: "dones",
			Want: []int{envs * steps}, Have: []int{len(dones)}}
	}
	if len(bootstrap) != envs {
		return nil, nil, &ShapeError{Op: op, Name: "bootstrap",
			Want: []int{envs}, Have: []int{len(bootstrap)}}
	}

	vals := values.Data().([]float32)
	rews := rewards.Data().([]float32)
	adv := make([]float32, envs*steps)
	ret := make([]float32, envs*steps)

	g, l := float32(gamma), float32(lambda)
	for e := 0; e < envs; e++ {
		start := e * steps
		stop := start + steps
		recurse(vals[start:stop], dones[start:stop], rews[start:stop],
			bootstrap[e], g, l, adv[start:stop], ret[start:stop])
	}

	return newDense(ret, envs, steps), newDense(adv, envs, steps), nil
}

// CalculateReplay computes the λ-returns and advantages of a replay of
// trajectory batches with shape (slots, envs, steps). Each slot is
// treated as an independent flat batch.
//
// The bootstrap values may be given either per lane, with length envs,
// in which case they are shared by all slots, or per slot and lane,
// with length slots*envs.
func CalculateReplay(values *tensor.Dense, dones []bool,
	rewards *tensor.Dense, bootstrap []float32, gamma,
	lambda float64) (*tensor.Dense, *tensor.Dense, error) {
	const op = "calculateReplay"

	shape, err := checkTensors(op, 3, values, rewards)
	if err != nil {
		return nil, nil, err
	}
	slots, envs, steps := shape[0], shape[1], shape[2]
	total := slots * envs * steps

	if len(dones) != total {
		return nil, nil, &ShapeError{Op: op, Name: "dones",
			Want: []int{total}, Have: []int{len(dones)}}
	}

	perSlot := len(bootstrap) == slots*envs
	if !perSlot && len(bootstrap) != envs {
		return nil, nil, &ShapeError{Op: op, Name: "bootstrap",
			Want: []int{envs}, Have: []int{len(bootstrap)}}
	}

	vals := values.Data().([]float32)
	rews := rewards.Data().([]float32)
	adv := make([]float32, total)
	ret := make([]float32, total)

	g, l := float32(gamma), float32(lambda)
	for s := 0; s < slots; s++ {
		for e := 0; e < envs; e++ {
			lane := s*envs + e
			start := lane * steps
			stop := start + steps

			last := bootstrap[e]
			if perSlot {
				last = bootstrap[lane]
			}
			recurse(vals[start:stop], dones[start:stop], rews[start:stop],
				last, g, l, adv[start:stop], ret[start:stop])
		}
	}

	return newDense(ret, slots, envs, steps),
		newDense(adv, slots, envs, steps), nil
}

// recurse runs the GAE(λ) recurrence over a single lane, strictly in
// reverse step order, writing into adv and ret.
func recurse(values []float32, dones []bool, rewards []float32,
	bootstrap, gamma, lambda float32, adv, ret []float32) {
	var lastGAELam float32
	last := len(values) - 1

	for t := last; t >= 0; t-- {
		var nextNonTerminal float32 = 1
		if dones[t] {
			nextNonTerminal = 0
		}

		nextValue := bootstrap
		if t != last {
			nextValue = values[t+1]
		}

		delta := rewards[t] + gamma*nextValue*nextNonTerminal - values[t]
		lastGAELam = delta + gamma*lambda*nextNonTerminal*lastGAELam
		adv[t] = lastGAELam
		ret[t] = adv[t] + values[t]
	}
}

// Standardize returns a copy of the advantages shifted to mean 0 and
// scaled to standard deviation 1. A small constant is added to the
// standard deviation so constant advantages do not divide by zero.
func Standardize(advantages []float32) []float32 {
	adv := make([]float64, len(advantages))
	for i, a := range advantages {
		adv[i] = float64(a)
	}

	mean := stat.Mean(adv, nil)
	std := stat.PopStdDev(adv, nil) + 1e-8
	floats.AddConst(-mean, adv)
	floats.Scale(1/std, adv)

	out := make([]float32, len(adv))
	for i, a := range adv {
		out[i] = float32(a)
	}
	return out
}

// checkTensors ensures each tensor is a float32 tensor with dims
// dimensions, and that all tensors share the same shape.
func checkTensors(op string, dims int, ts ...*tensor.Dense) ([]int,
	error) {
	var shape []int
	for _, t := range ts {
		if t == nil {
			return nil, &ShapeError{Op: op, Name: "input", Want: shape}
		}
		if t.Dtype() != tensor.Float32 {
			return nil, &DtypeError{Op: op, Have: t.Dtype().String()}
		}
		if t.Dims() != dims {
			return nil, &ShapeError{Op: op, Name: "input", Want: shape,
				Have: []int(t.Shape())}
		}
		if shape == nil {
			shape = append([]int(nil), t.Shape()...)
			continue
		}
		if !tensor.Shape(shape).Eq(t.Shape()) {
			return nil, &ShapeError{Op: op, Name: "input", Want: shape,
				Have: []int(t.Shape())}
		}
	}
	return shape, nil
}

// newDense wraps a float32 backing slice in a tensor of the given shape
func newDense(backing []float32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
}
