package network

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/phasic/initwfn"
	"github.com/samuelfneumann/phasic/solver"
	"github.com/samuelfneumann/phasic/utils/floatutils"
)

// WeightsName is the name of the weight vector of a LinearCritic
const WeightsName = "weights"

// LinearCritic is a linear state value function over uint8
// observations. Observations are scaled to [0, 1] and a constant bias
// feature is appended before taking the dot product with the weights.
//
// Predictions are computed directly from the weights. Training builds
// a Gorgonia graph minimizing the mean squared error to the targets,
// one graph per minibatch size, each of which is synchronized with the
// critic's weights before and after every step.
type LinearCritic struct {
	features int // Including bias
	weights  []float64
	solver   *solver.Solver

	graphs map[int]*criticGraph
}

// criticGraph is a training graph for a fixed minibatch size
type criticGraph struct {
	input   *G.Node
	targets *G.Node
	weights *G.Node
	loss    G.Value
	vm      G.VM
}

// NewLinearCritic returns a new LinearCritic over observations of
// obsSize elements
func NewLinearCritic(obsSize int, init *initwfn.InitWFn,
	s *solver.Solver) (*LinearCritic, error) {
	if obsSize < 1 {
		return nil, fmt.Errorf("newLinearCritic: illegal observation size "+
			"\n\twant(> 0)\n\thave(%v)", obsSize)
	}
	if init == nil || s == nil {
		return nil, fmt.Errorf("newLinearCritic: initializer and solver " +
			"must be given")
	}

	features := obsSize + 1
	weights := init.InitWFn()(tensor.Float64, features).([]float64)

	return &LinearCritic{
		features: features,
		weights:  weights,
		solver:   s,
		graphs:   make(map[int]*criticGraph),
	}, nil
}

// Features returns the number of features, including the bias
func (c *LinearCritic) Features() int {
	return c.features
}

// Values returns the predicted values of n observations stored
// contiguously in obs
func (c *LinearCritic) Values(obs []uint8, n int) ([]float32, error) {
	obsSize := c.features - 1
	if len(obs) != n*obsSize {
		return nil, fmt.Errorf("values: illegal observations length "+
			"\n\twant(%v)\n\thave(%v)", n*obsSize, len(obs))
	}

	values := make([]float32, n)
	x := make([]float64, c.features)
	for i := range values {
		featurize(obs[i*obsSize:(i+1)*obsSize], x)
		values[i] = float32(floats.Dot(x, c.weights))
	}
	return values, nil
}

// Fit takes one solver step minimizing the mean squared error between
// the predicted values of the observations and the targets, and
// returns the loss before the step
func (c *LinearCritic) Fit(obs []uint8, targets []float32) (float64,
	error) {
	batch := len(targets)
	obsSize := c.features - 1
	if batch == 0 {
		return 0, fmt.Errorf("fit: empty batch")
	}
	if len(obs) != batch*obsSize {
		return 0, fmt.Errorf("fit: illegal observations length "+
			"\n\twant(%v)\n\thave(%v)", batch*obsSize, len(obs))
	}

	graph, err := c.graph(batch)
	if err != nil {
		return 0, fmt.Errorf("fit: %v", err)
	}

	input := make([]float64, batch*c.features)
	for i := 0; i < batch; i++ {
		featurize(obs[i*obsSize:(i+1)*obsSize],
			input[i*c.features:(i+1)*c.features])
	}
	inputTensor := tensor.New(
		tensor.WithShape(batch, c.features),
		tensor.WithBacking(input),
	)
	if err := G.Let(graph.input, inputTensor); err != nil {
		return 0, fmt.Errorf("fit: could not set input: %v", err)
	}

	targetsTensor := tensor.New(
		tensor.WithShape(batch),
		tensor.WithBacking(floatutils.Float64s(targets)),
	)
	if err := G.Let(graph.targets, targetsTensor); err != nil {
		return 0, fmt.Errorf("fit: could not set targets: %v", err)
	}

	copy(graph.weights.Value().Data().([]float64), c.weights)

	defer graph.vm.Reset()
	if err := graph.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("fit: %v", err)
	}
	if err := c.solver.Step([]G.ValueGrad{graph.weights}); err != nil {
		return 0, fmt.Errorf("fit: %v", err)
	}
	copy(c.weights, graph.weights.Value().Data().([]float64))

	return graph.loss.Data().(float64), nil
}

// graph returns the training graph for a minibatch size, constructing
// it on first use
func (c *LinearCritic) graph(batch int) (*criticGraph, error) {
	if graph, ok := c.graphs[batch]; ok {
		return graph, nil
	}

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, c.features),
		G.WithName("input"), G.WithInit(G.Zeroes()))
	targets := G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("targets"), G.WithInit(G.Zeroes()))
	weights := G.NewVector(g, tensor.Float64, G.WithShape(c.features),
		G.WithName(WeightsName), G.WithInit(G.Zeroes()))

	pred := G.Must(G.Mul(input, weights))
	loss := G.Must(G.Sub(pred, targets))
	loss = G.Must(G.Square(loss))
	loss = G.Must(G.Mean(loss))

	if _, err := G.Grad(loss, weights); err != nil {
		return nil, fmt.Errorf("graph: could not compute gradient: %v", err)
	}

	graph := &criticGraph{
		input:   input,
		targets: targets,
		weights: weights,
	}
	G.Read(loss, &graph.loss)
	graph.vm = G.NewTapeMachine(g, G.BindDualValues(weights))

	c.graphs[batch] = graph
	return graph, nil
}

// SetLearnRate sets the step size of the critic's solver
func (c *LinearCritic) SetLearnRate(lr float64) error {
	return c.solver.SetStepSize(lr)
}

// Weights returns a copy of the critic's weights
func (c *LinearCritic) Weights() Weights {
	return Weights{WeightsName: append([]float64(nil), c.weights...)}
}

// SetWeights sets the critic's weights to a copy of w
func (c *LinearCritic) SetWeights(w Weights) error {
	if err := c.Weights().Compatible(w); err != nil {
		return fmt.Errorf("setWeights: %v", err)
	}
	copy(c.weights, w[WeightsName])
	return nil
}

// featurize writes the features of an observation into x, which must
// have one more element than obs
func featurize(obs []uint8, x []float64) {
	for i, o := range obs {
		x[i] = float64(o) / 255.0
	}
	x[len(obs)] = 1.0
}
