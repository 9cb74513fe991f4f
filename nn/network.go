// Package nn implements the feedforward surrogate networks: deterministic
// inference for ensembling, minibatch Adam training with optional
// physics-informed loss, early stopping and gob checkpoints.
package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

// activation holds a pointwise nonlinearity and its derivative as a function
// of the pre-activation value.
type activation struct {
	f     func(float64) float64
	deriv func(float64) float64
}

const leakySlope = 0.01

var activations = map[string]activation{
	"relu": {
		f: func(x float64) float64 { return math.Max(0, x) },
		deriv: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		},
	},
	"leaky_relu": {
		f: func(x float64) float64 {
			if x > 0 {
				return x
			}
			return leakySlope * x
		},
		deriv: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return leakySlope
		},
	},
	"tanh": {
		f: math.Tanh,
		deriv: func(x float64) float64 {
			th := math.Tanh(x)
			return 1 - th*th
		},
	},
	"sigmoid": {
		f: func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
		deriv: func(x float64) float64 {
			s := 1 / (1 + math.Exp(-x))
			return s * (1 - s)
		},
	},
}

// Network is a fully connected feedforward model with a linear output layer.
// Inference is deterministic; Predict never mutates the network.
type Network struct {
	sizes   []int    // layer widths: [in, hidden..., out]
	acts    []string // one activation per hidden layer
	weights []*mat.Dense
	biases  [][]float64

	trainingTime float64 // seconds, recorded by the trainer
}

// NewNetwork initializes a network with He-style scaled random weights.
func NewNetwork(nIn int, hidden []int, acts []string, nOut int, rng *rand.Rand) (*Network, error) {
	if len(hidden) == 0 {
		return nil, errors.NewConfigurationError("hidden_sizes", "at least one hidden layer required", hidden)
	}
	if len(acts) != len(hidden) {
		return nil, errors.NewConfigurationError("activation_fns", "one activation per hidden layer required", acts)
	}
	for _, name := range acts {
		if _, ok := activations[name]; !ok {
			return nil, errors.NewConfigurationError("activation_fns", "unknown activation", name)
		}
	}

	sizes := make([]int, 0, len(hidden)+2)
	sizes = append(sizes, nIn)
	sizes = append(sizes, hidden...)
	sizes = append(sizes, nOut)

	n := &Network{
		sizes: sizes,
		acts:  append([]string(nil), acts...),
	}
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		w := mat.NewDense(out, in, nil)
		scale := math.Sqrt(2 / float64(in))
		for i := 0; i < out; i++ {
			for j := 0; j < in; j++ {
				w.Set(i, j, rng.NormFloat64()*scale)
			}
		}
		n.weights = append(n.weights, w)
		n.biases = append(n.biases, make([]float64, out))
	}
	return n, nil
}

// NumInputs returns the input dimensionality.
func (n *Network) NumInputs() int { return n.sizes[0] }

// NumOutputs returns the output dimensionality.
func (n *Network) NumOutputs() int { return n.sizes[len(n.sizes)-1] }

// HiddenSizes returns the hidden-layer widths.
func (n *Network) HiddenSizes() []int {
	return append([]int(nil), n.sizes[1:len(n.sizes)-1]...)
}

// Activations returns the hidden-layer activation names.
func (n *Network) Activations() []string { return append([]string(nil), n.acts...) }

// TrainingTime returns the wall-clock training duration in seconds.
func (n *Network) TrainingTime() float64 { return n.trainingTime }

// NumParameters returns the total weight and bias count.
func (n *Network) NumParameters() int {
	total := 0
	for l, w := range n.weights {
		r, c := w.Dims()
		total += r*c + len(n.biases[l])
	}
	return total
}

// forward runs one sample through the network and returns the layer
// activations (a[0] is the input) and pre-activations per layer.
func (n *Network) forward(x []float64) (a [][]float64, z [][]float64) {
	a = make([][]float64, len(n.sizes))
	z = make([][]float64, len(n.sizes)-1)
	a[0] = x
	for l := 0; l < len(n.weights); l++ {
		in := a[l]
		out := len(n.biases[l])
		zl := make([]float64, out)
		for i := 0; i < out; i++ {
			sum := n.biases[l][i]
			row := n.weights[l].RawRowView(i)
			for j, v := range in {
				sum += row[j] * v
			}
			zl[i] = sum
		}
		z[l] = zl
		al := make([]float64, out)
		if l < len(n.weights)-1 {
			act := activations[n.acts[l]]
			for i, v := range zl {
				al[i] = act.f(v)
			}
		} else {
			copy(al, zl) // linear output layer
		}
		a[l+1] = al
	}
	return a, z
}

// Predict maps a batch of normalized inputs to normalized outputs. It
// implements ensemble.Predictor.
func (n *Network) Predict(inputs *mat.Dense) (*mat.Dense, error) {
	r, c := inputs.Dims()
	if c != n.NumInputs() {
		return nil, errors.NewDataShapeError("Network.Predict", n.NumInputs(), c, 1)
	}
	out := mat.NewDense(r, n.NumOutputs(), nil)
	for i := 0; i < r; i++ {
		a, _ := n.forward(inputs.RawRowView(i))
		out.SetRow(i, a[len(a)-1])
	}
	return out, nil
}
