// Package ensemble aggregates bootstrap-trained surrogate models: the mean
// prediction across members and the standard error of the mean as the
// per-point predictive uncertainty.
package ensemble

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

// Predictor is a deterministic inference-mode model mapping normalized
// inputs to normalized outputs. Implementations must not mutate state during
// Predict.
type Predictor interface {
	Predict(inputs *mat.Dense) (*mat.Dense, error)
}

// Ensemble is an ordered, fixed-size collection of bootstrap replicates
// sharing one architecture.
type Ensemble struct {
	members []Predictor
}

// New builds an ensemble from at least one member.
func New(members ...Predictor) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, errors.NewConfigurationError("n_bootstrap_models", "ensemble needs at least one member", 0)
	}
	for i, m := range members {
		if m == nil {
			return nil, errors.NewConfigurationError("ensemble.members", "nil member", i)
		}
	}
	return &Ensemble{members: append([]Predictor(nil), members...)}, nil
}

// Size returns the number of members.
func (e *Ensemble) Size() int { return len(e.members) }

// Members returns the ordered member list.
func (e *Ensemble) Members() []Predictor { return e.members }

// Predict returns the elementwise mean prediction across members.
func (e *Ensemble) Predict(inputs *mat.Dense) (*mat.Dense, error) {
	mean, _, err := e.predict(inputs, false)
	return mean, err
}

// PredictWithUncertainty returns the mean prediction and the standard error
// of the mean (sample std across members divided by √n) per sample and
// output dimension. With a single member the uncertainty is identically
// zero, never NaN.
func (e *Ensemble) PredictWithUncertainty(inputs *mat.Dense) (mean, sem *mat.Dense, err error) {
	return e.predict(inputs, true)
}

func (e *Ensemble) predict(inputs *mat.Dense, withSEM bool) (*mat.Dense, *mat.Dense, error) {
	preds := make([]*mat.Dense, len(e.members))
	var rows, cols int
	for i, m := range e.members {
		p, err := m.Predict(inputs)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "ensemble member %d", i)
		}
		r, c := p.Dims()
		if i == 0 {
			rows, cols = r, c
		} else if r != rows || c != cols {
			return nil, nil, errors.NewDataShapeError("Ensemble.Predict member outputs", rows, r, 0)
		}
		preds[i] = p
	}

	mean := mat.NewDense(rows, cols, nil)
	for _, p := range preds {
		mean.Add(mean, p)
	}
	mean.Scale(1/float64(len(preds)), mean)

	if !withSEM {
		return mean, nil, nil
	}

	sem := mat.NewDense(rows, cols, nil)
	if len(preds) > 1 {
		sqrtN := math.Sqrt(float64(len(preds)))
		values := make([]float64, len(preds))
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				for k, p := range preds {
					values[k] = p.At(i, j)
				}
				sem.Set(i, j, stat.StdDev(values, nil)/sqrtN)
			}
		}
	}
	return mean, sem, nil
}
