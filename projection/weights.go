// Package projection corrects surrogate predictions onto the subspace where
// the physical laws hold, by a weighted least-squares projection onto the
// null space of the constraint Jacobian.
package projection

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

// Weights is the symmetric positive-definite matrix W of the projection
// objective Δyᵀ W Δy. It is validated once at construction; the engine only
// needs W⁻¹ applied to matrices, served through the cached Cholesky
// factorization.
type Weights struct {
	dim      int
	chol     mat.Cholesky
	identity bool
}

// NewIdentityWeights builds the default no-preference weighting.
func NewIdentityWeights(dim int) *Weights {
	return &Weights{dim: dim, identity: true}
}

// NewWeights validates and wraps an explicit weight matrix. The matrix must
// be symmetric positive-definite; anything else is a configuration error,
// never silently corrected.
func NewWeights(w mat.Matrix) (*Weights, error) {
	r, c := w.Dims()
	if r != c {
		return nil, errors.NewConfigurationError("w_matrix", "must be square", []int{r, c})
	}
	const symTol = 1e-10
	for i := 0; i < r; i++ {
		for j := i + 1; j < c; j++ {
			a, b := w.At(i, j), w.At(j, i)
			if math.Abs(a-b) > symTol*(math.Abs(a)+math.Abs(b)+1) {
				return nil, errors.NewConfigurationError("w_matrix", "must be symmetric", [2]float64{a, b})
			}
		}
	}
	sym := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < c; j++ {
			sym.SetSym(i, j, (w.At(i, j)+w.At(j, i))/2)
		}
	}
	var weights Weights
	weights.dim = r
	if ok := weights.chol.Factorize(sym); !ok {
		return nil, errors.NewConfigurationError("w_matrix", "must be positive definite", nil)
	}
	return &weights, nil
}

// NewInverseVarianceWeights builds a diagonal W with 1/Var(residual_j) per
// output dimension, computed from residual statistics on a held-out set
// (rows = samples, columns = output dimensions). A zero-variance column is a
// configuration error: it would make W unbounded.
func NewInverseVarianceWeights(residuals *mat.Dense) (*Weights, error) {
	n, dim := residuals.Dims()
	if n < 2 {
		return nil, errors.NewConfigurationError("w_matrix", "need at least 2 residual samples", n)
	}
	w := mat.NewSymDense(dim, nil)
	for j := 0; j < dim; j++ {
		variance, err := stats.Variance(mat.Col(nil, j, residuals))
		if err != nil {
			return nil, errors.Wrap(err, "NewInverseVarianceWeights")
		}
		if variance < 1e-300 {
			return nil, errors.NewConfigurationError("w_matrix", "zero residual variance in output dimension", j)
		}
		w.SetSym(j, j, 1/variance)
	}
	return NewWeights(w)
}

// Dim returns the output dimensionality W applies to.
func (w *Weights) Dim() int { return w.dim }

// solveWinv computes X = W⁻¹ B.
func (w *Weights) solveWinv(b *mat.Dense) (*mat.Dense, error) {
	rows, cols := b.Dims()
	if rows != w.dim {
		return nil, errors.NewDataShapeError("Weights.solveWinv", w.dim, rows, 0)
	}
	if w.identity {
		var x mat.Dense
		x.CloneFrom(b)
		return &x, nil
	}
	x := mat.NewDense(rows, cols, nil)
	if err := w.chol.SolveTo(x, b); err != nil {
		return nil, errors.Wrap(errors.ErrSingularMatrix, "Weights.solveWinv")
	}
	return x, nil
}
