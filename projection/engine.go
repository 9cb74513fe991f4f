package projection

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
	"github.com/plasmago/ltpsurrogate/physics"
	"github.com/plasmago/ltpsurrogate/preprocessing"
)

// Space selects the space a batch projection returns its results in.
// Callers must state which space they want; there is no default.
type Space int

const (
	// SpaceNormalized returns corrected predictions re-normalized for
	// comparison against normalized targets.
	SpaceNormalized Space = iota + 1
	// SpacePhysical returns corrected predictions in physical units.
	SpacePhysical
)

// DefaultCondMax is the 2-norm condition-number threshold above which the
// J W⁻¹ Jᵀ solve is rejected as numerically unstable.
const DefaultCondMax = 1e12

// Engine computes the constrained correction
//
//	Δy = −W⁻¹ Jᵀ (J W⁻¹ Jᵀ)⁻¹ r
//
// per sample: the weighted-least-squares minimal correction satisfying the
// first-order linearization J·Δy = −r of the constraint at the prediction.
// Samples are independent; there is no cross-sample coupling.
type Engine struct {
	constraint physics.Constraint
	weights    *Weights
	pipeline   *preprocessing.Pipeline
	condMax    float64
}

// NewEngine builds a projection engine. pipeline may be nil when only
// ProjectPhysical is used on already de-normalized vectors; Project requires
// it.
func NewEngine(c physics.Constraint, w *Weights, pipeline *preprocessing.Pipeline) (*Engine, error) {
	if c == nil {
		return nil, errors.NewConfigurationError("projection.constraint", "constraint required", nil)
	}
	if w == nil {
		return nil, errors.NewConfigurationError("projection.weights", "weight matrix required", nil)
	}
	return &Engine{constraint: c, weights: w, pipeline: pipeline, condMax: DefaultCondMax}, nil
}

// SetCondMax overrides the conditioning threshold. Values below 1 are a
// configuration error.
func (e *Engine) SetCondMax(condMax float64) error {
	if condMax < 1 {
		return errors.NewConfigurationError("projection.cond_max", "must be at least 1", condMax)
	}
	e.condMax = condMax
	return nil
}

// ProjectPhysical corrects one de-normalized prediction y (with physical
// inputs x) so the constraint holds to first order. When the residual is
// already exactly zero the returned vector equals y exactly.
func (e *Engine) ProjectPhysical(x, y []float64) ([]float64, error) {
	if len(y) != e.weights.Dim() {
		return nil, errors.NewDataShapeError("Engine.ProjectPhysical", e.weights.Dim(), len(y), 1)
	}
	r, err := e.constraint.Residual(x, y)
	if err != nil {
		return nil, err
	}
	if allZero(r) {
		out := make([]float64, len(y))
		copy(out, y)
		return out, nil
	}

	jac, err := e.constraint.Jacobian(x, y)
	if err != nil {
		return nil, err
	}
	k, n := jac.Dims()
	if n != len(y) || k != len(r) {
		return nil, errors.NewDataShapeError("Engine.ProjectPhysical jacobian", len(y), n, 1)
	}

	// A = W⁻¹ Jᵀ (n×k).
	a, err := e.weights.solveWinv(mat.DenseCopyOf(jac.T()))
	if err != nil {
		return nil, err
	}

	// S = J A (k×k).
	var s mat.Dense
	s.Mul(jac, a)

	// Laws in physical units live on wildly different scales (densities vs
	// temperatures), so S is symmetrically equilibrated before the solve:
	// with D = diag(1/√S_ii), solve (D S D) μ = −D r and recover λ = D μ.
	// The change of variables leaves the correction unchanged but keeps the
	// condition number a statement about constraint geometry, not units.
	d := make([]float64, k)
	for i := 0; i < k; i++ {
		sii := s.At(i, i)
		if sii <= 0 {
			return nil, errors.NewNumericalInstabilityError("projection: J W⁻¹ Jᵀ solve", []float64{sii},
				"constraint "+e.constraint.Name()+" has a vanishing jacobian row")
		}
		d[i] = 1 / math.Sqrt(sii)
	}
	scaled := mat.NewDense(k, k, nil)
	rhs := mat.NewVecDense(k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			scaled.Set(i, j, d[i]*s.At(i, j)*d[j])
		}
		rhs.SetVec(i, d[i]*r[i])
	}

	cond := mat.Cond(scaled, 2)
	if cond > e.condMax {
		return nil, errors.NewNumericalInstabilityError("projection: J W⁻¹ Jᵀ solve", []float64{cond},
			"rank-deficient or near-singular constraint set (condition number above threshold)")
	}

	// λ = D (D S D)⁻¹ D r.
	mu := mat.NewVecDense(k, nil)
	if err := mu.SolveVec(scaled, rhs); err != nil {
		return nil, errors.NewNumericalInstabilityError("projection: J W⁻¹ Jᵀ solve", r, "singular system")
	}
	lambda := mat.NewVecDense(k, nil)
	for i := 0; i < k; i++ {
		lambda.SetVec(i, d[i]*mu.AtVec(i))
	}

	// Δy = −A λ.
	delta := mat.NewVecDense(n, nil)
	delta.MulVec(a, lambda)

	out := make([]float64, n)
	for i := range out {
		out[i] = y[i] - delta.AtVec(i)
	}
	if err := errors.CheckVector("projection: corrected output", out); err != nil {
		return nil, err
	}
	return out, nil
}

// Project corrects a batch of normalized predictions. Each row is
// de-normalized through the pipeline, projected in physical units, and
// returned either re-normalized (SpaceNormalized) or as-is (SpacePhysical).
func (e *Engine) Project(normPreds, normInputs *mat.Dense, space Space) (*mat.Dense, error) {
	if e.pipeline == nil {
		return nil, errors.NewConfigurationError("projection.pipeline", "pipeline required for normalized-space projection", nil)
	}
	if space != SpaceNormalized && space != SpacePhysical {
		return nil, errors.NewConfigurationError("projection.space", "caller must request SpaceNormalized or SpacePhysical", space)
	}
	nPred, dims := normPreds.Dims()
	nIn, _ := normInputs.Dims()
	if nIn != nPred {
		return nil, errors.NewDataShapeError("Engine.Project", nPred, nIn, 0)
	}

	out := mat.NewDense(nPred, dims, nil)
	for i := 0; i < nPred; i++ {
		x, err := e.pipeline.InverseInputsRow(mat.Row(nil, i, normInputs))
		if err != nil {
			return nil, err
		}
		y, err := e.pipeline.InverseOutputsRow(mat.Row(nil, i, normPreds))
		if err != nil {
			return nil, err
		}
		corrected, err := e.ProjectPhysical(x, y)
		if err != nil {
			return nil, errors.Wrapf(err, "sample %d", i)
		}
		if space == SpaceNormalized {
			corrected, err = e.pipeline.TransformOutputsRow(corrected)
			if err != nil {
				return nil, err
			}
		}
		out.SetRow(i, corrected)
	}
	return out, nil
}

func allZero(r []float64) bool {
	for _, v := range r {
		if v != 0 {
			return false
		}
	}
	return true
}
