package projection

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
	"github.com/plasmago/ltpsurrogate/physics"
	"github.com/plasmago/ltpsurrogate/preprocessing"
)

// toyConstraint is the linear law y0 + y1 − y2 = 0 over a 3-output system.
func toyConstraint() physics.Constraint {
	return &physics.FuncConstraint{
		ConstraintName: "toy_linear",
		ResidualDim:    1,
		Fn: func(x, y []float64) ([]float64, error) {
			return []float64{y[0] + y[1] - y[2]}, nil
		},
	}
}

func TestToyProjectionClosedForm(t *testing.T) {
	engine, err := NewEngine(toyConstraint(), NewIdentityWeights(3), nil)
	require.NoError(t, err)

	got, err := engine.ProjectPhysical(nil, []float64{1, 1, 1})
	require.NoError(t, err)

	// Minimum-norm correction of residual 1: y' = [2/3, 2/3, 4/3].
	assert.InDelta(t, 1-1.0/3, got[0], 1e-12)
	assert.InDelta(t, 1-1.0/3, got[1], 1e-12)
	assert.InDelta(t, 1+1.0/3, got[2], 1e-12)

	// The linear constraint is satisfied exactly after projection.
	r, err := toyConstraint().Residual(nil, got)
	require.NoError(t, err)
	assert.InDelta(t, 0, r[0], 1e-12)
}

func TestZeroResidualGivesExactlyZeroCorrection(t *testing.T) {
	engine, err := NewEngine(toyConstraint(), NewIdentityWeights(3), nil)
	require.NoError(t, err)

	y := []float64{2, 3, 5} // 2 + 3 - 5 = 0 exactly
	got, err := engine.ProjectPhysical(nil, y)
	require.NoError(t, err)

	// Exact equality, not approximate: the engine must not touch a
	// prediction that already satisfies the law.
	assert.Equal(t, y, got)
}

func TestScalarWeightInvariance(t *testing.T) {
	identity, err := NewEngine(toyConstraint(), NewIdentityWeights(3), nil)
	require.NoError(t, err)

	scaled := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		scaled.SetSym(i, i, 7.5)
	}
	w, err := NewWeights(scaled)
	require.NoError(t, err)
	scaledEngine, err := NewEngine(toyConstraint(), w, nil)
	require.NoError(t, err)

	y := []float64{1.2, -0.4, 3.1}
	a, err := identity.ProjectPhysical(nil, y)
	require.NoError(t, err)
	b, err := scaledEngine.ProjectPhysical(nil, y)
	require.NoError(t, err)

	for i := range a {
		assert.InDelta(t, a[i], b[i], 1e-10, "dimension %d", i)
	}
}

func TestFirstOrderConstraintSatisfaction(t *testing.T) {
	// Nonlinear law y0·y1 − y2 = 0: the projection satisfies its first-order
	// linearization J·Δy + r ≈ 0 at the original prediction.
	nonlinear := &physics.FuncConstraint{
		ConstraintName: "toy_nonlinear",
		ResidualDim:    1,
		Fn: func(x, y []float64) ([]float64, error) {
			return []float64{y[0]*y[1] - y[2]}, nil
		},
	}
	engine, err := NewEngine(nonlinear, NewIdentityWeights(3), nil)
	require.NoError(t, err)

	y := []float64{2, 3, 4}
	r0, err := nonlinear.Residual(nil, y)
	require.NoError(t, err)
	jac, err := nonlinear.Jacobian(nil, y)
	require.NoError(t, err)

	got, err := engine.ProjectPhysical(nil, y)
	require.NoError(t, err)

	lin := r0[0]
	for j := range y {
		lin += jac.At(0, j) * (got[j] - y[j])
	}
	assert.InDelta(t, 0, lin, 1e-8)
}

func TestAnisotropicWeightsShiftCorrection(t *testing.T) {
	// A huge weight on y0 pins it: nearly all of the correction must land
	// on the cheap dimensions.
	w := mat.NewSymDense(3, nil)
	w.SetSym(0, 0, 1e8)
	w.SetSym(1, 1, 1)
	w.SetSym(2, 2, 1)
	weights, err := NewWeights(w)
	require.NoError(t, err)

	engine, err := NewEngine(toyConstraint(), weights, nil)
	require.NoError(t, err)

	y := []float64{1, 1, 1}
	got, err := engine.ProjectPhysical(nil, y)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, got[0], 1e-6, "heavily weighted dimension moved")
	r, err := toyConstraint().Residual(nil, got)
	require.NoError(t, err)
	assert.InDelta(t, 0, r[0], 1e-9)
}

func TestRankDeficientConstraintSetRejected(t *testing.T) {
	// Stacking the same law twice makes J W⁻¹ Jᵀ singular.
	stack, err := physics.NewStack(toyConstraint(), toyConstraint())
	require.NoError(t, err)

	engine, err := NewEngine(stack, NewIdentityWeights(3), nil)
	require.NoError(t, err)

	_, err = engine.ProjectPhysical(nil, []float64{1, 1, 1})
	require.Error(t, err)

	var instability *errors.NumericalInstabilityError
	assert.True(t, errors.As(err, &instability), "got %v", err)
}

func TestNonPDWeightMatrixRejected(t *testing.T) {
	w := mat.NewSymDense(2, []float64{1, 0, 0, -1})
	_, err := NewWeights(w)
	require.Error(t, err)

	var confErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &confErr))
}

func TestAsymmetricWeightMatrixRejected(t *testing.T) {
	w := mat.NewDense(2, 2, []float64{1, 0.5, -0.5, 1})
	_, err := NewWeights(w)
	require.Error(t, err)

	var confErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &confErr))
}

func TestInverseVarianceWeights(t *testing.T) {
	residuals := mat.NewDense(4, 2, []float64{
		0.1, 1.0,
		-0.1, -1.0,
		0.2, 2.0,
		-0.2, -2.0,
	})
	w, err := NewInverseVarianceWeights(residuals)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Dim())

	constant := mat.NewDense(3, 1, []float64{0.5, 0.5, 0.5})
	_, err = NewInverseVarianceWeights(constant)
	require.Error(t, err)

	var confErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &confErr))
}

// fullPipeline fits a pipeline on synthetic physical LTP-like data and
// returns it with a consistent normalized test batch.
func fullPipeline(t *testing.T) (*preprocessing.Pipeline, *mat.Dense, *mat.Dense) {
	t.Helper()
	rng := rand.New(rand.NewSource(5))
	n := 400
	inputs := mat.NewDense(n, physics.NumInputs, nil)
	targets := mat.NewDense(n, physics.NumOutputs, nil)
	for i := 0; i < n; i++ {
		row := physicalState(rng)
		x := physicalInputs(rng, row)
		inputs.SetRow(i, x)
		targets.SetRow(i, row)
	}
	p := preprocessing.NewPipeline("maxabs", 0, 3)
	require.NoError(t, p.Fit(inputs, targets))

	normIn, err := p.TransformInputs(inputs)
	require.NoError(t, err)
	normOut, err := p.TransformOutputs(targets)
	require.NoError(t, err)
	return p, normIn, normOut
}

func physicalState(rng *rand.Rand) []float64 {
	y := make([]float64, physics.NumOutputs)
	y[physics.OutO2X] = 1e22 * (0.5 + rng.Float64())
	y[physics.OutO2a] = 1e20 * (0.5 + rng.Float64())
	y[physics.OutO2b] = 1e19 * (0.5 + rng.Float64())
	y[physics.OutO3P] = 5e20 * (0.5 + rng.Float64())
	y[physics.OutO1D] = 1e18 * (0.5 + rng.Float64())
	y[physics.OutO3] = 2e19 * (0.5 + rng.Float64())
	y[physics.OutO2Plus] = 4e16 * (0.5 + rng.Float64())
	y[physics.OutOPlus] = 1e15 * (0.5 + rng.Float64())
	y[physics.OutOMinus] = 5e15 * (0.5 + rng.Float64())
	y[physics.OutNe] = y[physics.OutO2Plus] + y[physics.OutOPlus] - y[physics.OutOMinus]
	y[physics.OutTe] = 2 + rng.Float64()
	y[physics.OutTvib] = 1500 + 500*rng.Float64()
	y[physics.OutTg] = 350 + 100*rng.Float64()
	y[physics.OutEN] = 40 + 20*rng.Float64()
	y[physics.OutVd] = 1e5 * (0.5 + rng.Float64())
	y[physics.OutKion] = 3e-16 * (0.5 + rng.Float64())
	y[physics.OutRion] = y[physics.OutKion] * y[physics.OutNe] * y[physics.OutO2X]
	return y
}

func physicalInputs(rng *rand.Rand, y []float64) []float64 {
	x := make([]float64, physics.NumInputs)
	neutrals := y[physics.OutO2X] + y[physics.OutO2a] + y[physics.OutO2b] +
		y[physics.OutO3P] + y[physics.OutO1D] + y[physics.OutO3]
	x[physics.InPressure] = 1.380649e-23 * y[physics.OutTg] * neutrals
	x[physics.InCurrent] = 0.01 + 0.04*rng.Float64()
	x[physics.InRadius] = 0.004 + 0.01*rng.Float64()
	return x
}

func TestBatchProjectionEnforcesQuasiNeutrality(t *testing.T) {
	pipeline, normIn, normOut := fullPipeline(t)

	// Perturb the normalized predictions so quasi-neutrality is violated.
	rng := rand.New(rand.NewSource(17))
	var preds mat.Dense
	preds.CloneFrom(normOut)
	n, _ := preds.Dims()
	for i := 0; i < n; i++ {
		preds.Set(i, physics.OutNe, preds.At(i, physics.OutNe)*(1+0.05*rng.NormFloat64()))
	}

	engine, err := NewEngine(physics.QuasiNeutrality{}, NewIdentityWeights(physics.NumOutputs), pipeline)
	require.NoError(t, err)

	projected, err := engine.Project(&preds, normIn, SpacePhysical)
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		y := mat.Row(nil, i, projected)
		x, err := pipeline.InverseInputsRow(mat.Row(nil, i, normIn))
		require.NoError(t, err)
		r, err := (physics.QuasiNeutrality{}).Residual(x, y)
		require.NoError(t, err)
		scale := y[physics.OutO2Plus] + y[physics.OutOPlus]
		assert.InDelta(t, 0, r[0], 1e-9*scale, "sample %d", i)
	}
}

func TestStackedLawsProjectAcrossScales(t *testing.T) {
	// Densities (1e22), temperatures (1e2) and rates (1e-16) put the three
	// laws on hugely different scales; equilibration must keep the combined
	// solve well conditioned.
	rng := rand.New(rand.NewSource(23))
	y := physicalState(rng)
	x := physicalInputs(rng, y)

	// Break all three laws at once.
	y[physics.OutNe] *= 1.03
	y[physics.OutO2X] *= 1.01
	y[physics.OutRion] *= 1.05

	stack, err := physics.NewStack(physics.AllLaws()...)
	require.NoError(t, err)
	engine, err := NewEngine(stack, NewIdentityWeights(physics.NumOutputs), nil)
	require.NoError(t, err)

	got, err := engine.ProjectPhysical(x, y)
	require.NoError(t, err)

	// First-order linearization of the full stack is satisfied.
	r0, err := stack.Residual(x, y)
	require.NoError(t, err)
	jac, err := stack.Jacobian(x, y)
	require.NoError(t, err)
	for i := range r0 {
		lin := r0[i]
		rowScale := 0.0
		for j := range y {
			lin += jac.At(i, j) * (got[j] - y[j])
			if a := math.Abs(jac.At(i, j) * y[j]); a > rowScale {
				rowScale = a
			}
		}
		assert.InDelta(t, 0, lin, 1e-8*rowScale, "law row %d", i)
	}
}

func TestProjectRequiresExplicitSpace(t *testing.T) {
	pipeline, normIn, normOut := fullPipeline(t)
	engine, err := NewEngine(physics.QuasiNeutrality{}, NewIdentityWeights(physics.NumOutputs), pipeline)
	require.NoError(t, err)

	_, err = engine.Project(normOut, normIn, Space(0))
	require.Error(t, err)

	var confErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &confErr))
}

func TestNormalizedSpaceRoundTrip(t *testing.T) {
	pipeline, normIn, normOut := fullPipeline(t)
	engine, err := NewEngine(physics.QuasiNeutrality{}, NewIdentityWeights(physics.NumOutputs), pipeline)
	require.NoError(t, err)

	// Consistent predictions project to themselves in normalized space too.
	projected, err := engine.Project(normOut, normIn, SpaceNormalized)
	require.NoError(t, err)

	n, c := normOut.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < c; j++ {
			want := normOut.At(i, j)
			assert.InDelta(t, want, projected.At(i, j), 1e-7*math.Abs(want)+1e-9)
		}
	}
}
