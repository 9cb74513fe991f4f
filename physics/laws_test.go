package physics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

// consistentState builds a physical state that satisfies all three laws.
func consistentState() (x, y []float64) {
	x = make([]float64, NumInputs)
	y = make([]float64, NumOutputs)

	y[OutTg] = 400.0 // K
	y[OutO2X] = 1e22
	y[OutO2a] = 1e20
	y[OutO2b] = 1e19
	y[OutO3P] = 5e20
	y[OutO1D] = 1e18
	y[OutO3] = 2e19

	x[InPressure] = kB * y[OutTg] * (y[OutO2X] + y[OutO2a] + y[OutO2b] + y[OutO3P] + y[OutO1D] + y[OutO3])
	x[InCurrent] = 0.03
	x[InRadius] = 0.01

	y[OutO2Plus] = 4e16
	y[OutOPlus] = 1e15
	y[OutOMinus] = 5e15
	y[OutNe] = y[OutO2Plus] + y[OutOPlus] - y[OutOMinus]

	y[OutTe] = 2.5
	y[OutTvib] = 2000
	y[OutEN] = 50
	y[OutVd] = 1e5

	y[OutKion] = 3e-16
	y[OutRion] = y[OutKion] * y[OutNe] * y[OutO2X]
	return x, y
}

func TestLawsVanishOnConsistentState(t *testing.T) {
	x, y := consistentState()
	for _, law := range AllLaws() {
		r, err := law.Residual(x, y)
		require.NoError(t, err, law.Name())
		require.Len(t, r, law.Dim())
		for _, v := range r {
			scale := referenceScale(law, x, y)
			assert.InDelta(t, 0, v, 1e-9*scale, "law %s residual %v", law.Name(), v)
		}
	}
}

// referenceScale gives the magnitude of each law's terms so the vanishing
// check is relative, not absolute (densities are ~1e20).
func referenceScale(law Constraint, x, y []float64) float64 {
	sided, ok := law.(Sided)
	if !ok {
		return 1
	}
	_, rhs, _ := sided.Sides(x, y)
	return math.Abs(rhs) + 1
}

func TestClosedFormJacobiansMatchNumeric(t *testing.T) {
	x, y := consistentState()
	for _, law := range AllLaws() {
		law := law
		t.Run(law.Name(), func(t *testing.T) {
			jac, err := law.Jacobian(x, y)
			require.NoError(t, err)

			numeric, err := NumericJacobian(func(x, y []float64) ([]float64, error) {
				return law.Residual(x, y)
			}, x, y, law.Dim(), 0)
			require.NoError(t, err)

			for i := 0; i < law.Dim(); i++ {
				rowScale := 0.0
				for j := 0; j < NumOutputs; j++ {
					if a := math.Abs(jac.At(i, j)); a > rowScale {
						rowScale = a
					}
				}
				for j := 0; j < NumOutputs; j++ {
					want := jac.At(i, j)
					got := numeric.At(i, j)
					assert.InDelta(t, want, got, 1e-4*math.Abs(want)+1e-9*rowScale,
						"entry (%d,%d)", i, j)
				}
			}
		})
	}
}

func TestNonFiniteOutputsRejected(t *testing.T) {
	x, y := consistentState()
	y[OutNe] = math.NaN()
	for _, law := range AllLaws() {
		_, err := law.Residual(x, y)
		require.Error(t, err, law.Name())

		var instability *errors.NumericalInstabilityError
		assert.True(t, errors.As(err, &instability), "law %s returned %v", law.Name(), err)
	}
}

func TestShapeValidation(t *testing.T) {
	x, y := consistentState()
	_, err := (QuasiNeutrality{}).Residual(x, y[:5])
	require.Error(t, err)

	var shape *errors.DataShapeError
	assert.True(t, errors.As(err, &shape))
}

func TestStackConcatenatesResidualsAndJacobians(t *testing.T) {
	x, y := consistentState()
	stack, err := NewStack(AllLaws()...)
	require.NoError(t, err)

	assert.Equal(t, 3, stack.Dim())
	assert.Equal(t, "quasi_neutrality+pressure_balance+rate_balance", stack.Name())

	r, err := stack.Residual(x, y)
	require.NoError(t, err)
	require.Len(t, r, 3)

	jac, err := stack.Jacobian(x, y)
	require.NoError(t, err)
	rows, cols := jac.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, NumOutputs, cols)

	// Row 0 must be the quasi-neutrality gradient.
	assert.Equal(t, 1.0, jac.At(0, OutNe))
	assert.Equal(t, -1.0, jac.At(0, OutO2Plus))
}

func TestEmptyStackRejected(t *testing.T) {
	_, err := NewStack()
	require.Error(t, err)

	var confErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &confErr))
}

func TestFuncConstraintNumericJacobian(t *testing.T) {
	// g(y) = y0 + y1 - y2 over a 3-dimensional toy system.
	toy := &FuncConstraint{
		ConstraintName: "toy_linear",
		ResidualDim:    1,
		Fn: func(x, y []float64) ([]float64, error) {
			return []float64{y[0] + y[1] - y[2]}, nil
		},
	}

	r, err := toy.Residual(nil, []float64{1, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r[0], 1e-12)

	jac, err := toy.Jacobian(nil, []float64{1, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, jac.At(0, 0), 1e-6)
	assert.InDelta(t, 1.0, jac.At(0, 1), 1e-6)
	assert.InDelta(t, -1.0, jac.At(0, 2), 1e-6)
}
