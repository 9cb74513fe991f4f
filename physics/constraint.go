package physics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

// Constraint is a pure physical law over de-normalized vectors: Residual
// returns zero (per component) when the law holds, Jacobian its derivative
// with respect to the output vector at the evaluation point.
//
// Implementations must reject non-finite inputs with a
// NumericalInstabilityError rather than propagating NaNs.
type Constraint interface {
	// Name identifies the law in reports and error messages.
	Name() string

	// Dim is the residual dimension (1 for scalar laws).
	Dim() int

	// Residual evaluates g(x, y); x is the physical input vector, y the
	// physical output vector.
	Residual(x, y []float64) ([]float64, error)

	// Jacobian evaluates dg/dy at (x, y) with shape Dim × len(y).
	Jacobian(x, y []float64) (*mat.Dense, error)
}

// Sided is implemented by laws that can report their residual as a
// lhs − rhs pair, which the evaluation layer uses for compliance MAPE
// (|lhs − rhs| relative to rhs).
type Sided interface {
	Sides(x, y []float64) (lhs, rhs float64, err error)
}

// checkFinite guards every law against NaN/Inf inputs.
func checkFinite(name string, x, y []float64) error {
	if err := errors.CheckVector("constraint "+name+": inputs", x); err != nil {
		return err
	}
	return errors.CheckVector("constraint "+name+": outputs", y)
}

// DefaultFDStep is the fixed central-difference step used by NumericJacobian.
const DefaultFDStep = 1e-6

// FuncConstraint adapts a plain residual function into a Constraint with a
// numerically differentiated Jacobian. Used for laws without a closed-form
// derivative and for test fixtures.
type FuncConstraint struct {
	ConstraintName string
	ResidualDim    int
	Fn             func(x, y []float64) ([]float64, error)
	Step           float64 // central-difference step; DefaultFDStep when zero
}

func (f *FuncConstraint) Name() string { return f.ConstraintName }

func (f *FuncConstraint) Dim() int { return f.ResidualDim }

func (f *FuncConstraint) Residual(x, y []float64) ([]float64, error) {
	if err := checkFinite(f.ConstraintName, x, y); err != nil {
		return nil, err
	}
	r, err := f.Fn(x, y)
	if err != nil {
		return nil, err
	}
	if len(r) != f.ResidualDim {
		return nil, errors.NewDataShapeError("constraint "+f.ConstraintName+": residual", f.ResidualDim, len(r), 1)
	}
	return r, nil
}

func (f *FuncConstraint) Jacobian(x, y []float64) (*mat.Dense, error) {
	if err := checkFinite(f.ConstraintName, x, y); err != nil {
		return nil, err
	}
	return NumericJacobian(f.Fn, x, y, f.ResidualDim, f.Step)
}

// NumericJacobian computes dg/dy by central differences with a fixed
// relative step. The step scales with |y_j| so constraints over densities
// (1e20 m^-3) and temperatures (1e2 K) are differentiated at comparable
// relative accuracy.
func NumericJacobian(fn func(x, y []float64) ([]float64, error), x, y []float64, dim int, step float64) (*mat.Dense, error) {
	if step == 0 {
		step = DefaultFDStep
	}
	jac := mat.NewDense(dim, len(y), nil)
	yUp := append([]float64(nil), y...)
	yDn := append([]float64(nil), y...)
	for j := range y {
		h := step
		if a := y[j]; a != 0 {
			h = step * abs(a)
		}
		yUp[j] = y[j] + h
		yDn[j] = y[j] - h
		rUp, err := fn(x, yUp)
		if err != nil {
			return nil, err
		}
		rDn, err := fn(x, yDn)
		if err != nil {
			return nil, err
		}
		if len(rUp) != dim || len(rDn) != dim {
			return nil, errors.NewDataShapeError("NumericJacobian residual", dim, len(rUp), 1)
		}
		for i := 0; i < dim; i++ {
			jac.Set(i, j, (rUp[i]-rDn[i])/(2*h))
		}
		yUp[j] = y[j]
		yDn[j] = y[j]
	}
	if err := errors.CheckMatrix("NumericJacobian", jac, dim, len(y)); err != nil {
		return nil, err
	}
	return jac, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Stack combines several laws into one constraint whose residual is the
// concatenation of the member residuals.
type Stack struct {
	laws []Constraint
	dim  int
}

// NewStack builds a stacked constraint set. At least one law is required.
func NewStack(laws ...Constraint) (*Stack, error) {
	if len(laws) == 0 {
		return nil, errors.NewConfigurationError("physics.Stack", "at least one constraint required", nil)
	}
	dim := 0
	for _, law := range laws {
		dim += law.Dim()
	}
	return &Stack{laws: laws, dim: dim}, nil
}

// Laws returns the member constraints in order.
func (s *Stack) Laws() []Constraint { return s.laws }

func (s *Stack) Name() string {
	name := s.laws[0].Name()
	for _, law := range s.laws[1:] {
		name += "+" + law.Name()
	}
	return name
}

func (s *Stack) Dim() int { return s.dim }

func (s *Stack) Residual(x, y []float64) ([]float64, error) {
	out := make([]float64, 0, s.dim)
	for _, law := range s.laws {
		r, err := law.Residual(x, y)
		if err != nil {
			return nil, err
		}
		out = append(out, r...)
	}
	return out, nil
}

func (s *Stack) Jacobian(x, y []float64) (*mat.Dense, error) {
	jac := mat.NewDense(s.dim, len(y), nil)
	row := 0
	for _, law := range s.laws {
		j, err := law.Jacobian(x, y)
		if err != nil {
			return nil, err
		}
		r, c := j.Dims()
		if c != len(y) {
			return nil, errors.NewDataShapeError("constraint "+law.Name()+": jacobian columns", len(y), c, 1)
		}
		for i := 0; i < r; i++ {
			jac.SetRow(row, j.RawRowView(i))
			row++
		}
	}
	return jac, nil
}
