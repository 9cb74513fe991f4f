package physics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

func checkLTPShapes(name string, x, y []float64) error {
	if len(x) != NumInputs {
		return errors.NewDataShapeError("constraint "+name+": inputs", NumInputs, len(x), 1)
	}
	if len(y) != NumOutputs {
		return errors.NewDataShapeError("constraint "+name+": outputs", NumOutputs, len(y), 1)
	}
	return checkFinite(name, x, y)
}

// QuasiNeutrality enforces charge balance: the electron and negative-ion
// densities must equal the positive-ion densities,
//
//	ne + n(O-) − n(O2+) − n(O+) = 0.
type QuasiNeutrality struct{}

func (QuasiNeutrality) Name() string { return "quasi_neutrality" }

func (QuasiNeutrality) Dim() int { return 1 }

func (q QuasiNeutrality) Residual(x, y []float64) ([]float64, error) {
	if err := checkLTPShapes(q.Name(), x, y); err != nil {
		return nil, err
	}
	return []float64{y[OutNe] + y[OutOMinus] - y[OutO2Plus] - y[OutOPlus]}, nil
}

func (q QuasiNeutrality) Jacobian(x, y []float64) (*mat.Dense, error) {
	if err := checkLTPShapes(q.Name(), x, y); err != nil {
		return nil, err
	}
	jac := mat.NewDense(1, NumOutputs, nil)
	jac.Set(0, OutNe, 1)
	jac.Set(0, OutOMinus, 1)
	jac.Set(0, OutO2Plus, -1)
	jac.Set(0, OutOPlus, -1)
	return jac, nil
}

// Sides reports negative charge (lhs) against positive charge (rhs).
func (q QuasiNeutrality) Sides(x, y []float64) (lhs, rhs float64, err error) {
	if err := checkLTPShapes(q.Name(), x, y); err != nil {
		return 0, 0, err
	}
	return y[OutNe] + y[OutOMinus], y[OutO2Plus] + y[OutOPlus], nil
}

// PressureBalance enforces the ideal-gas law against the operating pressure:
//
//	kB · Tg · Σ n(neutral) − p = 0,
//
// where p is taken from the input vector.
type PressureBalance struct{}

func (PressureBalance) Name() string { return "pressure_balance" }

func (PressureBalance) Dim() int { return 1 }

func (p PressureBalance) Residual(x, y []float64) ([]float64, error) {
	if err := checkLTPShapes(p.Name(), x, y); err != nil {
		return nil, err
	}
	return []float64{kB*y[OutTg]*neutralSum(y) - x[InPressure]}, nil
}

func (p PressureBalance) Jacobian(x, y []float64) (*mat.Dense, error) {
	if err := checkLTPShapes(p.Name(), x, y); err != nil {
		return nil, err
	}
	jac := mat.NewDense(1, NumOutputs, nil)
	for _, idx := range neutralSpecies {
		jac.Set(0, idx, kB*y[OutTg])
	}
	jac.Set(0, OutTg, kB*neutralSum(y))
	return jac, nil
}

// Sides reports the kinetic pressure (lhs) against the set pressure (rhs).
func (p PressureBalance) Sides(x, y []float64) (lhs, rhs float64, err error) {
	if err := checkLTPShapes(p.Name(), x, y); err != nil {
		return 0, 0, err
	}
	return kB * y[OutTg] * neutralSum(y), x[InPressure], nil
}

func neutralSum(y []float64) float64 {
	sum := 0.0
	for _, idx := range neutralSpecies {
		sum += y[idx]
	}
	return sum
}

// RateBalance enforces consistency between the predicted net ionization rate
// and its kinetic expression:
//
//	Rion − kion · ne · n(O2(X)) = 0.
type RateBalance struct{}

func (RateBalance) Name() string { return "rate_balance" }

func (RateBalance) Dim() int { return 1 }

func (r RateBalance) Residual(x, y []float64) ([]float64, error) {
	if err := checkLTPShapes(r.Name(), x, y); err != nil {
		return nil, err
	}
	return []float64{y[OutRion] - y[OutKion]*y[OutNe]*y[OutO2X]}, nil
}

func (r RateBalance) Jacobian(x, y []float64) (*mat.Dense, error) {
	if err := checkLTPShapes(r.Name(), x, y); err != nil {
		return nil, err
	}
	jac := mat.NewDense(1, NumOutputs, nil)
	jac.Set(0, OutRion, 1)
	jac.Set(0, OutKion, -y[OutNe]*y[OutO2X])
	jac.Set(0, OutNe, -y[OutKion]*y[OutO2X])
	jac.Set(0, OutO2X, -y[OutKion]*y[OutNe])
	return jac, nil
}

// Sides reports the predicted rate (lhs) against its kinetic expression (rhs).
func (r RateBalance) Sides(x, y []float64) (lhs, rhs float64, err error) {
	if err := checkLTPShapes(r.Name(), x, y); err != nil {
		return 0, 0, err
	}
	return y[OutRion], y[OutKion] * y[OutNe] * y[OutO2X], nil
}

// AllLaws returns the full constraint set in reporting order.
func AllLaws() []Constraint {
	return []Constraint{QuasiNeutrality{}, PressureBalance{}, RateBalance{}}
}
