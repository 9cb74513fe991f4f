package errors

import (
	"math"
)

// CheckVector returns a NumericalInstabilityError if values contain NaN or Inf.
func CheckVector(op string, values []float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewNumericalInstabilityError(op, collectNonFinite(values), "non-finite values")
		}
	}
	return nil
}

// CheckScalar returns a NumericalInstabilityError if value is NaN or Inf.
func CheckScalar(op string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return NewNumericalInstabilityError(op, []float64{value}, "non-finite value")
	}
	return nil
}

// CheckMatrix returns a NumericalInstabilityError if any entry of the matrix
// is NaN or Inf. The error carries at most the first ten offending values.
func CheckMatrix(op string, matrix interface{ At(int, int) float64 }, rows, cols int) error {
	var unstable []float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := matrix.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				unstable = append(unstable, v)
				if len(unstable) >= 10 {
					return NewNumericalInstabilityError(op, unstable, "non-finite matrix entries")
				}
			}
		}
	}
	if len(unstable) > 0 {
		return NewNumericalInstabilityError(op, unstable, "non-finite matrix entries")
	}
	return nil
}

func collectNonFinite(values []float64) []float64 {
	var out []float64
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out = append(out, v)
			if len(out) >= 10 {
				break
			}
		}
	}
	return out
}
