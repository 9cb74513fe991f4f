// Package evaluation computes the accuracy and physical-compliance metrics
// reported for the surrogate models: MAPE with zero-target exclusion, RMSE,
// the uncertainty propagated into MAPE, and per-law compliance.
package evaluation

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

// MAPE returns the mean absolute percentage error as a fraction (0.1 means
// 10%). Entries whose target is exactly zero are excluded from the mean;
// they carry no meaningful relative error.
func MAPE(pred, target *mat.Dense) (float64, error) {
	if err := checkPair("MAPE", pred, target); err != nil {
		return 0, err
	}
	r, c := target.Dims()
	sum := 0.0
	count := 0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			t := target.At(i, j)
			if t == 0 {
				continue
			}
			sum += math.Abs(pred.At(i, j)-t) / math.Abs(t)
			count++
		}
	}
	if count == 0 {
		return 0, errors.Wrap(errors.ErrEmptyData, "MAPE: every target entry is zero")
	}
	return sum / float64(count), nil
}

// MAPEUncertainty propagates the per-entry prediction uncertainty sem into
// the MAPE estimate: √(Σ (σ/t)²) divided by the number of samples (rows).
// Zero-target entries are excluded from the sum, as in MAPE.
func MAPEUncertainty(sem, target *mat.Dense) (float64, error) {
	if err := checkPair("MAPEUncertainty", sem, target); err != nil {
		return 0, err
	}
	r, c := target.Dims()
	sumSq := 0.0
	included := 0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			t := target.At(i, j)
			if t == 0 {
				continue
			}
			rel := sem.At(i, j) / t
			sumSq += rel * rel
			included++
		}
	}
	if included == 0 {
		return 0, errors.Wrap(errors.ErrEmptyData, "MAPEUncertainty: every target entry is zero")
	}
	return math.Sqrt(sumSq) / float64(r), nil
}

// RMSE returns the root mean squared error over all entries. Unlike MAPE it
// has no zero-target exclusion.
func RMSE(pred, target *mat.Dense) (float64, error) {
	if err := checkPair("RMSE", pred, target); err != nil {
		return 0, err
	}
	r, c := target.Dims()
	if r == 0 || c == 0 {
		return 0, errors.Wrap(errors.ErrEmptyData, "RMSE")
	}
	sum := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := pred.At(i, j) - target.At(i, j)
			sum += d * d
		}
	}
	return math.Sqrt(sum / float64(r*c)), nil
}

// PerOutputMAPE returns one MAPE per output dimension, with the same
// zero-target exclusion applied per column. A column whose targets are all
// zero yields NaN in that position.
func PerOutputMAPE(pred, target *mat.Dense) ([]float64, error) {
	if err := checkPair("PerOutputMAPE", pred, target); err != nil {
		return nil, err
	}
	r, c := target.Dims()
	out := make([]float64, c)
	for j := 0; j < c; j++ {
		sum := 0.0
		count := 0
		for i := 0; i < r; i++ {
			t := target.At(i, j)
			if t == 0 {
				continue
			}
			sum += math.Abs(pred.At(i, j)-t) / math.Abs(t)
			count++
		}
		if count == 0 {
			out[j] = math.NaN()
			continue
		}
		out[j] = sum / float64(count)
	}
	return out, nil
}

func checkPair(op string, a, b *mat.Dense) error {
	if a == nil || b == nil {
		return errors.Wrap(errors.ErrEmptyData, op)
	}
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br {
		return errors.NewDataShapeError(op, br, ar, 0)
	}
	if ac != bc {
		return errors.NewDataShapeError(op, bc, ac, 1)
	}
	if err := errors.CheckMatrix(op+": predictions", a, ar, ac); err != nil {
		return err
	}
	return errors.CheckMatrix(op+": targets", b, br, bc)
}
