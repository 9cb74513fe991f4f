// Package preprocessing fits and applies the per-feature normalization used
// by the surrogate models: an optional log1p transform for heavy-tailed
// features followed by one scaler per column. Scaler parameters are fit once
// on the reference dataset and are immutable afterwards; the same fitted
// Pipeline must be reused for train, validation, test and inference data.
package preprocessing

import (
	"math"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

// ColumnScaler normalizes a single feature column. Implementations must be
// deterministic and side-effect free after Fit.
type ColumnScaler interface {
	Fit(column []float64) error
	Transform(v float64) float64
	Inverse(v float64) float64
	// InverseDerivative is d Inverse / d v, constant for the affine scalers
	// used here; the physics-informed loss chains gradients through it.
	InverseDerivative() float64
}

// MaxAbsScaler scales a column by its maximum absolute value, mapping the
// fitted data into [-1, 1]. This is the default for the LTP outputs, whose
// densities span many orders of magnitude but are non-negative.
type MaxAbsScaler struct {
	MaxAbs float64
}

// Fit records the maximum absolute value of the column.
func (s *MaxAbsScaler) Fit(column []float64) error {
	if len(column) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "MaxAbsScaler.Fit")
	}
	maxAbs := 0.0
	for _, v := range column {
		if a := math.Abs(v); a > maxAbs {
			maxAbs = a
		}
	}
	// Constant zero columns scale by 1 to avoid division by zero.
	if maxAbs < 1e-12 {
		maxAbs = 1.0
	}
	s.MaxAbs = maxAbs
	return nil
}

func (s *MaxAbsScaler) Transform(v float64) float64 { return v / s.MaxAbs }

func (s *MaxAbsScaler) Inverse(v float64) float64 { return v * s.MaxAbs }

func (s *MaxAbsScaler) InverseDerivative() float64 { return s.MaxAbs }

// MinMaxScaler maps the fitted data range onto [0, 1].
type MinMaxScaler struct {
	DataMin float64
	Scale   float64 // data range; 1 for constant columns
}

// Fit records the minimum and range of the column.
func (s *MinMaxScaler) Fit(column []float64) error {
	if len(column) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "MinMaxScaler.Fit")
	}
	min, max := column[0], column[0]
	for _, v := range column[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	s.DataMin = min
	s.Scale = max - min
	if math.Abs(s.Scale) < 1e-12 {
		s.Scale = 1.0
	}
	return nil
}

func (s *MinMaxScaler) Transform(v float64) float64 { return (v - s.DataMin) / s.Scale }

func (s *MinMaxScaler) Inverse(v float64) float64 { return v*s.Scale + s.DataMin }

func (s *MinMaxScaler) InverseDerivative() float64 { return s.Scale }

// StandardScaler centers a column to zero mean and unit variance.
type StandardScaler struct {
	Mean  float64
	Sigma float64
}

// Fit records the mean and standard deviation of the column.
func (s *StandardScaler) Fit(column []float64) error {
	n := len(column)
	if n == 0 {
		return errors.Wrap(errors.ErrEmptyData, "StandardScaler.Fit")
	}
	sum := 0.0
	for _, v := range column {
		sum += v
	}
	mean := sum / float64(n)
	sumSq := 0.0
	for _, v := range column {
		d := v - mean
		sumSq += d * d
	}
	sigma := math.Sqrt(sumSq / float64(n))
	if sigma < 1e-12 {
		sigma = 1.0
	}
	s.Mean = mean
	s.Sigma = sigma
	return nil
}

func (s *StandardScaler) Transform(v float64) float64 { return (v - s.Mean) / s.Sigma }

func (s *StandardScaler) Inverse(v float64) float64 { return v*s.Sigma + s.Mean }

func (s *StandardScaler) InverseDerivative() float64 { return s.Sigma }

// newColumnScaler returns a fresh scaler of the configured kind. The kind is
// validated by config.Load, so an unknown value here is a programming error.
func newColumnScaler(kind string) ColumnScaler {
	switch kind {
	case "maxabs":
		return &MaxAbsScaler{}
	case "minmax":
		return &MinMaxScaler{}
	case "standard":
		return &StandardScaler{}
	default:
		panic("preprocessing: unknown scaler kind " + kind)
	}
}
