package preprocessing

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

// Pipeline holds the fitted preprocessing for inputs and outputs: the
// indices of skewed features (log1p-transformed before scaling) and one
// scaler per column. Physical laws hold in de-normalized units, so the
// projection engine round-trips predictions through InverseOutputs /
// TransformOutputsRow.
type Pipeline struct {
	kind   string
	thDown float64
	thUp   float64
	fitted bool

	InScalers  []ColumnScaler
	OutScalers []ColumnScaler

	// SkewedIn and SkewedOut list the feature indices that received a
	// log1p transform before scaling, chosen by sample skewness on the
	// reference dataset.
	SkewedIn  []int
	SkewedOut []int

	skewedInSet  map[int]bool
	skewedOutSet map[int]bool
}

// NewPipeline creates an unfitted pipeline. kind selects the column scaler
// ("maxabs", "minmax", "standard"); features whose sample skewness falls
// outside [thDown, thUp] are log1p-transformed before scaling.
func NewPipeline(kind string, thDown, thUp float64) *Pipeline {
	return &Pipeline{kind: kind, thDown: thDown, thUp: thUp}
}

// IsFitted reports whether Fit has completed.
func (p *Pipeline) IsFitted() bool { return p.fitted }

// Fit detects skewed features and fits one scaler per column on the
// reference dataset. Fitting twice is a configuration error: scaler
// parameters are immutable once fit and must be reused identically across
// train, validation, test and inference data.
func (p *Pipeline) Fit(inputs, targets *mat.Dense) error {
	if p.fitted {
		return errors.NewConfigurationError("preprocessing.Pipeline", "already fitted; scalers must never be refit", nil)
	}
	n, nIn := inputs.Dims()
	nT, nOut := targets.Dims()
	if n == 0 || nIn == 0 || nOut == 0 {
		return errors.Wrap(errors.ErrEmptyData, "Pipeline.Fit")
	}
	if nT != n {
		return errors.NewDataShapeError("Pipeline.Fit", n, nT, 0)
	}

	var err error
	p.SkewedIn, p.InScalers, err = p.fitSide(inputs, n, nIn)
	if err != nil {
		return err
	}
	p.SkewedOut, p.OutScalers, err = p.fitSide(targets, n, nOut)
	if err != nil {
		return err
	}

	p.skewedInSet = indexSet(p.SkewedIn)
	p.skewedOutSet = indexSet(p.SkewedOut)
	p.fitted = true
	return nil
}

func (p *Pipeline) fitSide(m *mat.Dense, n, cols int) (skewed []int, scalers []ColumnScaler, err error) {
	scalers = make([]ColumnScaler, cols)
	for j := 0; j < cols; j++ {
		col := mat.Col(nil, j, m)
		skew, err := sampleSkewness(col)
		if err != nil {
			return nil, nil, err
		}
		isSkewed := skew < p.thDown || skew > p.thUp
		if isSkewed {
			skewed = append(skewed, j)
			for i, v := range col {
				col[i] = math.Log1p(v)
			}
		}
		scalers[j] = newColumnScaler(p.kind)
		if err := scalers[j].Fit(col); err != nil {
			return nil, nil, err
		}
	}
	return skewed, scalers, nil
}

// sampleSkewness computes the third standardized moment of a column.
func sampleSkewness(col []float64) (float64, error) {
	mean, err := stats.Mean(col)
	if err != nil {
		return 0, errors.Wrap(err, "sampleSkewness")
	}
	sigma, err := stats.StandardDeviation(col)
	if err != nil {
		return 0, errors.Wrap(err, "sampleSkewness")
	}
	if sigma < 1e-12 {
		return 0, nil
	}
	sum := 0.0
	for _, v := range col {
		d := (v - mean) / sigma
		sum += d * d * d
	}
	return sum / float64(len(col)), nil
}

// TransformInputs maps raw inputs to normalized space.
func (p *Pipeline) TransformInputs(x *mat.Dense) (*mat.Dense, error) {
	return p.transform(x, p.InScalers, p.skewedInSet, "TransformInputs")
}

// TransformOutputs maps raw physical outputs to normalized space.
func (p *Pipeline) TransformOutputs(y *mat.Dense) (*mat.Dense, error) {
	return p.transform(y, p.OutScalers, p.skewedOutSet, "TransformOutputs")
}

// InverseInputs maps normalized inputs back to physical units.
func (p *Pipeline) InverseInputs(x *mat.Dense) (*mat.Dense, error) {
	return p.inverse(x, p.InScalers, p.skewedInSet, "InverseInputs")
}

// InverseOutputs maps normalized outputs back to physical units.
func (p *Pipeline) InverseOutputs(y *mat.Dense) (*mat.Dense, error) {
	return p.inverse(y, p.OutScalers, p.skewedOutSet, "InverseOutputs")
}

func (p *Pipeline) transform(m *mat.Dense, scalers []ColumnScaler, skewed map[int]bool, op string) (*mat.Dense, error) {
	if !p.fitted {
		return nil, errors.NewNotFittedError("Pipeline", op)
	}
	r, c := m.Dims()
	if c != len(scalers) {
		return nil, errors.NewDataShapeError("Pipeline."+op, len(scalers), c, 1)
	}
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if skewed[j] {
				v = math.Log1p(v)
			}
			out.Set(i, j, scalers[j].Transform(v))
		}
	}
	return out, nil
}

func (p *Pipeline) inverse(m *mat.Dense, scalers []ColumnScaler, skewed map[int]bool, op string) (*mat.Dense, error) {
	if !p.fitted {
		return nil, errors.NewNotFittedError("Pipeline", op)
	}
	r, c := m.Dims()
	if c != len(scalers) {
		return nil, errors.NewDataShapeError("Pipeline."+op, len(scalers), c, 1)
	}
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := scalers[j].Inverse(m.At(i, j))
			if skewed[j] {
				v = math.Expm1(v)
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

// TransformOutputsRow normalizes a single physical output vector.
func (p *Pipeline) TransformOutputsRow(y []float64) ([]float64, error) {
	if !p.fitted {
		return nil, errors.NewNotFittedError("Pipeline", "TransformOutputsRow")
	}
	if len(y) != len(p.OutScalers) {
		return nil, errors.NewDataShapeError("Pipeline.TransformOutputsRow", len(p.OutScalers), len(y), 1)
	}
	out := make([]float64, len(y))
	for j, v := range y {
		if p.skewedOutSet[j] {
			v = math.Log1p(v)
		}
		out[j] = p.OutScalers[j].Transform(v)
	}
	return out, nil
}

// InverseOutputsRow de-normalizes a single output vector into physical units.
func (p *Pipeline) InverseOutputsRow(y []float64) ([]float64, error) {
	if !p.fitted {
		return nil, errors.NewNotFittedError("Pipeline", "InverseOutputsRow")
	}
	if len(y) != len(p.OutScalers) {
		return nil, errors.NewDataShapeError("Pipeline.InverseOutputsRow", len(p.OutScalers), len(y), 1)
	}
	out := make([]float64, len(y))
	for j, v := range y {
		u := p.OutScalers[j].Inverse(v)
		if p.skewedOutSet[j] {
			u = math.Expm1(u)
		}
		out[j] = u
	}
	return out, nil
}

// InverseInputsRow de-normalizes a single input vector into physical units.
func (p *Pipeline) InverseInputsRow(x []float64) ([]float64, error) {
	if !p.fitted {
		return nil, errors.NewNotFittedError("Pipeline", "InverseInputsRow")
	}
	if len(x) != len(p.InScalers) {
		return nil, errors.NewDataShapeError("Pipeline.InverseInputsRow", len(p.InScalers), len(x), 1)
	}
	out := make([]float64, len(x))
	for j, v := range x {
		u := p.InScalers[j].Inverse(v)
		if p.skewedInSet[j] {
			u = math.Expm1(u)
		}
		out[j] = u
	}
	return out, nil
}

// InverseOutputDerivativeRow returns d y_phys / d y_norm evaluated at a
// normalized output vector, one value per dimension. The physics-informed
// loss uses it to chain constraint gradients back into normalized space.
func (p *Pipeline) InverseOutputDerivativeRow(y []float64) ([]float64, error) {
	if !p.fitted {
		return nil, errors.NewNotFittedError("Pipeline", "InverseOutputDerivativeRow")
	}
	if len(y) != len(p.OutScalers) {
		return nil, errors.NewDataShapeError("Pipeline.InverseOutputDerivativeRow", len(p.OutScalers), len(y), 1)
	}
	out := make([]float64, len(y))
	for j, v := range y {
		d := p.OutScalers[j].InverseDerivative()
		if p.skewedOutSet[j] {
			// y_phys = expm1(u), u = scaler.Inverse(v).
			d *= math.Exp(p.OutScalers[j].Inverse(v))
		}
		out[j] = d
	}
	return out, nil
}

// NumInputs returns the fitted input dimensionality.
func (p *Pipeline) NumInputs() int { return len(p.InScalers) }

// NumOutputs returns the fitted output dimensionality.
func (p *Pipeline) NumOutputs() int { return len(p.OutScalers) }

func indexSet(idx []int) map[int]bool {
	set := make(map[int]bool, len(idx))
	for _, i := range idx {
		set[i] = true
	}
	return set
}
