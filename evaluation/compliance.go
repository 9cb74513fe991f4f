package evaluation

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
	"github.com/plasmago/ltpsurrogate/physics"
)

// LawCompliance measures how well a batch of physical predictions satisfies
// a law, as the mean relative mismatch |lhs − rhs| / |rhs| across samples.
// The law must report its two sides (implement physics.Sided); samples with
// an exactly zero reference side are excluded, matching the MAPE convention.
func LawCompliance(law physics.Constraint, inputs, outputs *mat.Dense) (float64, error) {
	sided, ok := law.(physics.Sided)
	if !ok {
		return 0, errors.NewConfigurationError("evaluation.law", "law does not expose lhs/rhs sides", law.Name())
	}
	n, _ := inputs.Dims()
	nOut, _ := outputs.Dims()
	if n != nOut {
		return 0, errors.NewDataShapeError("LawCompliance "+law.Name(), n, nOut, 0)
	}

	sum := 0.0
	count := 0
	for i := 0; i < n; i++ {
		lhs, rhs, err := sided.Sides(inputs.RawRowView(i), outputs.RawRowView(i))
		if err != nil {
			return 0, errors.Wrapf(err, "law %s sample %d", law.Name(), i)
		}
		if rhs == 0 {
			continue
		}
		sum += math.Abs(lhs-rhs) / math.Abs(rhs)
		count++
	}
	if count == 0 {
		return 0, errors.Wrapf(errors.ErrEmptyData, "law %s: every reference side is zero", law.Name())
	}
	return sum / float64(count), nil
}

// ComplianceRow is one line of the compliance table: the mean relative
// mismatch of a law for each model variant.
type ComplianceRow struct {
	Law       string
	NNModel   float64
	PINNModel float64
	LokiModel float64
}

// ComplianceTable evaluates every law against the physical predictions of
// the plain network, the physics-informed network, and the reference solver
// targets.
func ComplianceTable(laws []physics.Constraint, inputs, nnOutputs, pinnOutputs, lokiOutputs *mat.Dense) ([]ComplianceRow, error) {
	rows := make([]ComplianceRow, 0, len(laws))
	for _, law := range laws {
		nn, err := LawCompliance(law, inputs, nnOutputs)
		if err != nil {
			return nil, err
		}
		pinn, err := LawCompliance(law, inputs, pinnOutputs)
		if err != nil {
			return nil, err
		}
		loki, err := LawCompliance(law, inputs, lokiOutputs)
		if err != nil {
			return nil, err
		}
		rows = append(rows, ComplianceRow{
			Law:       law.Name(),
			NNModel:   nn,
			PINNModel: pinn,
			LokiModel: loki,
		})
	}
	return rows, nil
}
