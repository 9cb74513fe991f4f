package experiment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/ensemble"
	"github.com/plasmago/ltpsurrogate/evaluation"
	"github.com/plasmago/ltpsurrogate/preprocessing"
	"github.com/plasmago/ltpsurrogate/projection"
)

// physicalPredictor wraps a normalized-space member so the ensemble mean and
// uncertainty come out in physical units.
type physicalPredictor struct {
	member   ensemble.Predictor
	pipeline *preprocessing.Pipeline
}

func (pp physicalPredictor) Predict(inputs *mat.Dense) (*mat.Dense, error) {
	norm, err := pp.member.Predict(inputs)
	if err != nil {
		return nil, err
	}
	return pp.pipeline.InverseOutputs(norm)
}

// PhysicalEnsemble rewraps every member to predict in physical units, so the
// spread across members is aggregated after de-normalization.
func PhysicalEnsemble(e *ensemble.Ensemble, pipeline *preprocessing.Pipeline) (*ensemble.Ensemble, error) {
	members := make([]ensemble.Predictor, 0, e.Size())
	for _, m := range e.Members() {
		members = append(members, physicalPredictor{member: m, pipeline: pipeline})
	}
	return ensemble.New(members...)
}

// Metrics summarizes one model variant on the held-out test set, before and
// after constraint projection.
type Metrics struct {
	MAPENN            float64
	MAPEUncertaintyNN float64
	MAPEProjected     float64
	RMSENN            float64
	RMSEProjected     float64
}

// EvaluateVariant scores an ensemble on the test partition in normalized
// space, the space the models are trained and compared in. The projection
// engine, when non-nil, additionally scores the constraint-projected
// predictions (corrected in physical units, re-normalized for scoring).
func EvaluateVariant(ens *ensemble.Ensemble, engine *projection.Engine, data *Data) (Metrics, error) {
	var m Metrics

	mean, sem, err := ens.PredictWithUncertainty(data.TestX)
	if err != nil {
		return m, err
	}

	targets := data.TestY
	if m.MAPENN, err = evaluation.MAPE(mean, targets); err != nil {
		return m, err
	}
	if m.MAPEUncertaintyNN, err = evaluation.MAPEUncertainty(sem, targets); err != nil {
		return m, err
	}
	if m.RMSENN, err = evaluation.RMSE(mean, targets); err != nil {
		return m, err
	}

	if engine == nil {
		return m, nil
	}

	projected, err := engine.Project(mean, data.TestX, projection.SpaceNormalized)
	if err != nil {
		return m, err
	}
	if m.MAPEProjected, err = evaluation.MAPE(projected, targets); err != nil {
		return m, err
	}
	if m.RMSEProjected, err = evaluation.RMSE(projected, targets); err != nil {
		return m, err
	}
	return m, nil
}

// ProjectedPhysicalPredictions returns the mean test prediction after
// projection, in physical units, for the compliance report.
func ProjectedPhysicalPredictions(ens *ensemble.Ensemble, engine *projection.Engine, data *Data) (*mat.Dense, error) {
	normMean, err := ens.Predict(data.TestX)
	if err != nil {
		return nil, err
	}
	return engine.Project(normMean, data.TestX, projection.SpacePhysical)
}

// MeanPhysicalPredictions returns the raw (unprojected) mean test prediction
// in physical units.
func MeanPhysicalPredictions(ens *ensemble.Ensemble, data *Data) (*mat.Dense, error) {
	phys, err := PhysicalEnsemble(ens, data.Pipeline)
	if err != nil {
		return nil, err
	}
	return phys.Predict(data.TestX)
}
