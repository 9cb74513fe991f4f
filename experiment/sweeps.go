package experiment

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/config"
	"github.com/plasmago/ltpsurrogate/dataset"
	"github.com/plasmago/ltpsurrogate/evaluation"
	"github.com/plasmago/ltpsurrogate/nn"
	"github.com/plasmago/ltpsurrogate/physics"
	"github.com/plasmago/ltpsurrogate/pkg/log"
	"github.com/plasmago/ltpsurrogate/projection"
	"github.com/plasmago/ltpsurrogate/report"
)

// ArchitectureSweep trains one ensemble per sampled hidden layout and scores
// each before and after projection on the shared test partition. The results
// table is persisted next to the figures; with retraining off, a previously
// persisted table is reloaded instead of rerunning the sweep.
func (r *Run) ArchitectureSweep(data *Data, engine *projection.Engine, rng *rand.Rand) ([]report.ArchitectureRecord, error) {
	resultsPath := filepath.Join(r.Config.Plotting.OutputDir, "architectures.csv")
	logger := r.logger().With(log.OperationKey, "architecture_sweep")

	if !r.Config.NNModel.Retrain {
		records, err := report.ReadArchitectureResults(resultsPath)
		if err != nil {
			return nil, err
		}
		logger.Info("sweep results restored", "records", len(records))
		return records, nil
	}

	archs, err := SampleArchitectures(r.Config.ArchSweep, rng)
	if err != nil {
		return nil, err
	}

	records := make([]report.ArchitectureRecord, 0, len(archs))
	for i, hidden := range archs {
		cfg := r.Config.NNModel
		cfg.Retrain = true
		cfg.HiddenSizes = hidden
		cfg.ActivationFns = repeatActivation(r.Config.ArchSweep.ActivationFn, len(hidden))
		cfg.LambdaPhysics = nil

		name := fmt.Sprintf("arch_sweep_%03d", i)
		ens, _, err := r.TrainOrLoad(name, cfg, nil, data, r.Config.Seed+int64(i)*1000)
		if err != nil {
			return nil, err
		}
		metrics, err := EvaluateVariant(ens, engine, data)
		if err != nil {
			return nil, err
		}

		rec := report.ArchitectureRecord{
			Architecture:      hidden,
			NumParams:         CountParameters(hidden),
			MAPENN:            metrics.MAPENN,
			MAPEUncertaintyNN: metrics.MAPEUncertaintyNN,
			MAPEProjected:     metrics.MAPEProjected,
			RMSENN:            metrics.RMSENN,
			RMSEProjected:     metrics.RMSEProjected,
			TrainingTime:      nn.TotalTrainingTime(ens),
		}
		records = append(records, rec)
		logger.Info("architecture scored",
			"architecture", fmt.Sprint(hidden),
			"num_params", rec.NumParams,
			"mape_nn", rec.MAPENN,
			"mape_proj", rec.MAPEProjected,
		)
	}
	if err := report.WriteArchitectureResults(resultsPath, records); err != nil {
		return nil, err
	}
	return records, nil
}

// SizeSweep retrains the reference architecture on growing subsets of the
// training pool, always scoring against the same held-out test table. The
// pipeline is refitted per subset: a scaler fitted on data the model never
// sees would leak.
func (r *Run) SizeSweep(pool, test *dataset.Table, weights *projection.Weights, rng *rand.Rand) ([]report.SizeRecord, error) {
	logger := r.logger().With(log.OperationKey, "size_sweep")

	records := make([]report.SizeRecord, 0, len(r.Config.SizeSweep.DatasetSizes))
	for i, size := range r.Config.SizeSweep.DatasetSizes {
		subset := dataset.SelectRandomRows(pool, size, rng)
		data, err := r.PrepareWithHoldout(subset, test, rng)
		if err != nil {
			return nil, err
		}
		engine, err := r.Engine(weights, data)
		if err != nil {
			return nil, err
		}

		cfg := r.Config.NNModel
		cfg.Retrain = true
		cfg.LambdaPhysics = nil

		name := fmt.Sprintf("size_sweep_%03d", i)
		ens, _, err := r.TrainOrLoad(name, cfg, nil, data, r.Config.Seed+int64(i)*7000)
		if err != nil {
			return nil, err
		}
		metrics, err := EvaluateVariant(ens, engine, data)
		if err != nil {
			return nil, err
		}

		records = append(records, report.SizeRecord{
			DatasetSize:       subset.NumSamples(),
			MAPENN:            metrics.MAPENN,
			MAPEUncertaintyNN: metrics.MAPEUncertaintyNN,
			MAPEProjected:     metrics.MAPEProjected,
			RMSENN:            metrics.RMSENN,
			RMSEProjected:     metrics.RMSEProjected,
			TrainingTime:      nn.TotalTrainingTime(ens),
		})
		logger.Info("dataset size scored",
			log.SamplesKey, subset.NumSamples(),
			"mape_nn", metrics.MAPENN,
			"mape_proj", metrics.MAPEProjected,
		)
	}
	return records, nil
}

// Engine builds the projection engine for this run's laws over a prepared
// pipeline.
func (r *Run) Engine(weights *projection.Weights, data *Data) (*projection.Engine, error) {
	stack, err := physicsStack(r.Laws)
	if err != nil {
		return nil, err
	}
	return projection.NewEngine(stack, weights, data.Pipeline)
}

// Compliance evaluates every law on the test partition for the plain and
// physics-informed variants, with the solver targets as the reference row.
func (r *Run) Compliance(nnPreds, pinnPreds *mat.Dense, data *Data) ([]evaluation.ComplianceRow, error) {
	return evaluation.ComplianceTable(r.Laws, data.Test.Inputs, nnPreds, pinnPreds, data.Test.Targets)
}

func physicsStack(laws []physics.Constraint) (physics.Constraint, error) {
	if len(laws) == 1 {
		return laws[0], nil
	}
	return physics.NewStack(laws...)
}

func repeatActivation(name string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = name
	}
	return out
}

func repeatLambda(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// DefaultModelConfig fills derived defaults that depend on the law set, such
// as a uniform physics-loss weight vector.
func DefaultModelConfig(cfg config.Model, nLaws int) config.Model {
	if len(cfg.LambdaPhysics) == 1 && nLaws > 1 {
		cfg.LambdaPhysics = repeatLambda(cfg.LambdaPhysics[0], nLaws)
	}
	return cfg
}
