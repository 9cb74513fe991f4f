package experiment

import (
	"log/slog"
	"math/rand"
	"path/filepath"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/config"
	"github.com/plasmago/ltpsurrogate/dataset"
	"github.com/plasmago/ltpsurrogate/ensemble"
	"github.com/plasmago/ltpsurrogate/nn"
	"github.com/plasmago/ltpsurrogate/physics"
	"github.com/plasmago/ltpsurrogate/pkg/log"
	"github.com/plasmago/ltpsurrogate/preprocessing"
)

// Run ties one experiment execution together: the configuration, the physical
// laws under study, and a unique identifier stamped on every log line.
type Run struct {
	ID     string
	Config *config.Config
	Laws   []physics.Constraint
}

// NewRun creates a run over the standard law set.
func NewRun(cfg *config.Config) *Run {
	return &Run{
		ID:     uuid.NewString(),
		Config: cfg,
		Laws:   physics.AllLaws(),
	}
}

func (r *Run) logger() *slog.Logger {
	return slog.Default().With(log.RunIDKey, r.ID)
}

// Data holds one prepared train/val/test split: the physical tables and
// their normalized matrices under a pipeline fitted on the training rows
// only.
type Data struct {
	Pipeline *preprocessing.Pipeline

	Train, Val, Test *dataset.Table

	TrainX, TrainY *mat.Dense
	ValX, ValY     *mat.Dense
	TestX, TestY   *mat.Dense
}

// Prepare splits the table and fits the preprocessing pipeline on the
// training partition, then normalizes all three.
func (r *Run) Prepare(table *dataset.Table, rng *rand.Rand) (*Data, error) {
	prep := r.Config.DataPrep
	train, val, test := dataset.Split(table, prep.FractionTrain, prep.FractionVal, rng)
	return r.prepare(train, val, test)
}

// PrepareWithHoldout normalizes a train/val split against a fixed held-out
// test table, the layout the sweeps use so every variant is scored on the
// same samples.
func (r *Run) PrepareWithHoldout(pool, test *dataset.Table, rng *rand.Rand) (*Data, error) {
	prep := r.Config.DataPrep
	// The pool is divided between train and val in the configured proportion.
	fracTrain := prep.FractionTrain / (prep.FractionTrain + prep.FractionVal)
	train, val, _ := dataset.Split(pool, fracTrain, 1-fracTrain, rng)
	return r.prepare(train, val, test)
}

func (r *Run) prepare(train, val, test *dataset.Table) (*Data, error) {
	prep := r.Config.DataPrep
	pipeline := preprocessing.NewPipeline(prep.Scaler, prep.SkewThresholdDown, prep.SkewThresholdUp)
	if err := pipeline.Fit(train.Inputs, train.Targets); err != nil {
		return nil, err
	}

	d := &Data{Pipeline: pipeline, Train: train, Val: val, Test: test}
	var err error
	if d.TrainX, err = pipeline.TransformInputs(train.Inputs); err != nil {
		return nil, err
	}
	if d.TrainY, err = pipeline.TransformOutputs(train.Targets); err != nil {
		return nil, err
	}
	if d.ValX, err = pipeline.TransformInputs(val.Inputs); err != nil {
		return nil, err
	}
	if d.ValY, err = pipeline.TransformOutputs(val.Targets); err != nil {
		return nil, err
	}
	if d.TestX, err = pipeline.TransformInputs(test.Inputs); err != nil {
		return nil, err
	}
	if d.TestY, err = pipeline.TransformOutputs(test.Targets); err != nil {
		return nil, err
	}

	r.logger().Info("data prepared",
		log.OperationKey, "prepare",
		log.SamplesKey, train.NumSamples(),
		"val_samples", val.NumSamples(),
		"test_samples", test.NumSamples(),
	)
	return d, nil
}

// TrainOrLoad returns the named ensemble, either by training it fresh (and
// checkpointing) or by restoring a previous checkpoint when retraining is
// off. laws is nil for the plain data-driven variant.
func (r *Run) TrainOrLoad(name string, cfg config.Model, laws []physics.Constraint, data *Data, seed int64) (*ensemble.Ensemble, *nn.History, error) {
	path := filepath.Join(cfg.CheckpointDir, name+".gob")
	logger := r.logger().With(log.ModelKey, name)

	if !cfg.Retrain {
		nets, hist, err := nn.LoadCheckpoint(path)
		if err != nil {
			return nil, nil, err
		}
		members := make([]ensemble.Predictor, len(nets))
		for i, net := range nets {
			members[i] = net
		}
		ens, err := ensemble.New(members...)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("checkpoint restored", log.OperationKey, "load", "members", ens.Size())
		return ens, hist, nil
	}

	ens, hist, err := nn.TrainBootstrapEnsemble(cfg, laws, data.Pipeline,
		data.TrainX, data.TrainY, data.ValX, data.ValY, seed)
	if err != nil {
		return nil, nil, err
	}
	if err := nn.SaveCheckpoint(path, nn.Networks(ens), hist); err != nil {
		return nil, nil, err
	}
	logger.Info("ensemble trained",
		log.OperationKey, "train",
		"members", ens.Size(),
		log.DurationKey, nn.TotalTrainingTime(ens),
		log.LossKey, hist.ValLoss[len(hist.ValLoss)-1],
	)
	return ens, hist, nil
}
