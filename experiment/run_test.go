package experiment

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/config"
	"github.com/plasmago/ltpsurrogate/dataset"
	"github.com/plasmago/ltpsurrogate/ensemble"
	"github.com/plasmago/ltpsurrogate/evaluation"
	"github.com/plasmago/ltpsurrogate/physics"
	"github.com/plasmago/ltpsurrogate/pkg/errors"
	"github.com/plasmago/ltpsurrogate/projection"
	"github.com/plasmago/ltpsurrogate/report"
)

// syntheticTable draws LTP-like states that satisfy the laws exactly, with
// the pressure input consistent with the neutral densities.
func syntheticTable(rng *rand.Rand, n int) *dataset.Table {
	inputs := mat.NewDense(n, physics.NumInputs, nil)
	targets := mat.NewDense(n, physics.NumOutputs, nil)
	for i := 0; i < n; i++ {
		y := make([]float64, physics.NumOutputs)
		y[physics.OutO2X] = 1e22 * (0.5 + rng.Float64())
		y[physics.OutO2a] = 1e20 * (0.5 + rng.Float64())
		y[physics.OutO2b] = 1e19 * (0.5 + rng.Float64())
		y[physics.OutO3P] = 5e20 * (0.5 + rng.Float64())
		y[physics.OutO1D] = 1e18 * (0.5 + rng.Float64())
		y[physics.OutO3] = 2e19 * (0.5 + rng.Float64())
		y[physics.OutO2Plus] = 4e16 * (0.5 + rng.Float64())
		y[physics.OutOPlus] = 1e15 * (0.5 + rng.Float64())
		y[physics.OutOMinus] = 5e15 * (0.5 + rng.Float64())
		y[physics.OutNe] = y[physics.OutO2Plus] + y[physics.OutOPlus] - y[physics.OutOMinus]
		y[physics.OutTe] = 2 + rng.Float64()
		y[physics.OutTvib] = 1500 + 500*rng.Float64()
		y[physics.OutTg] = 350 + 100*rng.Float64()
		y[physics.OutEN] = 40 + 20*rng.Float64()
		y[physics.OutVd] = 1e5 * (0.5 + rng.Float64())
		y[physics.OutKion] = 3e-16 * (0.5 + rng.Float64())
		y[physics.OutRion] = y[physics.OutKion] * y[physics.OutNe] * y[physics.OutO2X]
		targets.SetRow(i, y)

		neutrals := y[physics.OutO2X] + y[physics.OutO2a] + y[physics.OutO2b] +
			y[physics.OutO3P] + y[physics.OutO1D] + y[physics.OutO3]
		inputs.SetRow(i, []float64{
			1.380649e-23 * y[physics.OutTg] * neutrals,
			0.01 + 0.04*rng.Float64(),
			0.004 + 0.01*rng.Float64(),
		})
	}
	return &dataset.Table{Inputs: inputs, Targets: targets}
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Seed:     1,
		LogLevel: "error",
		DataPrep: config.DataPrep{
			FractionTrain:     0.7,
			FractionVal:       0.15,
			FractionTest:      0.15,
			SkewThresholdDown: -3,
			SkewThresholdUp:   3,
			Scaler:            "maxabs",
		},
		NNModel: config.Model{
			Retrain:          true,
			HiddenSizes:      []int{12},
			ActivationFns:    []string{"tanh"},
			NumEpochs:        8,
			LearningRate:     0.01,
			BatchSize:        16,
			NBootstrapModels: 2,
			CheckpointDir:    t.TempDir(),
		},
	}
}

func TestPrepareSplitsAndNormalizes(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	run := NewRun(testConfig(t))
	require.NotEmpty(t, run.ID)

	data, err := run.Prepare(syntheticTable(rng, 200), rng)
	require.NoError(t, err)

	assert.Equal(t, 140, data.Train.NumSamples())
	assert.Equal(t, 30, data.Val.NumSamples())
	assert.Equal(t, 30, data.Test.NumSamples())

	// maxabs scaling bounds the training data by 1 in magnitude.
	r, c := data.TrainY.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.LessOrEqual(t, math.Abs(data.TrainY.At(i, j)), 1.0+1e-12)
		}
	}
}

func TestTrainOrLoadRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cfg := testConfig(t)
	run := NewRun(cfg)

	data, err := run.Prepare(syntheticTable(rng, 150), rng)
	require.NoError(t, err)

	trained, _, err := run.TrainOrLoad("nn_model", cfg.NNModel, nil, data, cfg.Seed)
	require.NoError(t, err)
	assert.Equal(t, 2, trained.Size())

	// Reload from the checkpoint written above.
	loadCfg := cfg.NNModel
	loadCfg.Retrain = false
	loaded, hist, err := run.TrainOrLoad("nn_model", loadCfg, nil, data, cfg.Seed)
	require.NoError(t, err)
	require.NotNil(t, hist)
	assert.Equal(t, 2, loaded.Size())

	want, err := trained.Predict(data.TestX)
	require.NoError(t, err)
	got, err := loaded.Predict(data.TestX)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestTrainOrLoadMissingCheckpoint(t *testing.T) {
	rng := rand.New(rand.NewSource(43))
	cfg := testConfig(t)
	cfg.NNModel.Retrain = false
	run := NewRun(cfg)

	data, err := run.Prepare(syntheticTable(rng, 120), rng)
	require.NoError(t, err)

	_, _, err = run.TrainOrLoad("never_trained", cfg.NNModel, nil, data, cfg.Seed)
	require.Error(t, err)
}

func TestEvaluateVariantWithProjection(t *testing.T) {
	rng := rand.New(rand.NewSource(44))
	cfg := testConfig(t)
	run := NewRun(cfg)

	data, err := run.Prepare(syntheticTable(rng, 200), rng)
	require.NoError(t, err)

	ens, _, err := run.TrainOrLoad("nn_model", cfg.NNModel, nil, data, cfg.Seed)
	require.NoError(t, err)

	engine, err := run.Engine(projection.NewIdentityWeights(physics.NumOutputs), data)
	require.NoError(t, err)

	metrics, err := EvaluateVariant(ens, engine, data)
	require.NoError(t, err)

	for name, v := range map[string]float64{
		"mape_nn":   metrics.MAPENN,
		"mape_unc":  metrics.MAPEUncertaintyNN,
		"mape_proj": metrics.MAPEProjected,
		"rmse_nn":   metrics.RMSENN,
		"rmse_proj": metrics.RMSEProjected,
	} {
		assert.False(t, math.IsNaN(v), name)
		assert.False(t, math.IsInf(v, 0), name)
		assert.GreaterOrEqual(t, v, 0.0, name)
	}
}

func TestEvaluateVariantScoresNormalizedSpace(t *testing.T) {
	rng := rand.New(rand.NewSource(48))
	cfg := testConfig(t)
	run := NewRun(cfg)

	data, err := run.Prepare(syntheticTable(rng, 150), rng)
	require.NoError(t, err)

	ens, _, err := run.TrainOrLoad("nn_model", cfg.NNModel, nil, data, cfg.Seed)
	require.NoError(t, err)

	metrics, err := EvaluateVariant(ens, nil, data)
	require.NoError(t, err)

	// The reported numbers are the normalized-space metrics against the
	// normalized targets, not physical-unit ones.
	mean, sem, err := ens.PredictWithUncertainty(data.TestX)
	require.NoError(t, err)

	wantMAPE, err := evaluation.MAPE(mean, data.TestY)
	require.NoError(t, err)
	wantUnc, err := evaluation.MAPEUncertainty(sem, data.TestY)
	require.NoError(t, err)
	wantRMSE, err := evaluation.RMSE(mean, data.TestY)
	require.NoError(t, err)

	assert.Equal(t, wantMAPE, metrics.MAPENN)
	assert.Equal(t, wantUnc, metrics.MAPEUncertaintyNN)
	assert.Equal(t, wantRMSE, metrics.RMSENN)

	physMAPE, err := evaluation.MAPE(mean, data.Test.Targets)
	require.NoError(t, err)
	assert.NotEqual(t, physMAPE, metrics.MAPENN)
}

func TestProjectedPredictionsSatisfyLinearLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(47))
	cfg := testConfig(t)
	run := NewRun(cfg)

	data, err := run.Prepare(syntheticTable(rng, 180), rng)
	require.NoError(t, err)

	ens, _, err := run.TrainOrLoad("nn_model", cfg.NNModel, nil, data, cfg.Seed)
	require.NoError(t, err)

	engine, err := run.Engine(projection.NewIdentityWeights(physics.NumOutputs), data)
	require.NoError(t, err)

	projected, err := ProjectedPhysicalPredictions(ens, engine, data)
	require.NoError(t, err)

	// Quasi-neutrality is linear, so the first-order correction restores it
	// exactly up to rounding in the participating densities.
	law := physics.QuasiNeutrality{}
	n, _ := projected.Dims()
	for i := 0; i < n; i++ {
		y := mat.Row(nil, i, projected)
		lhs, rhs, err := law.Sides(mat.Row(nil, i, data.Test.Inputs), y)
		require.NoError(t, err)
		scale := math.Abs(lhs) + math.Abs(rhs)
		assert.InDelta(t, lhs, rhs, 1e-9*scale, "sample %d", i)
	}
}

func TestArchitectureSweepRestoresPersistedResults(t *testing.T) {
	rng := rand.New(rand.NewSource(49))
	cfg := testConfig(t)
	cfg.Plotting.OutputDir = t.TempDir()
	cfg.NNModel.Retrain = false
	run := NewRun(cfg)

	want := []report.ArchitectureRecord{
		{Architecture: []int{8}, NumParams: 185, MAPENN: 0.12, MAPEProjected: 0.08, RMSENN: 0.3, RMSEProjected: 0.25, TrainingTime: 4.2},
		{Architecture: []int{16, 32}, NumParams: 1201, MAPENN: 0.05, MAPEProjected: 0.03, RMSENN: 0.12, RMSEProjected: 0.1, TrainingTime: 11.7},
	}
	path := filepath.Join(cfg.Plotting.OutputDir, "architectures.csv")
	require.NoError(t, report.WriteArchitectureResults(path, want))

	// With retraining off the persisted table is reloaded; no training runs.
	got, err := run.ArchitectureSweep(nil, nil, rng)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestArchitectureSweepMissingResultsTable(t *testing.T) {
	rng := rand.New(rand.NewSource(50))
	cfg := testConfig(t)
	cfg.Plotting.OutputDir = t.TempDir()
	cfg.NNModel.Retrain = false
	run := NewRun(cfg)

	_, err := run.ArchitectureSweep(nil, nil, rng)
	require.Error(t, err)

	var missing *errors.MissingArtifactError
	assert.True(t, errors.As(err, &missing))
}

func TestComplianceReferenceIsNearExact(t *testing.T) {
	rng := rand.New(rand.NewSource(45))
	cfg := testConfig(t)
	run := NewRun(cfg)

	data, err := run.Prepare(syntheticTable(rng, 150), rng)
	require.NoError(t, err)

	ens, _, err := run.TrainOrLoad("nn_model", cfg.NNModel, nil, data, cfg.Seed)
	require.NoError(t, err)

	preds, err := MeanPhysicalPredictions(ens, data)
	require.NoError(t, err)

	rows, err := run.Compliance(preds, preds, data)
	require.NoError(t, err)
	require.Len(t, rows, len(run.Laws))

	for _, row := range rows {
		// Solver targets satisfy every law by construction.
		assert.Less(t, row.LokiModel, 1e-9, row.Law)
	}
}

func TestPhysicalEnsembleMatchesRowInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(46))
	cfg := testConfig(t)
	run := NewRun(cfg)

	data, err := run.Prepare(syntheticTable(rng, 120), rng)
	require.NoError(t, err)

	ens, _, err := run.TrainOrLoad("nn_model", cfg.NNModel, nil, data, cfg.Seed)
	require.NoError(t, err)

	phys, err := PhysicalEnsemble(ens, data.Pipeline)
	require.NoError(t, err)
	assert.Equal(t, ens.Size(), phys.Size())

	var _ ensemble.Predictor = physicalPredictor{}

	mean, err := phys.Predict(data.TestX)
	require.NoError(t, err)
	r, c := mean.Dims()
	tr, tc := data.Test.Targets.Dims()
	assert.Equal(t, tr, r)
	assert.Equal(t, tc, c)
}
