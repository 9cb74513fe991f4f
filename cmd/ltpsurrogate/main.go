// Command ltpsurrogate trains the surrogate models over low-temperature
// plasma simulation data, projects their predictions onto the physical
// constraint set, and writes the evaluation tables and figures.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/plasmago/ltpsurrogate/config"
	"github.com/plasmago/ltpsurrogate/dataset"
	"github.com/plasmago/ltpsurrogate/experiment"
	"github.com/plasmago/ltpsurrogate/pkg/log"
	"github.com/plasmago/ltpsurrogate/physics"
	"github.com/plasmago/ltpsurrogate/projection"
	"github.com/plasmago/ltpsurrogate/report"
)

func main() {
	configPath := flag.String("config", "configs/ltp_system.yaml", "experiment configuration file")
	dataPath := flag.String("data", "data/ltp_system.txt", "simulation dataset")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ltpsurrogate: %v\n", err)
		os.Exit(1)
	}
	log.Setup(cfg.LogLevel)

	if err := run(cfg, *dataPath); err != nil {
		slog.Error("run failed", log.ErrAttr(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, dataPath string) error {
	r := experiment.NewRun(cfg)
	logger := slog.Default().With(log.RunIDKey, r.ID)
	logger.Info("starting", "config_seed", cfg.Seed, "data", dataPath)

	table, err := dataset.Load(dataPath, physics.NumInputs, physics.NumOutputs)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	data, err := r.Prepare(table, rng)
	if err != nil {
		return err
	}

	weights := projection.NewIdentityWeights(physics.NumOutputs)
	engine, err := r.Engine(weights, data)
	if err != nil {
		return err
	}

	outDir := cfg.Plotting.OutputDir

	// Plain data-driven ensemble.
	nnCfg := experiment.DefaultModelConfig(cfg.NNModel, len(r.Laws))
	nnCfg.LambdaPhysics = nil
	nnEns, nnHist, err := r.TrainOrLoad("nn_model", nnCfg, nil, data, cfg.Seed)
	if err != nil {
		return err
	}

	// Physics-informed ensemble.
	pinnCfg := experiment.DefaultModelConfig(cfg.PINN, len(r.Laws))
	pinnEns, pinnHist, err := r.TrainOrLoad("pinn_model", pinnCfg, r.Laws, data, cfg.Seed+1)
	if err != nil {
		return err
	}

	nnMetrics, err := experiment.EvaluateVariant(nnEns, engine, data)
	if err != nil {
		return err
	}
	logger.Info("nn model evaluated",
		log.ModelKey, "nn_model",
		"mape", nnMetrics.MAPENN,
		"mape_proj", nnMetrics.MAPEProjected,
		"rmse", nnMetrics.RMSENN,
		"rmse_proj", nnMetrics.RMSEProjected,
	)

	pinnMetrics, err := experiment.EvaluateVariant(pinnEns, engine, data)
	if err != nil {
		return err
	}
	logger.Info("pinn model evaluated",
		log.ModelKey, "pinn_model",
		"mape", pinnMetrics.MAPENN,
		"mape_proj", pinnMetrics.MAPEProjected,
		"rmse", pinnMetrics.RMSENN,
		"rmse_proj", pinnMetrics.RMSEProjected,
	)

	// Per-law compliance of both variants against the solver reference.
	nnPreds, err := experiment.MeanPhysicalPredictions(nnEns, data)
	if err != nil {
		return err
	}
	pinnPreds, err := experiment.MeanPhysicalPredictions(pinnEns, data)
	if err != nil {
		return err
	}
	compliance, err := r.Compliance(nnPreds, pinnPreds, data)
	if err != nil {
		return err
	}
	if err := report.WriteComplianceTable(filepath.Join(outDir, "compliance.csv"), compliance); err != nil {
		return err
	}

	if cfg.Plotting.PlotLossCurves {
		if err := report.PlotLossCurves(filepath.Join(outDir, "loss_nn.png"), nnHist); err != nil {
			return err
		}
		if err := report.PlotLossCurves(filepath.Join(outDir, "loss_pinn.png"), pinnHist); err != nil {
			return err
		}
	}

	if cfg.ArchSweep.NSteps > 0 {
		records, err := r.ArchitectureSweep(data, engine, rng)
		if err != nil {
			return err
		}
		if err := report.PlotMAPEVsParams(filepath.Join(outDir, "mape_vs_params.png"), records); err != nil {
			return err
		}
		if err := report.PlotRMSEVsParams(filepath.Join(outDir, "rmse_vs_params.png"), records); err != nil {
			return err
		}
		if err := report.PlotParamHistogram(filepath.Join(outDir, "param_histogram.png"), records, cfg.ArchSweep.NSteps); err != nil {
			return err
		}
	}

	if len(cfg.SizeSweep.DatasetSizes) > 0 {
		test, pool := dataset.SplitHoldout(table, cfg.SizeSweep.NSamples, rng)
		records, err := r.SizeSweep(pool, test, weights, rng)
		if err != nil {
			return err
		}
		if err := report.WriteSizeResults(filepath.Join(outDir, "dataset_sizes.csv"), records); err != nil {
			return err
		}
		if err := report.PlotMAPEVsDatasetSize(filepath.Join(outDir, "mape_vs_size.png"), records); err != nil {
			return err
		}
	}

	logger.Info("finished", "output_dir", outDir)
	return nil
}
