// Package config loads and validates the experiment configuration.
//
// The configuration is decoded once from YAML into plain structs and
// validated at load time; components receive the sub-struct they need and
// never re-read options through the call chain.
package config

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

// Config is the root experiment configuration.
type Config struct {
	Seed      int64     `yaml:"seed"`
	LogLevel  string    `yaml:"log_level"`
	DataPrep  DataPrep  `yaml:"data_prep"`
	NNModel   Model     `yaml:"nn_model"`
	PINN      Model     `yaml:"pinn_model"`
	Plotting  Plotting  `yaml:"plotting"`
	ArchSweep ArchSweep `yaml:"architecture_sweep"`
	SizeSweep SizeSweep `yaml:"dataset_size_sweep"`
}

// DataPrep controls dataset splitting and preprocessing.
type DataPrep struct {
	FractionTrain float64 `yaml:"fraction_train"`
	FractionVal   float64 `yaml:"fraction_val"`
	FractionTest  float64 `yaml:"fraction_test"`

	// Features whose sample skewness falls outside [SkewThresholdDown,
	// SkewThresholdUp] receive a log1p transform before scaling.
	SkewThresholdDown float64 `yaml:"skew_threshold_down"`
	SkewThresholdUp   float64 `yaml:"skew_threshold_up"`

	// Scaler is one of "maxabs", "minmax", "standard".
	Scaler string `yaml:"scaler"`
}

// Model holds the hyperparameters of one surrogate variant (NN or PINN).
type Model struct {
	Retrain           bool      `yaml:"retrain"`
	HiddenSizes       []int     `yaml:"hidden_sizes"`
	ActivationFns     []string  `yaml:"activation_fns"`
	NumEpochs         int       `yaml:"num_epochs"`
	LearningRate      float64   `yaml:"learning_rate"`
	BatchSize         int       `yaml:"batch_size"`
	NBootstrapModels  int       `yaml:"n_bootstrap_models"`
	EarlyStopping     bool      `yaml:"apply_early_stopping"`
	Patience          int       `yaml:"patience"`
	LambdaPhysics     []float64 `yaml:"lambda_physics"`
	CheckpointDir     string    `yaml:"checkpoint_dir"`
	PrintLossValues   bool      `yaml:"print_loss_values"`
}

// Plotting controls figure and table output.
type Plotting struct {
	OutputDir      string `yaml:"output_dir"`
	PlotLossCurves bool   `yaml:"plot_loss_curves"`
}

// ArchSweep configures the architecture-size experiment: random hidden-layer
// layouts binned uniformly by parameter count.
type ArchSweep struct {
	NSteps             int    `yaml:"n_steps"`
	MinHiddenLayers    int    `yaml:"min_hidden_layers"`
	MaxHiddenLayers    int    `yaml:"max_hidden_layers"`
	MinNeuronsPerLayer int    `yaml:"min_neurons_per_layer"`
	MaxNeuronsPerLayer int    `yaml:"max_neurons_per_layer"`
	ActivationFn       string `yaml:"activation_func"`
}

// SizeSweep configures the dataset-size experiment.
type SizeSweep struct {
	DatasetSizes []int `yaml:"dataset_sizes"`
	NSamples     int   `yaml:"n_samples"`
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingArtifactError(path, "supply a configuration file")
		}
		return nil, errors.Wrapf(err, "reading config %q", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrapf(err, "decoding config %q", path)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataPrep.Scaler == "" {
		c.DataPrep.Scaler = "maxabs"
	}
	if c.Plotting.OutputDir == "" {
		c.Plotting.OutputDir = "output/ltp_system"
	}
	for _, m := range []*Model{&c.NNModel, &c.PINN} {
		if m.NBootstrapModels == 0 {
			m.NBootstrapModels = 1
		}
		if m.Patience == 0 {
			m.Patience = 10
		}
	}
}

// Validate checks the configuration once; components may assume a validated
// Config afterwards.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.NewConfigurationError("log_level", "must be one of debug, info, warn, error", c.LogLevel)
	}
	if err := c.DataPrep.validate(); err != nil {
		return err
	}
	if err := c.NNModel.validate("nn_model"); err != nil {
		return err
	}
	if err := c.PINN.validate("pinn_model"); err != nil {
		return err
	}
	if c.ArchSweep.NSteps > 0 {
		if c.ArchSweep.MinHiddenLayers < 1 || c.ArchSweep.MaxHiddenLayers < c.ArchSweep.MinHiddenLayers {
			return errors.NewConfigurationError("architecture_sweep", "invalid hidden-layer bounds", c.ArchSweep)
		}
		if c.ArchSweep.MinNeuronsPerLayer < 1 || c.ArchSweep.MaxNeuronsPerLayer < c.ArchSweep.MinNeuronsPerLayer {
			return errors.NewConfigurationError("architecture_sweep", "invalid neurons-per-layer bounds", c.ArchSweep)
		}
	}
	for _, size := range c.SizeSweep.DatasetSizes {
		if size < 1 {
			return errors.NewConfigurationError("dataset_size_sweep.dataset_sizes", "sizes must be positive", size)
		}
	}
	return nil
}

func (d DataPrep) validate() error {
	total := d.FractionTrain + d.FractionVal + d.FractionTest
	if total < 0.999 || total > 1.001 {
		return errors.NewConfigurationError("data_prep.fractions", "train+val+test must sum to 1", total)
	}
	if d.FractionTrain <= 0 {
		return errors.NewConfigurationError("data_prep.fraction_train", "must be positive", d.FractionTrain)
	}
	switch d.Scaler {
	case "maxabs", "minmax", "standard":
	default:
		return errors.NewConfigurationError("data_prep.scaler", "must be one of maxabs, minmax, standard", d.Scaler)
	}
	return nil
}

func (m Model) validate(name string) error {
	if len(m.HiddenSizes) == 0 {
		return errors.NewConfigurationError(name+".hidden_sizes", "at least one hidden layer required", m.HiddenSizes)
	}
	if len(m.ActivationFns) != len(m.HiddenSizes) {
		return errors.NewConfigurationError(name+".activation_fns", "one activation per hidden layer required", m.ActivationFns)
	}
	for _, h := range m.HiddenSizes {
		if h < 1 {
			return errors.NewConfigurationError(name+".hidden_sizes", "layer widths must be positive", h)
		}
	}
	if m.NumEpochs < 1 {
		return errors.NewConfigurationError(name+".num_epochs", "must be at least 1", m.NumEpochs)
	}
	if m.LearningRate <= 0 {
		return errors.NewConfigurationError(name+".learning_rate", "must be positive", m.LearningRate)
	}
	if m.BatchSize < 1 {
		return errors.NewConfigurationError(name+".batch_size", "must be at least 1", m.BatchSize)
	}
	if m.NBootstrapModels < 1 {
		return errors.NewConfigurationError(name+".n_bootstrap_models", "must be at least 1", m.NBootstrapModels)
	}
	for _, l := range m.LambdaPhysics {
		if l < 0 {
			return errors.NewConfigurationError(name+".lambda_physics", "weights must be non-negative", l)
		}
	}
	return nil
}
