// Package experiment orchestrates the surrogate studies: data preparation,
// train-or-load of the model variants, the architecture and dataset-size
// sweeps, and the compliance report.
package experiment

import (
	"math/rand"
	"sort"

	"github.com/plasmago/ltpsurrogate/config"
	"github.com/plasmago/ltpsurrogate/physics"
	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

// CountParameters returns the trainable-parameter count of a network with
// the given hidden layout over the fixed input/output schema: all
// layer-to-layer weights plus the hidden-layer biases.
func CountParameters(hidden []int) int {
	layers := make([]int, 0, len(hidden)+2)
	layers = append(layers, physics.NumInputs)
	layers = append(layers, hidden...)
	layers = append(layers, physics.NumOutputs)

	total := 0
	for i := 0; i < len(layers)-1; i++ {
		total += layers[i] * layers[i+1]
	}
	for _, h := range hidden {
		total += h
	}
	return total
}

// sampleTries bounds the rejection sampling per parameter-count bin.
const sampleTries = 2000

// SampleArchitectures draws cfg.NSteps random hidden layouts whose parameter
// counts cover the reachable range in uniform bins, so the sweep probes small
// and large models alike instead of clustering where random layouts are
// dense. Within a bin the layout is the first random draw that fits; if none
// fits after a bounded number of tries, the closest draw is kept.
func SampleArchitectures(cfg config.ArchSweep, rng *rand.Rand) ([][]int, error) {
	if cfg.NSteps < 1 {
		return nil, errors.NewConfigurationError("architecture_sweep.n_steps", "must be at least 1", cfg.NSteps)
	}

	minParams := boundParams(cfg.MinHiddenLayers, cfg.MinNeuronsPerLayer)
	maxParams := boundParams(cfg.MaxHiddenLayers, cfg.MaxNeuronsPerLayer)
	binWidth := float64(maxParams-minParams) / float64(cfg.NSteps)

	archs := make([][]int, 0, cfg.NSteps)
	for bin := 0; bin < cfg.NSteps; bin++ {
		lo := float64(minParams) + float64(bin)*binWidth
		hi := lo + binWidth
		center := (lo + hi) / 2

		var best []int
		bestDist := 0.0
		for try := 0; try < sampleTries; try++ {
			cand := randomLayout(cfg, rng)
			p := float64(CountParameters(cand))
			if p >= lo && p < hi {
				best = cand
				break
			}
			dist := p - center
			if dist < 0 {
				dist = -dist
			}
			if best == nil || dist < bestDist {
				best = cand
				bestDist = dist
			}
		}
		archs = append(archs, best)
	}

	sort.Slice(archs, func(i, j int) bool {
		return CountParameters(archs[i]) < CountParameters(archs[j])
	})
	return archs, nil
}

func randomLayout(cfg config.ArchSweep, rng *rand.Rand) []int {
	depth := cfg.MinHiddenLayers
	if span := cfg.MaxHiddenLayers - cfg.MinHiddenLayers; span > 0 {
		depth += rng.Intn(span + 1)
	}
	hidden := make([]int, depth)
	for i := range hidden {
		hidden[i] = cfg.MinNeuronsPerLayer
		if span := cfg.MaxNeuronsPerLayer - cfg.MinNeuronsPerLayer; span > 0 {
			hidden[i] += rng.Intn(span + 1)
		}
	}
	return hidden
}

func boundParams(layers, neurons int) int {
	hidden := make([]int, layers)
	for i := range hidden {
		hidden[i] = neurons
	}
	return CountParameters(hidden)
}
