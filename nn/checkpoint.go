package nn

import (
	"bufio"
	"encoding/gob"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

// networkRecord is the gob wire form of a Network. Matrices are flattened
// row-major.
type networkRecord struct {
	Sizes        []int
	Acts         []string
	Weights      [][]float64
	Biases       [][]float64
	TrainingTime float64
}

// checkpointRecord is the gob wire form of an ensemble checkpoint.
type checkpointRecord struct {
	Members []networkRecord
	History *History
}

func (n *Network) record() networkRecord {
	rec := networkRecord{
		Sizes:        append([]int(nil), n.sizes...),
		Acts:         append([]string(nil), n.acts...),
		TrainingTime: n.trainingTime,
	}
	for l, w := range n.weights {
		r, c := w.Dims()
		flat := make([]float64, 0, r*c)
		for i := 0; i < r; i++ {
			flat = append(flat, w.RawRowView(i)...)
		}
		rec.Weights = append(rec.Weights, flat)
		rec.Biases = append(rec.Biases, append([]float64(nil), n.biases[l]...))
	}
	return rec
}

func networkFromRecord(rec networkRecord) (*Network, error) {
	if len(rec.Sizes) < 3 || len(rec.Acts) != len(rec.Sizes)-2 {
		return nil, errors.NewDataShapeError("nn checkpoint layers", len(rec.Acts)+2, len(rec.Sizes), 0)
	}
	n := &Network{
		sizes:        append([]int(nil), rec.Sizes...),
		acts:         append([]string(nil), rec.Acts...),
		trainingTime: rec.TrainingTime,
	}
	for _, name := range n.acts {
		if _, ok := activations[name]; !ok {
			return nil, errors.NewConfigurationError("activation_fns", "unknown activation in checkpoint", name)
		}
	}
	if len(rec.Weights) != len(rec.Sizes)-1 || len(rec.Biases) != len(rec.Sizes)-1 {
		return nil, errors.NewDataShapeError("nn checkpoint weights", len(rec.Sizes)-1, len(rec.Weights), 0)
	}
	for l := 0; l < len(rec.Sizes)-1; l++ {
		in, out := rec.Sizes[l], rec.Sizes[l+1]
		if len(rec.Weights[l]) != in*out {
			return nil, errors.NewDataShapeError("nn checkpoint weight matrix", in*out, len(rec.Weights[l]), 0)
		}
		if len(rec.Biases[l]) != out {
			return nil, errors.NewDataShapeError("nn checkpoint bias vector", out, len(rec.Biases[l]), 0)
		}
		n.weights = append(n.weights, mat.NewDense(out, in, append([]float64(nil), rec.Weights[l]...)))
		n.biases = append(n.biases, append([]float64(nil), rec.Biases[l]...))
	}
	return n, nil
}

// SaveCheckpoint writes the trained networks and their loss history to path,
// creating parent directories as needed.
func SaveCheckpoint(path string, nets []*Network, history *History) error {
	if len(nets) == 0 {
		return errors.NewConfigurationError("checkpoint", "no networks to save", 0)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating checkpoint directory for %q", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating checkpoint %q", path)
	}
	defer f.Close()

	if history == nil {
		history = &History{} // gob rejects nil pointers
	}
	rec := checkpointRecord{History: history}
	for _, net := range nets {
		rec.Members = append(rec.Members, net.record())
	}
	w := bufio.NewWriter(f)
	if err := gob.NewEncoder(w).Encode(rec); err != nil {
		return errors.Wrapf(err, "encoding checkpoint %q", path)
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "writing checkpoint %q", path)
	}
	return f.Close()
}

// LoadCheckpoint restores the networks and history saved by SaveCheckpoint.
// A missing file yields a MissingArtifactError so callers can tell the user
// to either retrain or supply the artifact.
func LoadCheckpoint(path string) ([]*Network, *History, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.NewMissingArtifactError(path, "set retrain: true or supply a checkpoint")
		}
		return nil, nil, errors.Wrapf(err, "opening checkpoint %q", path)
	}
	defer f.Close()

	var rec checkpointRecord
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&rec); err != nil {
		return nil, nil, errors.Wrapf(err, "decoding checkpoint %q", path)
	}
	if len(rec.Members) == 0 {
		return nil, nil, errors.NewMissingArtifactError(path, "checkpoint holds no networks; retrain")
	}
	nets := make([]*Network, len(rec.Members))
	for i, m := range rec.Members {
		net, err := networkFromRecord(m)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "checkpoint member %d", i)
		}
		nets[i] = net
	}
	return nets, rec.History, nil
}
