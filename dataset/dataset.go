// Package dataset loads the whitespace-separated LTP simulation tables and
// provides the deterministic splitting and subsampling used by the
// experiments. A row holds the operating parameters (inputs) followed by the
// physical output quantities (targets).
package dataset

import (
	"bufio"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

// Table is an in-memory (inputs, targets) dataset.
type Table struct {
	Inputs  *mat.Dense // n × nInputs
	Targets *mat.Dense // n × nOutputs
}

// NumSamples returns the number of rows.
func (t *Table) NumSamples() int {
	r, _ := t.Inputs.Dims()
	return r
}

// Load reads a whitespace-separated table with nInputs input columns
// followed by nOutputs target columns. Lines starting with '#' are skipped.
func Load(path string, nInputs, nOutputs int) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingArtifactError(path, "supply the dataset file")
		}
		return nil, errors.Wrapf(err, "opening dataset %q", path)
	}
	defer func() { _ = f.Close() }()

	wantCols := nInputs + nOutputs
	var rows [][]float64

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != wantCols {
			return nil, errors.NewDataShapeError("dataset.Load line "+strconv.Itoa(lineNo), wantCols, len(fields), 1)
		}
		row := make([]float64, wantCols)
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "dataset %q line %d column %d", path, lineNo, i+1)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading dataset %q", path)
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset.Load")
	}

	n := len(rows)
	inputs := mat.NewDense(n, nInputs, nil)
	targets := mat.NewDense(n, nOutputs, nil)
	for i, row := range rows {
		for j := 0; j < nInputs; j++ {
			inputs.Set(i, j, row[j])
		}
		for j := 0; j < nOutputs; j++ {
			targets.Set(i, j, row[nInputs+j])
		}
	}
	return &Table{Inputs: inputs, Targets: targets}, nil
}

// SelectRandomRows returns a new table with n rows drawn without replacement.
// If n is at least the table size, a copy of the full table is returned.
func SelectRandomRows(t *Table, n int, rng *rand.Rand) *Table {
	total := t.NumSamples()
	if n >= total {
		n = total
	}
	perm := rng.Perm(total)[:n]
	return t.subset(perm)
}

// BootstrapResample returns a table of the same size with rows drawn with
// replacement, the resampling scheme used for ensemble training.
func BootstrapResample(t *Table, rng *rand.Rand) *Table {
	n := t.NumSamples()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return t.subset(idx)
}

// Split partitions the table into train/val/test by the given fractions,
// shuffling rows with rng first. Fractions must already be validated.
func Split(t *Table, fracTrain, fracVal float64, rng *rand.Rand) (train, val, test *Table) {
	n := t.NumSamples()
	perm := rng.Perm(n)

	nTrain := int(fracTrain * float64(n))
	nVal := int(fracVal * float64(n))
	if nTrain < 1 {
		nTrain = 1
	}
	if nTrain+nVal > n {
		nVal = n - nTrain
	}

	train = t.subset(perm[:nTrain])
	val = t.subset(perm[nTrain : nTrain+nVal])
	test = t.subset(perm[nTrain+nVal:])
	return train, val, test
}

// SplitHoldout removes nTesting random rows into a held-out test table and
// returns (test, rest), mirroring the reference/testing file split of the
// original experiments.
func SplitHoldout(t *Table, nTesting int, rng *rand.Rand) (test, rest *Table) {
	n := t.NumSamples()
	if nTesting > n {
		nTesting = n
	}
	perm := rng.Perm(n)
	return t.subset(perm[:nTesting]), t.subset(perm[nTesting:])
}

func (t *Table) subset(idx []int) *Table {
	_, nIn := t.Inputs.Dims()
	_, nOut := t.Targets.Dims()
	inputs := mat.NewDense(len(idx), nIn, nil)
	targets := mat.NewDense(len(idx), nOut, nil)
	for i, src := range idx {
		inputs.SetRow(i, t.Inputs.RawRowView(src))
		targets.SetRow(i, t.Targets.RawRowView(src))
	}
	return &Table{Inputs: inputs, Targets: targets}
}
