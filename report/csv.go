// Package report persists experiment results: CSV tables for the sweeps and
// the compliance summary, and the figures built from them.
package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/plasmago/ltpsurrogate/evaluation"
	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

// ArchitectureRecord is one row of the architecture-sweep table: the metrics
// of one trained ensemble before and after projection.
type ArchitectureRecord struct {
	Architecture      []int
	NumParams         int
	MAPENN            float64
	MAPEUncertaintyNN float64
	MAPEProjected     float64
	RMSENN            float64
	RMSEProjected     float64
	TrainingTime      float64
}

// architectureHeader is the fixed column contract of the sweep table. The
// misspelt uncertainty column is kept for compatibility with existing
// downstream notebooks.
var architectureHeader = []string{
	"architectures",
	"num_params",
	"mapes_nn",
	"uncertanties_mape_nn",
	"mapes_proj",
	"rmses_nn",
	"rmses_proj",
	"model_training_time",
}

// WriteArchitectureResults writes the sweep table to path, creating parent
// directories as needed.
func WriteArchitectureResults(path string, records []ArchitectureRecord) error {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			formatArchitecture(rec.Architecture),
			strconv.Itoa(rec.NumParams),
			formatFloat(rec.MAPENN),
			formatFloat(rec.MAPEUncertaintyNN),
			formatFloat(rec.MAPEProjected),
			formatFloat(rec.RMSENN),
			formatFloat(rec.RMSEProjected),
			formatFloat(rec.TrainingTime),
		})
	}
	return writeCSV(path, architectureHeader, rows)
}

// ReadArchitectureResults loads a sweep table written by
// WriteArchitectureResults, so an interrupted sweep can resume.
func ReadArchitectureResults(path string) ([]ArchitectureRecord, error) {
	rows, err := readCSV(path, architectureHeader)
	if err != nil {
		return nil, err
	}
	records := make([]ArchitectureRecord, 0, len(rows))
	for i, row := range rows {
		arch, err := parseArchitecture(row[0])
		if err != nil {
			return nil, errors.Wrapf(err, "%s row %d", path, i+1)
		}
		vals, err := parseFloats(row[2:])
		if err != nil {
			return nil, errors.Wrapf(err, "%s row %d", path, i+1)
		}
		numParams, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, errors.Wrapf(err, "%s row %d: num_params", path, i+1)
		}
		records = append(records, ArchitectureRecord{
			Architecture:      arch,
			NumParams:         numParams,
			MAPENN:            vals[0],
			MAPEUncertaintyNN: vals[1],
			MAPEProjected:     vals[2],
			RMSENN:            vals[3],
			RMSEProjected:     vals[4],
			TrainingTime:      vals[5],
		})
	}
	return records, nil
}

// SizeRecord is one row of the dataset-size sweep table.
type SizeRecord struct {
	DatasetSize       int
	MAPENN            float64
	MAPEUncertaintyNN float64
	MAPEProjected     float64
	RMSENN            float64
	RMSEProjected     float64
	TrainingTime      float64
}

var sizeHeader = []string{
	"dataset_size",
	"mapes_nn",
	"uncertanties_mape_nn",
	"mapes_proj",
	"rmses_nn",
	"rmses_proj",
	"model_training_time",
}

// WriteSizeResults writes the dataset-size sweep table.
func WriteSizeResults(path string, records []SizeRecord) error {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			strconv.Itoa(rec.DatasetSize),
			formatFloat(rec.MAPENN),
			formatFloat(rec.MAPEUncertaintyNN),
			formatFloat(rec.MAPEProjected),
			formatFloat(rec.RMSENN),
			formatFloat(rec.RMSEProjected),
			formatFloat(rec.TrainingTime),
		})
	}
	return writeCSV(path, sizeHeader, rows)
}

var complianceHeader = []string{"law", "nn_model", "pinn_model", "loki_model"}

// WriteComplianceTable writes the per-law compliance summary.
func WriteComplianceTable(path string, rows []evaluation.ComplianceRow) error {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, []string{
			row.Law,
			formatFloat(row.NNModel),
			formatFloat(row.PINNModel),
			formatFloat(row.LokiModel),
		})
	}
	return writeCSV(path, complianceHeader, out)
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating output directory for %q", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %q", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.Wrapf(err, "writing header of %q", path)
	}
	if err := w.WriteAll(rows); err != nil {
		return errors.Wrapf(err, "writing %q", path)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrapf(err, "flushing %q", path)
	}
	return f.Close()
}

func readCSV(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingArtifactError(path, "run the sweep to produce it")
		}
		return nil, errors.Wrapf(err, "opening %q", path)
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", path)
	}
	if len(all) == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "%q", path)
	}
	if len(all[0]) != len(header) {
		return nil, errors.NewDataShapeError(path+": columns", len(header), len(all[0]), 1)
	}
	for i, name := range header {
		if all[0][i] != name {
			return nil, errors.Newf("%q: unexpected column %q, want %q", path, all[0][i], name)
		}
	}
	return all[1:], nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "field %d", i)
		}
		out[i] = v
	}
	return out, nil
}

// formatArchitecture renders hidden-layer widths as "[8, 16]".
func formatArchitecture(hidden []int) string {
	parts := make([]string, len(hidden))
	for i, h := range hidden {
		parts[i] = strconv.Itoa(h)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func parseArchitecture(s string) ([]int, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return nil, errors.New("empty architecture")
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Wrapf(err, "architecture %q", s)
		}
		out[i] = v
	}
	return out, nil
}
