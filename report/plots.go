package report

import (
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/plasmago/ltpsurrogate/nn"
	"github.com/plasmago/ltpsurrogate/pkg/errors"
)

var (
	nnColor   = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	projColor = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	valColor  = color.RGBA{R: 40, G: 120, B: 40, A: 255}
)

// PlotLossCurves writes the mean train/validation loss per epoch as a PNG.
func PlotLossCurves(path string, hist *nn.History) error {
	if hist == nil || len(hist.Epochs) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "loss curves")
	}
	p := plot.New()
	p.Title.Text = "Training loss"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "MSE"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{}

	train := make(plotter.XYs, len(hist.Epochs))
	val := make(plotter.XYs, len(hist.Epochs))
	for i, e := range hist.Epochs {
		train[i] = plotter.XY{X: float64(e), Y: hist.TrainLoss[i]}
		val[i] = plotter.XY{X: float64(e), Y: hist.ValLoss[i]}
	}

	trainLine, err := plotter.NewLine(train)
	if err != nil {
		return errors.Wrap(err, "loss curves")
	}
	trainLine.Color = nnColor
	p.Add(trainLine)
	p.Legend.Add("train", trainLine)

	valLine, err := plotter.NewLine(val)
	if err != nil {
		return errors.Wrap(err, "loss curves")
	}
	valLine.Color = valColor
	valLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(valLine)
	p.Legend.Add("validation", valLine)

	p.Add(plotter.NewGrid())
	return save(p, path)
}

// PlotMAPEVsParams compares the raw and projected MAPE across network sizes,
// with the ensemble uncertainty as error bars on the raw series.
func PlotMAPEVsParams(path string, records []ArchitectureRecord) error {
	if len(records) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "mape vs params")
	}
	recs := sortedByParams(records)

	p := plot.New()
	p.Title.Text = "MAPE vs model size"
	p.X.Label.Text = "number of parameters"
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{}
	p.Y.Label.Text = "MAPE"

	raw := make(plotter.XYs, len(recs))
	proj := make(plotter.XYs, len(recs))
	bars := make(plotter.YErrors, len(recs))
	for i, rec := range recs {
		x := float64(rec.NumParams)
		raw[i] = plotter.XY{X: x, Y: rec.MAPENN}
		proj[i] = plotter.XY{X: x, Y: rec.MAPEProjected}
		bars[i] = struct{ Low, High float64 }{Low: rec.MAPEUncertaintyNN, High: rec.MAPEUncertaintyNN}
	}

	if err := addSeries(p, "network", raw, nnColor); err != nil {
		return err
	}
	errBars, err := plotter.NewYErrorBars(struct {
		plotter.XYs
		plotter.YErrors
	}{raw, bars})
	if err != nil {
		return errors.Wrap(err, "mape vs params")
	}
	errBars.Color = nnColor
	p.Add(errBars)

	if err := addSeries(p, "projected", proj, projColor); err != nil {
		return err
	}
	p.Add(plotter.NewGrid())
	return save(p, path)
}

// PlotRMSEVsParams compares the raw and projected RMSE across network sizes.
func PlotRMSEVsParams(path string, records []ArchitectureRecord) error {
	if len(records) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "rmse vs params")
	}
	recs := sortedByParams(records)

	p := plot.New()
	p.Title.Text = "RMSE vs model size"
	p.X.Label.Text = "number of parameters"
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{}
	p.Y.Label.Text = "RMSE"

	raw := make(plotter.XYs, len(recs))
	proj := make(plotter.XYs, len(recs))
	for i, rec := range recs {
		x := float64(rec.NumParams)
		raw[i] = plotter.XY{X: x, Y: rec.RMSENN}
		proj[i] = plotter.XY{X: x, Y: rec.RMSEProjected}
	}
	if err := addSeries(p, "network", raw, nnColor); err != nil {
		return err
	}
	if err := addSeries(p, "projected", proj, projColor); err != nil {
		return err
	}
	p.Add(plotter.NewGrid())
	return save(p, path)
}

// PlotMAPEVsDatasetSize shows how the error shrinks with more training data.
func PlotMAPEVsDatasetSize(path string, records []SizeRecord) error {
	if len(records) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "mape vs dataset size")
	}
	recs := append([]SizeRecord(nil), records...)
	sort.Slice(recs, func(i, j int) bool { return recs[i].DatasetSize < recs[j].DatasetSize })

	p := plot.New()
	p.Title.Text = "MAPE vs training set size"
	p.X.Label.Text = "training samples"
	p.Y.Label.Text = "MAPE"

	raw := make(plotter.XYs, len(recs))
	proj := make(plotter.XYs, len(recs))
	bars := make(plotter.YErrors, len(recs))
	for i, rec := range recs {
		x := float64(rec.DatasetSize)
		raw[i] = plotter.XY{X: x, Y: rec.MAPENN}
		proj[i] = plotter.XY{X: x, Y: rec.MAPEProjected}
		bars[i] = struct{ Low, High float64 }{Low: rec.MAPEUncertaintyNN, High: rec.MAPEUncertaintyNN}
	}
	if err := addSeries(p, "network", raw, nnColor); err != nil {
		return err
	}
	errBars, err := plotter.NewYErrorBars(struct {
		plotter.XYs
		plotter.YErrors
	}{raw, bars})
	if err != nil {
		return errors.Wrap(err, "mape vs dataset size")
	}
	errBars.Color = nnColor
	p.Add(errBars)

	if err := addSeries(p, "projected", proj, projColor); err != nil {
		return err
	}
	p.Add(plotter.NewGrid())
	return save(p, path)
}

// PlotParamHistogram shows how the sampled architectures cover the parameter
// range.
func PlotParamHistogram(path string, records []ArchitectureRecord, bins int) error {
	if len(records) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "parameter histogram")
	}
	if bins < 1 {
		bins = 10
	}
	values := make(plotter.Values, len(records))
	for i, rec := range records {
		values[i] = float64(rec.NumParams)
	}

	p := plot.New()
	p.Title.Text = "Sampled architectures"
	p.X.Label.Text = "number of parameters"
	p.Y.Label.Text = "count"

	hist, err := plotter.NewHist(values, bins)
	if err != nil {
		return errors.Wrap(err, "parameter histogram")
	}
	hist.FillColor = nnColor
	p.Add(hist)
	return save(p, path)
}

func sortedByParams(records []ArchitectureRecord) []ArchitectureRecord {
	recs := append([]ArchitectureRecord(nil), records...)
	sort.Slice(recs, func(i, j int) bool { return recs[i].NumParams < recs[j].NumParams })
	return recs
}

func addSeries(p *plot.Plot, name string, xys plotter.XYs, col color.RGBA) error {
	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return errors.Wrapf(err, "series %s", name)
	}
	line.Color = col
	points.Color = col
	points.Radius = vg.Points(2.2)
	p.Add(line, points)
	p.Legend.Add(name, line, points)
	return nil
}

func save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating figure directory for %q", path)
	}
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "saving figure %q", path)
	}
	return nil
}
