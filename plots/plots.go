// Package plots renders forecast charts with gonum/plot.
package plots

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PredictionPlot is the data behind a prediction chart. All values are in
// original units (already inverse-scaled).
type PredictionPlot struct {
	// Times are the timestamps of Actual. When empty the X axis is the row index.
	Times  []time.Time
	Actual []float64

	// Train and Test are the model outputs for consecutive windows. Train[i]
	// predicts Actual[TimeStep+i] and Test[j] predicts
	// Actual[len(Train)+TimeStep+j].
	Train    []float64
	Test     []float64
	TimeStep int

	// Baseline is optional and aligned with Test.
	Baseline []float64

	Title      string
	TimeFormat string
	Width      vg.Length
	Height     vg.Length
}

// Predictions draws p as a line chart and saves it to path. The format
// follows the file extension (png, svg, pdf...). The directory of path must
// already exist.
func Predictions(path string, p PredictionPlot) error {
	if len(p.Actual) == 0 {
		return fmt.Errorf("no data to plot")
	}
	if len(p.Times) != 0 && len(p.Times) != len(p.Actual) {
		return fmt.Errorf("have %d timestamps for %d values", len(p.Times), len(p.Actual))
	}
	if p.Title == "" {
		p.Title = "Speed Prediction Using LSTM"
	}
	if p.Width == 0 {
		p.Width = 18 * vg.Inch
	}
	if p.Height == 0 {
		p.Height = 8 * vg.Inch
	}

	pl := plot.New()
	pl.Title.Text = p.Title
	pl.X.Label.Text = "Datetime"
	pl.Y.Label.Text = "Speed"
	if len(p.Times) != 0 {
		format := p.TimeFormat
		if format == "" {
			format = "2006-01-02\n15:04"
		}
		pl.X.Tick.Marker = plot.TimeTicks{Format: format}
	}
	pl.Legend.Top = true

	xAt := func(i int) float64 {
		if len(p.Times) != 0 {
			return float64(p.Times[i].Unix())
		}
		return float64(i)
	}

	var all plotter.XYs
	for _, s := range lineSeries(p) {
		xys := alignedXYs(s.values, s.offset, len(p.Actual), xAt)
		if len(xys) == 0 {
			continue
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("%s line: %w", s.name, err)
		}
		line.Color = s.color
		line.Width = vg.Points(float64(s.width))
		pl.Add(line)
		pl.Legend.Add(s.name, line)
		all = append(all, xys...)
	}

	pl.Add(plotter.NewGrid())
	xmin, xmax, ymin, ymax := autoRange(all)
	pl.X.Min = xmin
	pl.X.Max = xmax
	pl.Y.Min = ymin
	pl.Y.Max = ymax

	if err := pl.Save(p.Width, p.Height, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}

type series struct {
	name   string
	values []float64
	offset int
	color  color.Color
	width  vg.Length
}

// lineSeries lists the lines of a prediction chart in drawing order. The
// offsets are rows of Actual.
func lineSeries(p PredictionPlot) []series {
	return []series{
		{"True Data", p.Actual, 0, color.RGBA{R: 31, G: 119, B: 180, A: 255}, 1},
		{"Train Predictions", p.Train, p.TimeStep, color.RGBA{R: 255, G: 127, B: 14, A: 255}, 1},
		{"Test Predictions", p.Test, len(p.Train) + p.TimeStep, color.RGBA{R: 44, G: 160, B: 44, A: 255}, 1},
		{"Analog Baseline", p.Baseline, len(p.Train) + p.TimeStep, color.RGBA{R: 200, G: 30, B: 30, A: 160}, 0.8},
	}
}

// alignedXYs places values starting at row offset, dropping points past
// the end of the series and non-finite values.
func alignedXYs(values []float64, offset, n int, xAt func(int) float64) plotter.XYs {
	xys := make(plotter.XYs, 0, len(values))
	for i, v := range values {
		row := offset + i
		if row < 0 || row >= n {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: xAt(row), Y: v})
	}
	return xys
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin = math.Inf(1)
	xmax = math.Inf(-1)
	ymin = math.Inf(1)
	ymax = math.Inf(-1)
	for _, p := range xs {
		xmin = math.Min(xmin, p.X)
		xmax = math.Max(xmax, p.X)
		ymin = math.Min(ymin, p.Y)
		ymax = math.Max(ymax, p.Y)
	}
	padx := (xmax - xmin) * 0.02
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 1.0
	}
	if pady == 0 {
		pady = 1.0
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}
