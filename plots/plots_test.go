package plots

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

func TestAlignedXYs(t *testing.T) {
	xAt := func(i int) float64 { return float64(i) }

	xys := alignedXYs([]float64{1, 2, 3}, 2, 4, xAt)
	if len(xys) != 2 {
		t.Fatalf("expected points past the series end to be dropped, got %d", len(xys))
	}
	if xys[0].X != 2 || xys[1].X != 3 || xys[1].Y != 2 {
		t.Fatalf("unexpected alignment: %+v", xys)
	}

	xys = alignedXYs([]float64{math.NaN(), 5}, 0, 10, xAt)
	if len(xys) != 1 || xys[0].Y != 5 {
		t.Fatalf("expected NaN to be skipped, got %+v", xys)
	}
}

func TestAutoRange(t *testing.T) {
	xmin, xmax, ymin, ymax := autoRange(nil)
	if xmin != -1 || xmax != 1 || ymin != -1 || ymax != 1 {
		t.Fatalf("unexpected empty range: %v %v %v %v", xmin, xmax, ymin, ymax)
	}
	xmin, xmax, ymin, ymax = autoRange(plotter.XYs{{X: 0, Y: 10}, {X: 100, Y: 20}})
	if !(xmin < 0 && xmax > 100 && ymin < 10 && ymax > 20) {
		t.Fatalf("range not padded: %v %v %v %v", xmin, xmax, ymin, ymax)
	}
}

func TestPredictionsWritesPNG(t *testing.T) {
	n := 40
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, n)
	actual := make([]float64, n)
	for i := range n {
		times[i] = start.Add(time.Duration(i) * 5 * time.Minute)
		actual[i] = 40 + 10*math.Sin(float64(i)/4)
	}
	ts := 5
	// 40 rows give 34 windows; 27 train and 7 test
	train := actual[ts : ts+27]
	test := actual[27+ts : 27+ts+7]

	dir := filepath.Join(t.TempDir(), "out")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "predictions.png")
	err := Predictions(path, PredictionPlot{
		Times:    times,
		Actual:   actual,
		Train:    train,
		Test:     test,
		Baseline: test,
		TimeStep: ts,
		Width:    6 * vg.Inch,
		Height:   3 * vg.Inch,
	})
	if err != nil {
		t.Fatalf("Predictions error: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil || st.Size() == 0 {
		t.Fatalf("expected non-empty PNG: %v", err)
	}
}

func TestPredictionsErrors(t *testing.T) {
	dir := t.TempDir()
	if err := Predictions(filepath.Join(dir, "a.png"), PredictionPlot{}); err == nil {
		t.Fatalf("expected error for empty data")
	}
	err := Predictions(filepath.Join(dir, "b.png"), PredictionPlot{
		Times:  []time.Time{time.Now()},
		Actual: []float64{1, 2},
	})
	if err == nil {
		t.Fatalf("expected error for mismatched timestamps")
	}
	err = Predictions(filepath.Join(dir, "missing", "c.png"), PredictionPlot{Actual: []float64{1, 2}})
	if err == nil {
		t.Fatalf("expected error when the output directory does not exist")
	}
}

func TestLineSeries(t *testing.T) {
	p := PredictionPlot{
		Actual:   make([]float64, 20),
		Train:    make([]float64, 8),
		Test:     make([]float64, 4),
		TimeStep: 3,
	}
	want := []struct {
		name   string
		offset int
	}{
		{"True Data", 0},
		{"Train Predictions", 3},
		{"Test Predictions", 11},
		{"Analog Baseline", 11},
	}
	got := lineSeries(p)
	if len(got) != len(want) {
		t.Fatalf("expected %d series, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].name != w.name || got[i].offset != w.offset {
			t.Fatalf("series %d: got %q at %d, want %q at %d", i, got[i].name, got[i].offset, w.name, w.offset)
		}
	}
}
