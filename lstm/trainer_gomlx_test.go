//go:build gomlxtrainer

package lstm

import (
	"math"
	"testing"

	"github.com/Noofbiz/speedCast/datasets"
)

func TestTrainWithGomlxPredictShape(t *testing.T) {
	const timeStep = 5
	series := make([]float32, 40)
	for i := range series {
		series[i] = float32(0.5 + 0.4*math.Sin(float64(i)*0.3))
	}
	X, y := datasets.CreateDataset(series, timeStep)
	ds, err := datasets.NewWindowDataset(X, y)
	if err != nil {
		t.Fatalf("NewWindowDataset: %v", err)
	}

	cfg := Config{HiddenSizes: []int{4, 3}, TimeStep: timeStep, Epochs: 1, BatchSize: 8, Seed: 1}
	gm, err := TrainWithGomlx(cfg, ds)
	if err != nil {
		t.Fatalf("TrainWithGomlx: %v", err)
	}

	inputs, _, err := ds.Batch([]int{0, 1, 2})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	preds, err := gm.PredictBatch(inputs)
	if err != nil {
		t.Fatalf("PredictBatch: %v", err)
	}
	if len(preds) != 3 {
		t.Fatalf("expected 3 predictions, got %d", len(preds))
	}
	for i, row := range preds {
		if len(row) != 1 {
			t.Fatalf("prediction %d: expected width 1, got %d", i, len(row))
		}
		if math.IsNaN(float64(row[0])) {
			t.Fatalf("prediction %d is NaN", i)
		}
	}
}

func TestTrainWithGomlxRejectsEmpty(t *testing.T) {
	if _, err := TrainWithGomlx(Config{}, nil); err == nil {
		t.Fatalf("expected error for nil dataset")
	}
}
