package datasets

import (
	"io"
	"math"
	"testing"
)

func TestCreateDataset(t *testing.T) {
	data := []float32{0, 1, 2, 3, 4, 5, 6}
	X, y := CreateDataset(data, 3)

	// len(data) - timeStep - 1
	if len(X) != 3 || len(y) != 3 {
		t.Fatalf("expected 3 windows, got X=%d y=%d", len(X), len(y))
	}
	for i := range X {
		for j := range 3 {
			if X[i][j] != float32(i+j) {
				t.Fatalf("X[%d][%d] = %v, want %v", i, j, X[i][j], i+j)
			}
		}
		if y[i] != float32(i+3) {
			t.Fatalf("y[%d] = %v, want %v", i, y[i], i+3)
		}
	}

	// windows must not alias the source
	X[0][0] = 99
	if data[0] != 0 {
		t.Fatalf("CreateDataset windows alias the input slice")
	}
}

func TestCreateDataset_Short(t *testing.T) {
	X, y := CreateDataset([]float32{1, 2, 3}, 3)
	if len(X) != 0 || len(y) != 0 {
		t.Fatalf("expected no windows, got %d", len(X))
	}
	X, _ = CreateDataset([]float32{1, 2, 3}, 0)
	if X != nil {
		t.Fatalf("expected nil for timeStep 0")
	}
}

func TestSplitIndex(t *testing.T) {
	cases := map[int]int{0: 0, 1: 0, 5: 4, 10: 8, 99: 79}
	for n, want := range cases {
		if got := SplitIndex(n, 0.8); got != want {
			t.Errorf("SplitIndex(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestWindowDataset_ExampleAndBatch(t *testing.T) {
	X, y := CreateDataset([]float32{.1, .2, .3, .4, .5, .6, .7, .8}, 4)
	ds, err := NewWindowDataset(X, y)
	if err != nil {
		t.Fatalf("NewWindowDataset failed: %v", err)
	}
	if ds.Len() != 3 || ds.TimeStep() != 4 {
		t.Fatalf("unexpected dims: len=%d timeStep=%d", ds.Len(), ds.TimeStep())
	}

	in, la, err := ds.Example(1)
	if err != nil {
		t.Fatalf("Example(1) error: %v", err)
	}
	if len(in) != 4 || len(in[0]) != 1 || in[0][0] != .2 || la[0] != .6 {
		t.Fatalf("unexpected Example(1): in=%v la=%v", in, la)
	}
	if _, _, err := ds.Example(3); err == nil {
		t.Fatalf("expected out of range error")
	}

	inputs, labels, err := ds.Batch([]int{2, 0})
	if err != nil {
		t.Fatalf("Batch error: %v", err)
	}
	if labels[0][0] != .7 || labels[1][0] != .5 || inputs[1][3][0] != .4 {
		t.Fatalf("unexpected batch: inputs=%v labels=%v", inputs, labels)
	}

	flat, err := MakeWindowBatchFlat(inputs, labels)
	if err != nil {
		t.Fatalf("MakeWindowBatchFlat error: %v", err)
	}
	if flat.BatchSize != 2 || flat.TimeStep != 4 || flat.InputDim != 1 || flat.LabelDim != 1 {
		t.Fatalf("unexpected WindowBatchFlat dims: %+v", flat)
	}
	if len(flat.Inputs) != 8 || flat.Inputs[4] != .1 {
		t.Fatalf("unexpected flat inputs: %v", flat.Inputs)
	}

	inT, labT, err := flat.ToGomlxTensors()
	if err != nil {
		t.Fatalf("ToGomlxTensors error: %v", err)
	}
	if inT == nil || labT == nil {
		t.Fatalf("ToGomlxTensors returned nil tensor(s)")
	}
}

func TestWindowDataset_Slice(t *testing.T) {
	X, y := CreateDataset([]float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 2)
	ds, err := NewWindowDataset(X, y)
	if err != nil {
		t.Fatal(err)
	}
	train, err := ds.Slice(0, SplitIndex(ds.Len(), 0.8))
	if err != nil {
		t.Fatal(err)
	}
	test, err := ds.Slice(SplitIndex(ds.Len(), 0.8), ds.Len())
	if err != nil {
		t.Fatal(err)
	}
	if train.Len()+test.Len() != ds.Len() {
		t.Fatalf("split lost examples: %d + %d != %d", train.Len(), test.Len(), ds.Len())
	}
	if test.Targets()[0] != y[train.Len()] {
		t.Fatalf("test split does not start after train split")
	}
	if _, err := ds.Slice(3, 2); err == nil {
		t.Fatalf("expected error for inverted slice")
	}
}

func TestWindowDataset_YieldEpoch(t *testing.T) {
	X, y := CreateDataset([]float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, 3)
	ds, err := NewWindowDataset(X, y)
	if err != nil {
		t.Fatal(err)
	}
	ds.BatchSize = 3
	ds.Shuffle(7)

	batches := 0
	for {
		_, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Yield error: %v", err)
		}
		if len(inputs) != 1 || len(labels) != 1 {
			t.Fatalf("expected one input and one label tensor")
		}
		batches++
	}
	// 8 windows in batches of 3
	if batches != 3 {
		t.Fatalf("expected 3 batches, got %d", batches)
	}

	ds.Reset()
	if _, _, _, err := ds.Yield(); err != nil {
		t.Fatalf("Yield after Reset error: %v", err)
	}
}

func TestMinMaxScaler(t *testing.T) {
	s := NewMinMaxScaler()
	data := []float64{20, 40, 60, 80}
	out, err := s.FitTransform(data)
	if err != nil {
		t.Fatalf("FitTransform error: %v", err)
	}
	want := []float32{0, 1.0 / 3, 2.0 / 3, 1}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
	back := s.InverseTransform(out)
	for i := range data {
		if math.Abs(back[i]-data[i]) > 1e-4 {
			t.Fatalf("inverse[%d] = %v, want %v", i, back[i], data[i])
		}
	}
}

func TestMinMaxScaler_Constant(t *testing.T) {
	s := NewMinMaxScaler()
	out, err := s.FitTransform([]float64{5, 5, 5})
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range out {
		if v != 0 {
			t.Fatalf("constant series should scale to feature min, got %v", v)
		}
	}
	if got := s.InverseTransformOne(0); got != 5 {
		t.Fatalf("InverseTransformOne(0) = %v, want 5", got)
	}
	if _, err := NewMinMaxScaler().Transform([]float64{1}); err == nil {
		t.Fatalf("expected error from unfitted scaler")
	}
}

func TestWindowDatasetThroughDatasetInterface(t *testing.T) {
	X, y := CreateDataset([]float32{0, 1, 2, 3, 4, 5, 6, 7}, 2)
	wd, err := NewWindowDataset(X, y)
	if err != nil {
		t.Fatal(err)
	}
	wd.BatchSize = 4

	var ds Dataset = wd
	served := 0
	for {
		_, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Yield failed: %v", err)
		}
		served += inputs[0].Shape().Dimensions[0]
		if labels[0].Shape().Dimensions[0] != inputs[0].Shape().Dimensions[0] {
			t.Fatalf("labels and inputs batch sizes differ")
		}
	}
	if served != ds.Len() {
		t.Fatalf("Yield served %d examples, want %d", served, ds.Len())
	}
	ds.Reset()
	if _, _, _, err := ds.Yield(); err != nil {
		t.Fatalf("Yield after Reset failed: %v", err)
	}
}
