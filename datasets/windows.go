package datasets

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// CreateDataset frames a series as supervised examples: X[i] holds the
// timeStep values starting at i and y[i] the value right after them.
// Indices run over [0, len(data)-timeStep-1), so the last possible window
// is left out.
func CreateDataset(data []float32, timeStep int) (X [][]float32, y []float32) {
	if timeStep < 1 {
		return nil, nil
	}
	n := len(data) - timeStep - 1
	if n <= 0 {
		return [][]float32{}, []float32{}
	}
	X = make([][]float32, n)
	y = make([]float32, n)
	for i := range n {
		w := make([]float32, timeStep)
		copy(w, data[i:i+timeStep])
		X[i] = w
		y[i] = data[i+timeStep]
	}
	return X, y
}

// SplitIndex returns how many of n examples go to the training part.
func SplitIndex(n int, ratio float64) int {
	return int(float64(n) * ratio)
}

// WindowDataset serves fixed-length windows of a univariate series. Each
// window is presented as a [timeStep][1] sequence and each label as [1].
type WindowDataset struct {
	// BatchSize used by Yield
	BatchSize int

	windows [][]float32
	targets []float32

	// order is the yield order; Shuffle permutes it.
	order  []int
	cursor int

	rand *rand.Rand
}

var _ Dataset = (*WindowDataset)(nil)

// NewWindowDataset wraps windows and their targets.
func NewWindowDataset(X [][]float32, y []float32) (*WindowDataset, error) {
	if len(X) != len(y) {
		return nil, fmt.Errorf("windows and targets sizes don't match: %d != %d", len(X), len(y))
	}
	timeStep := 0
	for i, w := range X {
		if i == 0 {
			timeStep = len(w)
		}
		if len(w) != timeStep {
			return nil, fmt.Errorf("inconsistent window length at example %d: expected %d, got %d", i, timeStep, len(w))
		}
	}
	d := &WindowDataset{
		BatchSize: 32,
		windows:   X,
		targets:   y,
		order:     make([]int, len(X)),
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := range d.order {
		d.order[i] = i
	}
	return d, nil
}

// Len returns the number of windows.
func (d *WindowDataset) Len() int { return len(d.windows) }

// TimeStep returns the window length (0 for an empty dataset).
func (d *WindowDataset) TimeStep() int {
	if len(d.windows) == 0 {
		return 0
	}
	return len(d.windows[0])
}

// Window returns the raw window at idx without reshaping.
func (d *WindowDataset) Window(idx int) []float32 { return d.windows[idx] }

// Targets returns all labels in dataset order.
func (d *WindowDataset) Targets() []float32 { return d.targets }

// Slice returns a dataset over windows [from, to). Storage is shared.
func (d *WindowDataset) Slice(from, to int) (*WindowDataset, error) {
	if from < 0 || to > len(d.windows) || from > to {
		return nil, fmt.Errorf("slice [%d, %d) out of range [0, %d]", from, to, len(d.windows))
	}
	sub, err := NewWindowDataset(d.windows[from:to], d.targets[from:to])
	if err != nil {
		return nil, err
	}
	sub.BatchSize = d.BatchSize
	return sub, nil
}

// Example returns the window at idx shaped [timeStep][1] and its label.
func (d *WindowDataset) Example(idx int) ([][]float32, []float32, error) {
	if idx < 0 || idx >= len(d.windows) {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(d.windows))
	}
	w := d.windows[idx]
	seq := make([][]float32, len(w))
	for t, v := range w {
		seq[t] = []float32{v}
	}
	return seq, []float32{d.targets[idx]}, nil
}

// Batch reads multiple examples by their indices
func (d *WindowDataset) Batch(indices []int) ([][][]float32, [][]float32, error) {
	inputs := make([][][]float32, len(indices))
	labels := make([][]float32, len(indices))
	for i, idx := range indices {
		in, la, err := d.Example(idx)
		if err != nil {
			return nil, nil, err
		}
		inputs[i] = in
		labels[i] = la
	}
	return inputs, labels, nil
}

// Shuffle permutes the order in which Yield walks the examples.
func (d *WindowDataset) Shuffle(seed int64) {
	d.rand.Seed(seed)
	d.rand.Shuffle(len(d.order), func(i, j int) {
		d.order[i], d.order[j] = d.order[j], d.order[i]
	})
}

// Tensors reads a batch of examples and returns them as gomlx tensors
func (d *WindowDataset) Tensors(indices []int) (inputs *tensors.Tensor, labels *tensors.Tensor, err error) {
	inData, labData, err := d.Batch(indices)
	if err != nil {
		return nil, nil, err
	}

	wbatch, err := MakeWindowBatchFlat(inData, labData)
	if err != nil {
		return nil, nil, err
	}

	return wbatch.ToGomlxTensors()
}

// Name returns the name of the dataset
func (d *WindowDataset) Name() string {
	return "WindowDataset"
}

// Yield returns the next batch in yield order for the gomlx Dataset
// interface. It returns io.EOF once every example has been served.
func (d *WindowDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if d.cursor >= len(d.order) {
		return nil, nil, nil, io.EOF
	}
	batchSize := d.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	end := min(d.cursor+batchSize, len(d.order))
	indices := d.order[d.cursor:end]
	d.cursor = end

	in, la, err := d.Tensors(indices)
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, []*tensors.Tensor{in}, []*tensors.Tensor{la}, nil
}

// Reset rewinds Yield for a new epoch.
func (d *WindowDataset) Reset() {
	d.cursor = 0
}

// WindowBatchFlat stores a batch of sequences in flat contiguous buffers.
type WindowBatchFlat struct {
	Inputs    []float32
	Labels    []float32
	BatchSize int
	TimeStep  int
	InputDim  int
	LabelDim  int
}

// MakeWindowBatchFlat flattens a batch into contiguous buffers
func MakeWindowBatchFlat(inputs [][][]float32, labels [][]float32) (*WindowBatchFlat, error) {
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", len(inputs), len(labels))
	}
	if len(inputs) == 0 || len(inputs[0]) == 0 {
		return &WindowBatchFlat{}, nil
	}

	batchSize := len(inputs)
	timeStep := len(inputs[0])
	inputDim := len(inputs[0][0])
	labelDim := len(labels[0])

	flatInputs := make([]float32, 0, batchSize*timeStep*inputDim)
	flatLabels := make([]float32, 0, batchSize*labelDim)

	for i := range batchSize {
		if len(inputs[i]) != timeStep {
			return nil, fmt.Errorf("inconsistent sequence length at example %d: expected %d, got %d",
				i, timeStep, len(inputs[i]))
		}
		for t := range timeStep {
			if len(inputs[i][t]) != inputDim {
				return nil, fmt.Errorf("inconsistent input dimensions at example %d step %d: expected %d, got %d",
					i, t, inputDim, len(inputs[i][t]))
			}
			flatInputs = append(flatInputs, inputs[i][t]...)
		}
		if len(labels[i]) != labelDim {
			return nil, fmt.Errorf("inconsistent label dimensions at example %d: expected %d, got %d",
				i, labelDim, len(labels[i]))
		}
		flatLabels = append(flatLabels, labels[i]...)
	}

	return &WindowBatchFlat{
		Inputs:    flatInputs,
		Labels:    flatLabels,
		BatchSize: batchSize,
		TimeStep:  timeStep,
		InputDim:  inputDim,
		LabelDim:  labelDim,
	}, nil
}

// ToGomlxTensors converts the batch to gomlx tensors shaped
// [batch, timeStep, inputDim] and [batch, labelDim].
func (b *WindowBatchFlat) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	// handle empty batch gracefully
	if b.BatchSize == 0 || b.TimeStep == 0 || b.InputDim == 0 || b.LabelDim == 0 {
		inT := tensors.FromAnyValue(make([][][]float32, 0))
		labT := tensors.FromAnyValue(make([][]float32, 0))
		return inT, labT, nil
	}
	inputs := make([][][]float32, b.BatchSize)
	labels := make([][]float32, b.BatchSize)
	stride := b.TimeStep * b.InputDim
	for i := range b.BatchSize {
		seq := make([][]float32, b.TimeStep)
		for t := range b.TimeStep {
			off := i*stride + t*b.InputDim
			seq[t] = b.Inputs[off : off+b.InputDim]
		}
		inputs[i] = seq
		labels[i] = b.Labels[i*b.LabelDim : (i+1)*b.LabelDim]
	}
	inT := tensors.FromAnyValue(inputs)
	labT := tensors.FromAnyValue(labels)
	return inT, labT, nil
}
