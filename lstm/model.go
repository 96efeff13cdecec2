package lstm

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config holds the architecture and training hyperparameters of the
// forecaster.
type Config struct {
	// HiddenSizes lists the units of each stacked LSTM layer. Every layer
	// but the last feeds its full output sequence to the next one.
	// Default: []int{50, 50}
	HiddenSizes []int

	// InputDim is the number of features per time step (default 1).
	InputDim int

	// OutputDim is the width of the dense head (default 1).
	OutputDim int

	// TimeStep is the window length the model is trained on (default 10).
	// It is recorded with the weights so a checkpoint is not resumed on
	// differently framed data.
	TimeStep int

	// Dropout rate applied after every LSTM layer while training (default 0.2).
	// A negative value disables dropout.
	Dropout float64

	// LearningRate for Adam (default 0.001).
	LearningRate float64

	// Adam hyperparameters (defaults 0.9, 0.999, 1e-7).
	Beta1   float64
	Beta2   float64
	Epsilon float64

	// Epochs to train for (default 10).
	Epochs int

	// BatchSize for mini-batch updates (default 1).
	BatchSize int

	// Patience is the number of epochs without loss improvement before
	// training stops early (default 10, negative disables).
	Patience int

	// ClipNorm clips the global gradient norm when > 0.
	ClipNorm float64

	// Seed controls RNG for weight init, shuffling and dropout. If zero, a
	// time-based seed is used.
	Seed int64
}

// withDefaults fills zero fields with the defaults documented on Config.
func (c Config) withDefaults() Config {
	if len(c.HiddenSizes) == 0 {
		c.HiddenSizes = []int{50, 50}
	}
	if c.InputDim == 0 {
		c.InputDim = 1
	}
	if c.OutputDim == 0 {
		c.OutputDim = 1
	}
	if c.TimeStep == 0 {
		c.TimeStep = 10
	}
	if c.Dropout == 0 {
		c.Dropout = 0.2
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.001
	}
	if c.Beta1 == 0 {
		c.Beta1 = 0.9
	}
	if c.Beta2 == 0 {
		c.Beta2 = 0.999
	}
	if c.Epsilon == 0 {
		c.Epsilon = 1e-7
	}
	if c.Epochs == 0 {
		c.Epochs = 10
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1
	}
	if c.Patience == 0 {
		c.Patience = 10
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

func (c Config) validate() error {
	for i, h := range c.HiddenSizes {
		if h <= 0 {
			return fmt.Errorf("hidden size %d must be > 0, got %d", i, h)
		}
	}
	if c.InputDim < 0 || c.OutputDim < 0 || c.TimeStep < 0 {
		return errors.New("dimensions must be positive")
	}
	if c.Dropout >= 1 {
		return fmt.Errorf("dropout must be < 1, got %v", c.Dropout)
	}
	if c.BatchSize < 0 || c.Epochs < 0 {
		return errors.New("epochs and batch size must be positive")
	}
	return nil
}

// param is one trainable tensor stored flat, with its gradient accumulator
// and Adam moments.
type param struct {
	Name string
	W    []float32
	grad []float32
	m    []float32
	v    []float32
}

func newParam(name string, n int) *param {
	return &param{
		Name: name,
		W:    make([]float32, n),
		grad: make([]float32, n),
		m:    make([]float32, n),
		v:    make([]float32, n),
	}
}

func (p *param) zeroGrad() {
	for i := range p.grad {
		p.grad[i] = 0
	}
}

// glorot fills p with a Glorot/Xavier uniform draw for the given fans.
func (p *param) glorot(rng *rand.Rand, fanIn, fanOut int) {
	limit := float32(math.Sqrt(6.0 / float64(fanIn+fanOut)))
	for i := range p.W {
		p.W[i] = (rng.Float32()*2.0 - 1.0) * limit
	}
}

// Model is a stack of LSTM layers with dropout between them and a linear
// dense head, trained with Adam on mean-squared error. It is implemented in
// pure Go so training runs anywhere without an accelerator runtime.
type Model struct {
	// Config used for training / initialization.
	Config Config

	layers []*lstmLayer
	dense  *denseLayer

	// step counts optimizer updates, used for Adam bias correction.
	step int

	// rng used for weight initialization, shuffling and dropout masks
	rng *rand.Rand
}

// NewModel creates a new Model instance with the provided configuration.
// It initializes weights and is ready to train.
func NewModel(cfg Config) (*Model, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Model{
		Config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}

	in := cfg.InputDim
	for l, h := range cfg.HiddenSizes {
		last := l == len(cfg.HiddenSizes)-1
		layer := newLSTMLayer(fmt.Sprintf("lstm_%d", l), in, h, !last)
		layer.init(m.rng)
		m.layers = append(m.layers, layer)
		in = h
	}
	m.dense = newDenseLayer("dense", in, cfg.OutputDim)
	m.dense.init(m.rng)

	return m, nil
}

// params returns every trainable tensor in a stable order.
func (m *Model) params() []*param {
	var ps []*param
	for _, l := range m.layers {
		ps = append(ps, l.wx, l.wh, l.b)
	}
	ps = append(ps, m.dense.w, m.dense.b)
	return ps
}

// NumParams returns the number of trainable scalars.
func (m *Model) NumParams() int {
	n := 0
	for _, p := range m.params() {
		n += len(p.W)
	}
	return n
}

// trace keeps what a training forward pass needs for backpropagation.
type trace struct {
	steps [][]lstmStep
	// masks[l][t] is the dropout mask applied to layer l's output at step t
	// (a single step for the last layer). nil when dropout is off.
	masks [][][]float32
	feat  []float32
	out   []float32
}

// forward runs one sequence through the network. When train is true,
// dropout masks are drawn from the model RNG and the trace is returned.
func (m *Model) forward(seq [][]float32, train bool) ([]float32, *trace, error) {
	if len(seq) == 0 {
		return nil, nil, errors.New("input sequence is empty")
	}
	for t, x := range seq {
		if len(x) != m.Config.InputDim {
			return nil, nil, fmt.Errorf("input at step %d has dimension %d, expected %d", t, len(x), m.Config.InputDim)
		}
	}

	var tr *trace
	if train {
		tr = &trace{
			steps: make([][]lstmStep, len(m.layers)),
			masks: make([][][]float32, len(m.layers)),
		}
	}

	rate := float32(m.Config.Dropout)
	x := seq
	for l, layer := range m.layers {
		hs, steps := layer.forward(x)
		if !layer.returnSequences {
			hs = hs[len(hs)-1:]
		}
		if train {
			tr.steps[l] = steps
			if rate > 0 {
				// hs rows are cached in steps as hPrev, so mask into copies.
				masks := make([][]float32, len(hs))
				dropped := make([][]float32, len(hs))
				for t := range hs {
					masks[t] = m.dropoutMask(len(hs[t]), rate)
					dropped[t] = make([]float32, len(hs[t]))
					for j := range hs[t] {
						dropped[t][j] = hs[t][j] * masks[t][j]
					}
				}
				hs = dropped
				tr.masks[l] = masks
			}
		}
		x = hs
	}

	feat := x[0]
	out := m.dense.forward(feat)
	if train {
		tr.feat = feat
		tr.out = out
	}
	return out, tr, nil
}

// dropoutMask returns an inverted-dropout mask: kept units are scaled by
// 1/(1-rate) so inference needs no rescaling.
func (m *Model) dropoutMask(n int, rate float32) []float32 {
	mask := make([]float32, n)
	keep := 1 / (1 - rate)
	for i := range mask {
		if m.rng.Float32() >= rate {
			mask[i] = keep
		}
	}
	return mask
}

// PredictBatch returns model predictions for a batch of sequences shaped
// [batch][timeStep][inputDim]. It does a purely forward pass (no dropout).
// The returned [][]float32 has shape [batch][outputDim].
func (m *Model) PredictBatch(inputs [][][]float32) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		pred, _, err := m.forward(in, false)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
		out[i] = pred
	}
	return out, nil
}

// denseLayer is a linear projection out = W·x + b.
type denseLayer struct {
	in, out int
	w       *param // [out][in]
	b       *param // [out]
}

func newDenseLayer(name string, in, out int) *denseLayer {
	return &denseLayer{
		in:  in,
		out: out,
		w:   newParam(name+"/kernel", out*in),
		b:   newParam(name+"/bias", out),
	}
}

func (d *denseLayer) init(rng *rand.Rand) {
	d.w.glorot(rng, d.in, d.out)
}

func (d *denseLayer) forward(x []float32) []float32 {
	y := make([]float32, d.out)
	for j := range d.out {
		row := d.w.W[j*d.in : (j+1)*d.in]
		sum := d.b.W[j]
		for i, xi := range x {
			sum += row[i] * xi
		}
		y[j] = sum
	}
	return y
}

// backward accumulates gradients for dy and returns dL/dx.
func (d *denseLayer) backward(x, dy []float32) []float32 {
	dx := make([]float32, d.in)
	for j := range d.out {
		d.b.grad[j] += dy[j]
		row := d.w.W[j*d.in : (j+1)*d.in]
		grow := d.w.grad[j*d.in : (j+1)*d.in]
		for i := range d.in {
			grow[i] += dy[j] * x[i]
			dx[i] += row[i] * dy[j]
		}
	}
	return dx
}
