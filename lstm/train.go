package lstm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Dataset is the minimal interface this package requires from a window
// dataset. datasets.WindowDataset satisfies it.
type Dataset interface {
	Len() int
	// Batch returns inputs shaped [batch][timeStep][inputDim] and labels
	// shaped [batch][outputDim] for the provided indices.
	Batch(indices []int) ([][][]float32, [][]float32, error)
}

// TrainOptions configures the callbacks that run at the end of each epoch.
type TrainOptions struct {
	// CheckpointPath, when set, receives the full model every time the
	// epoch loss improves on the best loss seen during this call.
	CheckpointPath string

	// Logger receives per-epoch progress. Nil disables logging.
	Logger *zap.Logger
}

// History records what happened during TrainWithDataset.
type History struct {
	// Losses holds the mean training loss of every completed epoch.
	Losses []float64

	BestLoss  float64
	BestEpoch int

	EpochsRun    int
	StoppedEarly bool

	// Checkpoints counts how many times the checkpoint was written.
	Checkpoints int
}

// TrainWithDataset trains the model with mini-batch backpropagation through
// time and Adam on mean-squared error. Examples are shuffled every epoch.
// Training stops after Config.Epochs, after Config.Patience epochs without
// improvement, or when ctx is cancelled (checked between batches).
func (m *Model) TrainWithDataset(ctx context.Context, ds Dataset, opts TrainOptions) (*History, error) {
	if ds == nil {
		return nil, errors.New("dataset is nil")
	}
	n := ds.Len()
	if n == 0 {
		return nil, errors.New("dataset has no examples")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	cfg := m.Config
	batchSize := max(cfg.BatchSize, 1)
	ps := m.params()

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	hist := &History{BestLoss: math.Inf(1), BestEpoch: -1}
	wait := 0

	for ep := 0; ep < cfg.Epochs; ep++ {
		start := time.Now()
		m.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		var lossSum float64
		for bstart := 0; bstart < n; bstart += batchSize {
			if err := ctx.Err(); err != nil {
				return hist, err
			}
			bend := min(bstart+batchSize, n)

			inputs, labels, err := ds.Batch(indices[bstart:bend])
			if err != nil {
				return hist, err
			}
			loss, err := m.trainBatch(inputs, labels, ps)
			if err != nil {
				return hist, err
			}
			lossSum += loss * float64(len(inputs))
		}

		epochLoss := lossSum / float64(n)
		if math.IsNaN(epochLoss) || math.IsInf(epochLoss, 0) {
			return hist, fmt.Errorf("epoch %d: loss is not finite", ep+1)
		}
		hist.Losses = append(hist.Losses, epochLoss)
		hist.EpochsRun = ep + 1
		log.Info("epoch finished",
			zap.Int("epoch", ep+1),
			zap.Int("epochs", cfg.Epochs),
			zap.Float64("loss", epochLoss),
			zap.Duration("took", time.Since(start)))

		if epochLoss < hist.BestLoss {
			log.Debug("loss improved",
				zap.Float64("from", hist.BestLoss),
				zap.Float64("to", epochLoss))
			hist.BestLoss = epochLoss
			hist.BestEpoch = ep
			wait = 0
			if opts.CheckpointPath != "" {
				if err := m.Save(opts.CheckpointPath); err != nil {
					return hist, fmt.Errorf("save checkpoint: %w", err)
				}
				hist.Checkpoints++
				log.Info("saved checkpoint", zap.String("path", opts.CheckpointPath))
			}
			continue
		}

		wait++
		if cfg.Patience > 0 && wait >= cfg.Patience {
			hist.StoppedEarly = true
			log.Info("early stopping",
				zap.Int("epoch", ep+1),
				zap.Int("patience", cfg.Patience))
			break
		}
	}

	return hist, nil
}

// trainBatch accumulates gradients over one mini-batch, applies a single
// Adam update and returns the batch loss.
func (m *Model) trainBatch(inputs [][][]float32, labels [][]float32, ps []*param) (float64, error) {
	if len(inputs) != len(labels) {
		return 0, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", len(inputs), len(labels))
	}
	batchN := len(inputs)
	if batchN == 0 {
		return 0, nil
	}
	for _, p := range ps {
		p.zeroGrad()
	}

	outDim := m.Config.OutputDim
	scale := float32(2.0 / float64(outDim*batchN))
	var loss float64
	for ex := range batchN {
		if len(labels[ex]) != outDim {
			return 0, fmt.Errorf("example %d: label has dimension %d, expected %d", ex, len(labels[ex]), outDim)
		}
		out, tr, err := m.forward(inputs[ex], true)
		if err != nil {
			return 0, fmt.Errorf("example %d: %w", ex, err)
		}

		// dLoss/dOutput for the batch mean of per-example MSE
		dOut := make([]float32, outDim)
		for j := range outDim {
			d := out[j] - labels[ex][j]
			loss += float64(d) * float64(d) / float64(outDim)
			dOut[j] = scale * d
		}
		m.backward(tr, dOut)
	}

	if m.Config.ClipNorm > 0 {
		clipGlobalNorm(ps, m.Config.ClipNorm)
	}
	m.adamStep()
	return loss / float64(batchN), nil
}

// backward propagates dOut through the dense head and the LSTM stack.
func (m *Model) backward(tr *trace, dOut []float32) {
	dFeat := m.dense.backward(tr.feat, dOut)

	var dAbove [][]float32
	for l := len(m.layers) - 1; l >= 0; l-- {
		layer := m.layers[l]
		steps := tr.steps[l]
		var dhs [][]float32
		if layer.returnSequences {
			dhs = dAbove
		} else {
			dhs = make([][]float32, len(steps))
			dhs[len(steps)-1] = dFeat
		}
		if masks := tr.masks[l]; masks != nil {
			if layer.returnSequences {
				for t := range dhs {
					applyMask(dhs[t], masks[t])
				}
			} else {
				applyMask(dhs[len(steps)-1], masks[0])
			}
		}
		dAbove = layer.backward(steps, dhs)
	}
}

func applyMask(d, mask []float32) {
	for j := range d {
		d[j] *= mask[j]
	}
}
