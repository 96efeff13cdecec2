//go:build gomlxtrainer

// Gomlx-backed trainer for the `lstm` package.
//
// It builds the same stack as Model (LSTM layers with dropout and a dense
// head) as a gomlx graph and trains it with train.Loop over a
// datasets.WindowDataset. It is build-tagged so the default build does not
// pull an accelerator runtime:
//
//	go test -tags gomlxtrainer ./lstm/...
package lstm

import (
	"fmt"

	"github.com/Noofbiz/speedCast/datasets"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/simplego"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/lstm"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
)

// GomlxModel holds a gomlx context with trained variables and the backend
// it lives on.
type GomlxModel struct {
	Config  Config
	backend backends.Backend
	ctx     *context.Context
}

// modelGraph returns the gomlx model function for cfg. Inputs are shaped
// [batch, timeStep, inputDim]; the output is [batch, outputDim].
func modelGraph(cfg Config) func(ctx *context.Context, spec any, inputs []*Node) []*Node {
	return func(ctx *context.Context, spec any, inputs []*Node) []*Node {
		x := inputs[0]
		for l, hidden := range cfg.HiddenSizes {
			lctx := ctx.In(fmt.Sprintf("lstm_%d", l))
			allStates, lastState, _ := lstm.New(lctx, x, hidden).Done()
			if l < len(cfg.HiddenSizes)-1 {
				// [seq, directions, batch, hidden] -> [batch, seq, hidden]
				x = TransposeAllDims(Squeeze(allStates, 1), 1, 0, 2)
			} else {
				// [directions, batch, hidden] -> [batch, hidden]
				x = Squeeze(lastState, 0)
			}
			if cfg.Dropout > 0 {
				x = layers.DropoutStatic(lctx, x, cfg.Dropout)
			}
		}
		return []*Node{layers.Dense(ctx.In("dense"), x, true, cfg.OutputDim)}
	}
}

// TrainWithGomlx trains a gomlx rendition of the model on ds for
// Config.Epochs epochs with Adam and mean-squared error.
func TrainWithGomlx(cfg Config, ds *datasets.WindowDataset) (*GomlxModel, error) {
	cfg = cfg.withDefaults()
	if ds == nil {
		return nil, fmt.Errorf("dataset is nil")
	}
	if ds.Len() == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}
	ds.BatchSize = cfg.BatchSize

	backend, err := simplego.New("")
	if err != nil {
		return nil, fmt.Errorf("failed to create gomlx simplego backend: %w", err)
	}
	ctx := context.New()
	ctx.SetParam(optimizers.ParamLearningRate, cfg.LearningRate)

	trainer := train.NewTrainer(backend, ctx, modelGraph(cfg),
		losses.MeanSquaredError,
		optimizers.Adam().Done(),
		nil, nil)
	loop := train.NewLoop(trainer)
	if _, err := loop.RunEpochs(ds, cfg.Epochs); err != nil {
		return nil, fmt.Errorf("gomlx training failed: %w", err)
	}

	return &GomlxModel{Config: cfg, backend: backend, ctx: ctx.Reuse()}, nil
}

// PredictBatch runs inference on a batch shaped [batch][timeStep][inputDim].
func (g *GomlxModel) PredictBatch(inputs [][][]float32) ([][]float32, error) {
	if g == nil || g.ctx == nil {
		return nil, fmt.Errorf("gomlx model not trained; call TrainWithGomlx first")
	}
	fn := modelGraph(g.Config)
	exec, err := context.NewExec(g.backend, g.ctx, func(ctx *context.Context, x *Node) *Node {
		return fn(ctx, nil, []*Node{x})[0]
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build gomlx inference graph: %w", err)
	}
	out, err := exec.Exec1(tensors.FromAnyValue(inputs))
	if err != nil {
		return nil, fmt.Errorf("gomlx inference failed: %w", err)
	}
	preds, ok := out.Value().([][]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected prediction value type %T", out.Value())
	}
	return preds, nil
}
