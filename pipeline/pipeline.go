// Package pipeline runs the end-to-end forecasting job for one node: load,
// scale, window, train or resume, save, evaluate, report and plot.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Noofbiz/speedCast/artifacts"
	"github.com/Noofbiz/speedCast/config"
	"github.com/Noofbiz/speedCast/datasets"
	"github.com/Noofbiz/speedCast/logging"
	"github.com/Noofbiz/speedCast/lstm"
	"github.com/Noofbiz/speedCast/monte"
	"github.com/Noofbiz/speedCast/plots"
	"github.com/Noofbiz/speedCast/runlog"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"gonum.org/v1/plot/vg"
)

// ErrNotEnoughData is returned when the series is too short to give at
// least one training and one test window.
var ErrNotEnoughData = errors.New("not enough data")

// IsReportable reports whether err is one of the input problems a run ends
// on quietly: missing node data or a missing required column.
func IsReportable(err error) bool {
	return errors.Is(err, datasets.ErrNodeDataNotFound) || errors.Is(err, datasets.ErrMissingColumn)
}

// Result summarises a completed run.
type Result struct {
	RunID  string
	NodeID string

	Rows      int
	Windows   int
	TrainSize int
	TestSize  int

	Resumed bool
	History *lstm.History

	CheckpointPath string
	ModelPath      string
	InfoPath       string
	PlotPath       string // empty when plotting is disabled

	TrainRMSE    float64
	TestRMSE     float64
	BaselineRMSE *float64

	// TrainPredict and TestPredict are the inverse-scaled model outputs.
	TrainPredict []float64
	TestPredict  []float64
}

// Runner holds what a run needs besides the node id.
type Runner struct {
	Config *config.Config
	Logger *zap.Logger
	Steps  *logging.Stepper

	// RunLog is optional. When nil and Config.Paths.RunLog is set, Run opens
	// the database for the duration of the call.
	RunLog *runlog.Store

	// Now is the clock used for timestamps (time.Now when nil).
	Now func() time.Time
}

// Run executes the pipeline for nodeID with a quiet logger and step output
// on stdout.
func Run(ctx context.Context, cfg *config.Config, nodeID string) (*Result, error) {
	r := &Runner{Config: cfg, Logger: zap.NewNop()}
	return r.Run(ctx, nodeID)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// lstmConfig maps the file configuration onto the model configuration.
// Zero dropout and patience mean "off" in the file but "default" in lstm.
func lstmConfig(cfg *config.Config) lstm.Config {
	lc := lstm.Config{
		HiddenSizes:  append([]int(nil), cfg.Model.HiddenSizes...),
		InputDim:     1,
		OutputDim:    cfg.Model.OutputDim,
		TimeStep:     cfg.Data.TimeStep,
		Dropout:      cfg.Model.Dropout,
		LearningRate: cfg.Training.LearningRate,
		Beta1:        cfg.Training.Beta1,
		Beta2:        cfg.Training.Beta2,
		Epsilon:      cfg.Training.Epsilon,
		Epochs:       cfg.Training.Epochs,
		BatchSize:    cfg.Training.BatchSize,
		Patience:     cfg.Training.Patience,
		ClipNorm:     cfg.Training.ClipNorm,
		Seed:         cfg.Training.Seed,
	}
	if lc.Dropout == 0 {
		lc.Dropout = -1
	}
	if lc.Patience <= 0 {
		lc.Patience = -1
	}
	return lc
}

// Run executes every step for nodeID.
func (r *Runner) Run(ctx context.Context, nodeID string) (*Result, error) {
	cfg := r.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if nodeID == "" {
		return nil, fmt.Errorf("empty node id")
	}
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("node", nodeID))
	st := r.Steps
	if st == nil {
		st = logging.NewStepper(nil, log)
	}

	started := r.now()
	res := &Result{RunID: runlog.NewRunID(), NodeID: nodeID}
	layout := artifacts.Layout{CheckpointDir: cfg.Paths.CheckpointDir, ModelDir: cfg.Paths.ModelDir}

	// 1. load
	series, err := r.loadSeries(st, cfg.Paths.DataDir, nodeID)
	if err != nil {
		return nil, err
	}
	res.Rows = series.Len()

	// 2. scale
	scaler := datasets.NewMinMaxScaler()
	scaled, err := scaler.FitTransform(series.Float64s())
	if err != nil {
		return nil, fmt.Errorf("scale speeds: %w", err)
	}
	log.Debug("scaler fitted", zap.Float64("min", scaler.DataMin), zap.Float64("max", scaler.DataMax))

	// 3. window
	timeStep := cfg.Data.TimeStep
	done := st.Timed("create_dataset")
	X, y := datasets.CreateDataset(scaled, timeStep)
	done()
	res.Windows = len(X)

	// 4. split
	res.TrainSize = datasets.SplitIndex(len(X), cfg.Data.TrainSplit)
	res.TestSize = len(X) - res.TrainSize
	if res.TrainSize == 0 || res.TestSize == 0 {
		return nil, fmt.Errorf("%w: %d rows give %d windows of %d steps (train=%d, test=%d)",
			ErrNotEnoughData, res.Rows, res.Windows, timeStep, res.TrainSize, res.TestSize)
	}
	all, err := datasets.NewWindowDataset(X, y)
	if err != nil {
		return nil, err
	}
	trainDS, err := all.Slice(0, res.TrainSize)
	if err != nil {
		return nil, err
	}
	testDS, err := all.Slice(res.TrainSize, len(X))
	if err != nil {
		return nil, err
	}
	log.Info("dataset framed",
		zap.Int("rows", res.Rows), zap.Int("windows", res.Windows),
		zap.Int("train", res.TrainSize), zap.Int("test", res.TestSize))

	// 5. artifact directories
	if err := layout.Ensure(nodeID); err != nil {
		return nil, err
	}
	res.CheckpointPath = layout.CheckpointPath(nodeID)
	res.ModelPath = layout.FinalModelPath(nodeID)
	res.InfoPath = layout.InfoPath(nodeID)

	// 6. resume or build
	model, resumed, err := lstm.LoadOrNew(res.CheckpointPath, lstmConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("prepare model: %w", err)
	}
	res.Resumed = resumed
	if resumed {
		st.Step("Loaded model from checkpoint.")
	}
	log.Info("model ready", zap.Bool("resumed", resumed), zap.Int("params", model.NumParams()))

	// 7. train
	done = st.Timed("fit")
	hist, err := model.TrainWithDataset(ctx, trainDS, lstm.TrainOptions{
		CheckpointPath: res.CheckpointPath,
		Logger:         log,
	})
	done()
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	res.History = hist
	if hist.StoppedEarly {
		st.Step("Early stopping after %d epochs (best loss %.6f at epoch %d)", hist.EpochsRun, hist.BestLoss, hist.BestEpoch+1)
	}

	// 8. save
	if err := model.Save(res.ModelPath); err != nil {
		return nil, fmt.Errorf("save final model: %w", err)
	}
	if fi, err := os.Stat(res.ModelPath); err == nil {
		log.Info("final model written", zap.String("path", res.ModelPath), zap.String("size", humanize.Bytes(uint64(fi.Size()))))
	}
	st.Step("Final model saved to %s", res.ModelPath)

	// 9. evaluate
	if err := r.evaluate(st, model, scaler, trainDS, testDS, res); err != nil {
		return nil, err
	}
	st.Step("Train RMSE: %.2f", res.TrainRMSE)
	st.Step("Test RMSE: %.2f", res.TestRMSE)

	// 10. baseline
	var baselinePreds []float64
	if cfg.Baseline.Enabled {
		done = st.Timed("baseline")
		rmse, preds, err := baseline(cfg.Baseline, cfg.Training.Seed, trainDS, testDS, scaler)
		done()
		if err != nil {
			// the LSTM results still stand
			log.Warn("baseline failed", zap.Error(err))
		} else {
			res.BaselineRMSE = &rmse
			baselinePreds = preds
			st.Step("Baseline test RMSE: %.2f", rmse)
		}
	}

	// 11. info
	info := artifacts.Info{
		SavedAt:      r.now(),
		TrainRMSE:    res.TrainRMSE,
		TestRMSE:     res.TestRMSE,
		ModelPath:    res.ModelPath,
		RunID:        res.RunID,
		Resumed:      res.Resumed,
		EpochsRun:    hist.EpochsRun,
		BestLoss:     hist.BestLoss,
		BaselineRMSE: res.BaselineRMSE,
	}
	if err := artifacts.WriteInfo(res.InfoPath, info); err != nil {
		return nil, err
	}
	st.Step("Model information saved to %s", res.InfoPath)

	// 12. run log
	if err := r.record(ctx, cfg, started, res, log); err != nil {
		log.Warn("run not recorded", zap.Error(err))
	}

	// 13. plot
	if cfg.Plot.Enabled {
		res.PlotPath = layout.PlotPath(nodeID)
		done = st.Timed("plot_predictions")
		err := plots.Predictions(res.PlotPath, plots.PredictionPlot{
			Times:      series.Times,
			Actual:     series.Float64s(),
			Train:      res.TrainPredict,
			Test:       res.TestPredict,
			Baseline:   baselinePreds,
			TimeStep:   timeStep,
			TimeFormat: cfg.Plot.TimeFormat,
			Width:      vg.Length(cfg.Plot.WidthInches) * vg.Inch,
			Height:     vg.Length(cfg.Plot.HeightInches) * vg.Inch,
		})
		done()
		if err != nil {
			return nil, fmt.Errorf("plot predictions: %w", err)
		}
		st.Step("Prediction chart saved to %s", res.PlotPath)
	}

	return res, nil
}

// loadSeries loads the node CSV and previews it like a data frame head.
func (r *Runner) loadSeries(st *logging.Stepper, dir, nodeID string) (*datasets.NodeSeries, error) {
	defer st.Timed("load_processed_data")()
	st.Step("Trying to load data from: %s", datasets.NodeCSVPath(dir, nodeID))
	series, err := datasets.LoadNodeSeries(dir, nodeID)
	if err != nil {
		return nil, err
	}
	st.Step("Data loaded successfully.")
	for _, row := range series.Head(5) {
		st.Println(row.Time.Format("2006-01-02 15:04:05"), row.Speed)
	}
	st.Println("columns:", series.Columns)
	return series, nil
}

// evaluate predicts both splits, maps them back to speed units and
// computes the RMSE of each.
func (r *Runner) evaluate(st *logging.Stepper, model *lstm.Model, scaler *datasets.MinMaxScaler, trainDS, testDS *datasets.WindowDataset, res *Result) error {
	defer st.Timed("calculate_rmse")()

	predict := func(ds *datasets.WindowDataset) ([]float64, error) {
		idx := make([]int, ds.Len())
		for i := range idx {
			idx[i] = i
		}
		inputs, _, err := ds.Batch(idx)
		if err != nil {
			return nil, err
		}
		out, err := model.PredictBatch(inputs)
		if err != nil {
			return nil, err
		}
		// the first output unit is the forecast
		first := make([]float32, len(out))
		for i, o := range out {
			first[i] = o[0]
		}
		return scaler.InverseTransform(first), nil
	}

	var err error
	if res.TrainPredict, err = predict(trainDS); err != nil {
		return fmt.Errorf("predict train: %w", err)
	}
	if res.TestPredict, err = predict(testDS); err != nil {
		return fmt.Errorf("predict test: %w", err)
	}
	if res.TrainRMSE, err = RMSE(scaler.InverseTransform(trainDS.Targets()), res.TrainPredict); err != nil {
		return fmt.Errorf("train rmse: %w", err)
	}
	if res.TestRMSE, err = RMSE(scaler.InverseTransform(testDS.Targets()), res.TestPredict); err != nil {
		return fmt.Errorf("test rmse: %w", err)
	}
	return nil
}

// baseline forecasts every test window from its nearest training windows
// and returns the RMSE of the mean draws in speed units.
func baseline(cfg config.BaselineConfig, seed int64, trainDS, testDS *datasets.WindowDataset, scaler *datasets.MinMaxScaler) (float64, []float64, error) {
	m, err := monte.NewMonte(trainDS, cfg.K)
	if err != nil {
		return 0, nil, err
	}
	m.Workers = cfg.Workers
	if seed != 0 {
		m.Seed(seed)
	}

	windows := make([][]float32, testDS.Len())
	for i := range windows {
		windows[i] = testDS.Window(i)
	}
	forecasts, err := m.ForecastAll(windows, cfg.Sims)
	if err != nil {
		return 0, nil, err
	}
	means := make([]float32, len(forecasts))
	for i, fc := range forecasts {
		means[i] = float32(fc.Mean)
	}
	preds := scaler.InverseTransform(means)
	rmse, err := RMSE(scaler.InverseTransform(testDS.Targets()), preds)
	if err != nil {
		return 0, nil, err
	}
	return rmse, preds, nil
}

// record stores the run in the run log when one is configured.
func (r *Runner) record(ctx context.Context, cfg *config.Config, started time.Time, res *Result, log *zap.Logger) error {
	store := r.RunLog
	if store == nil {
		if cfg.Paths.RunLog == "" {
			return nil
		}
		var err error
		if store, err = runlog.Open(cfg.Paths.RunLog); err != nil {
			return err
		}
		defer store.Close()
	}
	id, err := store.Record(ctx, runlog.Run{
		ID:           res.RunID,
		NodeID:       res.NodeID,
		StartedAt:    started,
		FinishedAt:   r.now(),
		Resumed:      res.Resumed,
		EpochsRun:    res.History.EpochsRun,
		StoppedEarly: res.History.StoppedEarly,
		BestLoss:     res.History.BestLoss,
		TrainRMSE:    res.TrainRMSE,
		TestRMSE:     res.TestRMSE,
		BaselineRMSE: res.BaselineRMSE,
		ModelPath:    res.ModelPath,
	})
	if err != nil {
		return err
	}
	log.Debug("run recorded", zap.String("run_id", id), zap.String("db", store.Path()))
	return nil
}
