package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Noofbiz/speedCast/config"
	"github.com/Noofbiz/speedCast/datasets"
	"github.com/Noofbiz/speedCast/logging"
	"github.com/Noofbiz/speedCast/runlog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writeNodeCSV writes <dir>/<node>/<node>.csv with a speed series that
// oscillates around 50.
func writeNodeCSV(t *testing.T, dir, node, header string, rows int) {
	t.Helper()
	path := filepath.Join(dir, node, node+".csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	var b strings.Builder
	b.WriteString(header + "\n")
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		ts := start.Add(time.Duration(i) * 5 * time.Minute)
		speed := 50 + 15*math.Sin(float64(i)/6)
		fmt.Fprintf(&b, "%s,%.2f\n", ts.Format("2006-01-02 15:04:05"), speed)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
}

func testConfig(root string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Paths.DataDir = filepath.Join(root, "processed")
	cfg.Paths.CheckpointDir = filepath.Join(root, "checkpoint")
	cfg.Paths.ModelDir = filepath.Join(root, "model")
	cfg.Paths.RunLog = filepath.Join(root, "model", "runs.db")
	cfg.Data.TimeStep = 5
	cfg.Model.HiddenSizes = []int{6, 4}
	cfg.Training.Epochs = 2
	cfg.Training.BatchSize = 8
	cfg.Training.LearningRate = 0.01
	cfg.Training.Seed = 7
	cfg.Baseline.K = 3
	cfg.Baseline.Sims = 5
	cfg.Plot.WidthInches = 4
	cfg.Plot.HeightInches = 2
	return cfg
}

func TestRMSE(t *testing.T) {
	got, err := RMSE([]float64{1, 2, 3}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Zero(t, got)

	got, err = RMSE([]float64{0, 0}, []float64{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(12.5), got, 1e-12)

	_, err = RMSE([]float64{1}, []float64{1, 2})
	assert.Error(t, err)
	_, err = RMSE(nil, nil)
	assert.Error(t, err)
}

func TestRunEndToEnd(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	writeNodeCSV(t, cfg.Paths.DataDir, "1210005301", "datetime,speed", 80)

	var out bytes.Buffer
	r := &Runner{Config: cfg, Logger: zap.NewNop(), Steps: logging.NewStepper(&out, nil)}

	res, err := r.Run(context.Background(), "1210005301")
	require.NoError(t, err)

	// 80 rows, time step 5: 74 windows split 59/15
	assert.Equal(t, 80, res.Rows)
	assert.Equal(t, 74, res.Windows)
	assert.Equal(t, 59, res.TrainSize)
	assert.Equal(t, 15, res.TestSize)
	assert.False(t, res.Resumed)
	assert.Len(t, res.TrainPredict, 59)
	assert.Len(t, res.TestPredict, 15)
	assert.False(t, math.IsNaN(res.TrainRMSE) || math.IsNaN(res.TestRMSE))
	require.NotNil(t, res.BaselineRMSE)

	for _, p := range []string{res.CheckpointPath, res.ModelPath, res.InfoPath, res.PlotPath} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
	assert.Equal(t, filepath.Join(cfg.Paths.CheckpointDir, "1210005301", "model.ckpt"), res.CheckpointPath)

	info, err := os.ReadFile(res.InfoPath)
	require.NoError(t, err)
	assert.Contains(t, string(info), fmt.Sprintf("Train RMSE: %.2f", res.TrainRMSE))
	assert.Contains(t, string(info), "Model path: "+res.ModelPath)

	steps := out.String()
	assert.Contains(t, steps, "Data loaded successfully.")
	assert.Contains(t, steps, "Final model saved to "+res.ModelPath)
	assert.Contains(t, steps, "load_processed_data took")

	// a second run resumes from the checkpoint
	out.Reset()
	res2, err := r.Run(context.Background(), "1210005301")
	require.NoError(t, err)
	assert.True(t, res2.Resumed)
	assert.Contains(t, out.String(), "Loaded model from checkpoint.")

	store, err := runlog.Open(cfg.Paths.RunLog)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.List(context.Background(), "1210005301", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	ids := []string{runs[0].ID, runs[1].ID}
	assert.ElementsMatch(t, []string{res.RunID, res2.RunID}, ids)
}

func TestRunReportableErrors(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	cfg.Plot.Enabled = false

	_, err := Run(context.Background(), cfg, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, datasets.ErrNodeDataNotFound)
	assert.True(t, IsReportable(err))

	writeNodeCSV(t, cfg.Paths.DataDir, "nodt", "timestamp,speed", 30)
	_, err = Run(context.Background(), cfg, "nodt")
	require.Error(t, err)
	assert.ErrorIs(t, err, datasets.ErrMissingColumn)
	assert.True(t, IsReportable(err))
	assert.Contains(t, err.Error(), "'datetime' column is not found")

	// nothing is written for a failed load
	_, statErr := os.Stat(filepath.Join(cfg.Paths.ModelDir, "nodt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunNotEnoughData(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	writeNodeCSV(t, cfg.Paths.DataDir, "tiny", "datetime,speed", 7)

	_, err := Run(context.Background(), cfg, "tiny")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotEnoughData)
	assert.False(t, IsReportable(err))
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	cfg.Paths.RunLog = ""
	writeNodeCSV(t, cfg.Paths.DataDir, "5", "datetime,speed", 40)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, cfg, "5")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLstmConfigMapping(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model.Dropout = 0
	cfg.Training.Patience = 0
	lc := lstmConfig(cfg)
	assert.Negative(t, lc.Dropout, "zero dropout disables it")
	assert.Negative(t, lc.Patience, "zero patience disables early stopping")
	assert.Equal(t, 10, lc.TimeStep)
	assert.Equal(t, []int{50, 50}, lc.HiddenSizes)
}
