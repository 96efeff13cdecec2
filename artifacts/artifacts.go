// Package artifacts knows where a node's checkpoint, final model, info file
// and chart live, and writes the model info report.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File names inside a node's checkpoint and model directories.
const (
	CheckpointFile = "model.ckpt"
	FinalModelFile = "model.gob"
	InfoFile       = "model_info.txt"
	PlotFile       = "predictions.png"
)

// Layout maps node identifiers to artifact paths.
type Layout struct {
	CheckpointDir string
	ModelDir      string
}

// CheckpointPath is <CheckpointDir>/<nodeID>/model.ckpt.
func (l Layout) CheckpointPath(nodeID string) string {
	return filepath.Join(l.CheckpointDir, nodeID, CheckpointFile)
}

// FinalModelPath is <ModelDir>/<nodeID>/model.gob.
func (l Layout) FinalModelPath(nodeID string) string {
	return filepath.Join(l.ModelDir, nodeID, FinalModelFile)
}

// InfoPath is <ModelDir>/<nodeID>/model_info.txt.
func (l Layout) InfoPath(nodeID string) string {
	return filepath.Join(l.ModelDir, nodeID, InfoFile)
}

// PlotPath is <ModelDir>/<nodeID>/predictions.png.
func (l Layout) PlotPath(nodeID string) string {
	return filepath.Join(l.ModelDir, nodeID, PlotFile)
}

// Ensure creates the node's checkpoint and model directories if missing.
func (l Layout) Ensure(nodeID string) error {
	if nodeID == "" {
		return fmt.Errorf("empty node id")
	}
	for _, dir := range []string{
		filepath.Join(l.CheckpointDir, nodeID),
		filepath.Join(l.ModelDir, nodeID),
	} {
		if err := ensureDir(dir); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return nil
}

func ensureDir(path string) error {
	// Attempt to create directory if it doesn't exist (silently succeed if present).
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}

// Info is the content of model_info.txt.
type Info struct {
	SavedAt   time.Time
	TrainRMSE float64
	TestRMSE  float64
	ModelPath string

	// Optional run details, written only when set.
	RunID        string
	Resumed      bool
	EpochsRun    int
	BestLoss     float64
	BaselineRMSE *float64
}

// String renders the report. The first four lines are always present.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model saved on: %s\n", i.SavedAt.Format("2006-01-02 15:04:05.000000"))
	fmt.Fprintf(&b, "Train RMSE: %.2f\n", i.TrainRMSE)
	fmt.Fprintf(&b, "Test RMSE: %.2f\n", i.TestRMSE)
	fmt.Fprintf(&b, "Model path: %s\n", i.ModelPath)
	if i.RunID != "" {
		fmt.Fprintf(&b, "Run ID: %s\n", i.RunID)
	}
	if i.EpochsRun > 0 {
		fmt.Fprintf(&b, "Resumed from checkpoint: %t\n", i.Resumed)
		fmt.Fprintf(&b, "Epochs run: %d\n", i.EpochsRun)
		fmt.Fprintf(&b, "Best loss: %.6f\n", i.BestLoss)
	}
	if i.BaselineRMSE != nil {
		fmt.Fprintf(&b, "Baseline test RMSE: %.2f\n", *i.BaselineRMSE)
	}
	return b.String()
}

// WriteInfo writes info to path, replacing any previous report.
func WriteInfo(path string, info Info) error {
	if path == "" {
		return fmt.Errorf("empty info path")
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(info.String()), 0644); err != nil {
		return fmt.Errorf("write model info %s: %w", path, err)
	}
	return nil
}
