package artifacts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLayoutPaths(t *testing.T) {
	l := Layout{CheckpointDir: "ckpt", ModelDir: "models"}
	cases := map[string]string{
		l.CheckpointPath("1210005301"): filepath.Join("ckpt", "1210005301", "model.ckpt"),
		l.FinalModelPath("1210005301"): filepath.Join("models", "1210005301", "model.gob"),
		l.InfoPath("1210005301"):       filepath.Join("models", "1210005301", "model_info.txt"),
		l.PlotPath("1210005301"):       filepath.Join("models", "1210005301", "predictions.png"),
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("path = %s, want %s", got, want)
		}
	}
}

func TestLayoutEnsure(t *testing.T) {
	tmp := t.TempDir()
	l := Layout{CheckpointDir: filepath.Join(tmp, "ckpt"), ModelDir: filepath.Join(tmp, "models")}
	if err := l.Ensure("42"); err != nil {
		t.Fatalf("Ensure error: %v", err)
	}
	// idempotent
	if err := l.Ensure("42"); err != nil {
		t.Fatalf("second Ensure error: %v", err)
	}
	for _, dir := range []string{filepath.Dir(l.CheckpointPath("42")), filepath.Dir(l.FinalModelPath("42"))} {
		st, err := os.Stat(dir)
		if err != nil || !st.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
	if err := l.Ensure(""); err == nil {
		t.Fatalf("expected error for empty node id")
	}
}

func TestWriteInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node", "model_info.txt")
	saved := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	if err := WriteInfo(path, Info{SavedAt: saved, TrainRMSE: 1.234, TestRMSE: 5.678, ModelPath: "models/node/model.gob"}); err != nil {
		t.Fatalf("WriteInfo error: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	want := []string{
		"Model saved on: 2024-03-01 12:30:00.000000",
		"Train RMSE: 1.23",
		"Test RMSE: 5.68",
		"Model path: models/node/model.gob",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	// run details are appended after the fixed lines
	base := 3.5
	info := Info{SavedAt: saved, ModelPath: "m", RunID: "abc", EpochsRun: 4, BestLoss: 0.01, Resumed: true, BaselineRMSE: &base}
	if err := WriteInfo(path, info); err != nil {
		t.Fatal(err)
	}
	b, _ = os.ReadFile(path)
	for _, s := range []string{"Run ID: abc", "Epochs run: 4", "Resumed from checkpoint: true", "Baseline test RMSE: 3.50"} {
		if !strings.Contains(string(b), s) {
			t.Fatalf("info missing %q:\n%s", s, b)
		}
	}
}
