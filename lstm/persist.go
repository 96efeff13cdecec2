package lstm

import (
	"encoding/gob"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// modelFormatVersion is incremented when the on-disk model format changes.
const modelFormatVersion = 1

// snapshot is the gob payload written by Save. It carries the optimizer
// state as well so a checkpoint resumes training where it stopped.
type snapshot struct {
	Version int
	Config  Config
	Step    int
	SavedAt int64
	Params  []paramState
}

type paramState struct {
	Name string
	W    []float32
	M    []float32
	V    []float32
}

// Save writes the model (weights, configuration and Adam state) to path
// using encoding/gob. It performs an atomic write (create temp file then rename).
func (m *Model) Save(path string) error {
	if path == "" {
		return fmt.Errorf("empty model path")
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	snap := snapshot{
		Version: modelFormatVersion,
		Config:  m.Config,
		Step:    m.step,
		SavedAt: time.Now().Unix(),
	}
	for _, p := range m.params() {
		snap.Params = append(snap.Params, paramState{Name: p.Name, W: p.W, M: p.m, V: p.v})
	}

	if err := gob.NewEncoder(tmpFile).Encode(&snap); err != nil {
		return fmt.Errorf("encode model to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp model file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp model file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp model to target: %w", err)
	}
	return nil
}

// Load reads a model written by Save.
func Load(path string) (*Model, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model file %s: %w", path, err)
	}
	defer fh.Close()

	var snap snapshot
	if err := gob.NewDecoder(fh).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if snap.Version != modelFormatVersion {
		return nil, fmt.Errorf("model version mismatch: file=%d expected=%d", snap.Version, modelFormatVersion)
	}

	m, err := NewModel(snap.Config)
	if err != nil {
		return nil, fmt.Errorf("rebuild model from %s: %w", path, err)
	}
	ps := m.params()
	if len(ps) != len(snap.Params) {
		return nil, fmt.Errorf("model %s has %d parameters, expected %d", path, len(snap.Params), len(ps))
	}
	for i, p := range ps {
		st := snap.Params[i]
		if st.Name != p.Name || len(st.W) != len(p.W) {
			return nil, fmt.Errorf("parameter %d mismatch: file=%s[%d] expected=%s[%d]",
				i, st.Name, len(st.W), p.Name, len(p.W))
		}
		copy(p.W, st.W)
		copy(p.m, st.M)
		copy(p.v, st.V)
	}
	m.step = snap.Step
	// Don't replay the shuffles and dropout masks of the first run.
	m.rng = rand.New(rand.NewSource(snap.Config.Seed + int64(snap.Step)))
	return m, nil
}

// LoadOrNew resumes from the checkpoint at path when it exists, otherwise
// it builds a fresh model from cfg. The boolean reports whether the model
// was resumed. A checkpoint whose architecture or framing differs from cfg
// is an error rather than being silently replaced.
//
// Epochs, BatchSize, Patience, ClipNorm and Dropout always come from cfg;
// optimizer settings come from the checkpoint.
func LoadOrNew(path string, cfg Config) (*Model, bool, error) {
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, false, fmt.Errorf("stat checkpoint %s: %w", path, err)
		}
		m, err := NewModel(cfg)
		return m, false, err
	}

	m, err := Load(path)
	if err != nil {
		return nil, false, err
	}
	want := cfg.withDefaults()
	if err := want.validate(); err != nil {
		return nil, false, err
	}
	got := m.Config
	if !slices.Equal(got.HiddenSizes, want.HiddenSizes) || got.InputDim != want.InputDim ||
		got.OutputDim != want.OutputDim || got.TimeStep != want.TimeStep {
		return nil, false, fmt.Errorf("checkpoint %s was trained with hidden=%v input=%d output=%d timeStep=%d; configured hidden=%v input=%d output=%d timeStep=%d",
			path, got.HiddenSizes, got.InputDim, got.OutputDim, got.TimeStep,
			want.HiddenSizes, want.InputDim, want.OutputDim, want.TimeStep)
	}
	m.Config.Epochs = want.Epochs
	m.Config.BatchSize = want.BatchSize
	m.Config.Patience = want.Patience
	m.Config.ClipNorm = want.ClipNorm
	m.Config.Dropout = want.Dropout
	return m, true, nil
}
