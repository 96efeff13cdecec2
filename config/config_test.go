package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10, cfg.Data.TimeStep)
	assert.Equal(t, 0.8, cfg.Data.TrainSplit)
	assert.Equal(t, []int{50, 50}, cfg.Model.HiddenSizes)
	assert.Equal(t, 0.2, cfg.Model.Dropout)
	assert.Equal(t, 10, cfg.Training.Patience)
	assert.Equal(t, 1, cfg.Training.BatchSize)
	require.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("SPEEDCAST_EPOCHS", "")
	t.Setenv("SPEEDCAST_DATA_DIR", "")

	path := filepath.Join(t.TempDir(), "nested", "speedcast.yaml")

	cfg := DefaultConfig()
	cfg.Paths.DataDir = "/srv/traffic"
	cfg.Training.Epochs = 42
	cfg.Model.HiddenSizes = []int{16}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/traffic", loaded.Paths.DataDir)
	assert.Equal(t, 42, loaded.Training.Epochs)
	assert.Equal(t, []int{16}, loaded.Model.HiddenSizes)
	// untouched sections keep their defaults
	assert.Equal(t, 10, loaded.Data.TimeStep)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Paths, cfg.Paths)
}

func TestLoad_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data:\n  time_step: 24\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.Data.TimeStep)
	assert.Equal(t, 0.8, cfg.Data.TrainSplit)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SPEEDCAST_DATA_DIR", "/env/data")
	t.Setenv("SPEEDCAST_EPOCHS", "3")
	t.Setenv("SPEEDCAST_BATCH_SIZE", "not-a-number")
	t.Setenv("SPEEDCAST_RUN_LOG", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/env/data", cfg.Paths.DataDir)
	assert.Equal(t, 3, cfg.Training.Epochs)
	assert.Equal(t, 1, cfg.Training.BatchSize, "unparsable override is ignored")
	assert.Empty(t, cfg.Paths.RunLog, "an empty SPEEDCAST_RUN_LOG disables the run log")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"time step", func(c *Config) { c.Data.TimeStep = 0 }},
		{"split", func(c *Config) { c.Data.TrainSplit = 1 }},
		{"no layers", func(c *Config) { c.Model.HiddenSizes = nil }},
		{"zero units", func(c *Config) { c.Model.HiddenSizes = []int{50, 0} }},
		{"dropout", func(c *Config) { c.Model.Dropout = 1 }},
		{"epochs", func(c *Config) { c.Training.Epochs = 0 }},
		{"learning rate", func(c *Config) { c.Training.LearningRate = 0 }},
		{"baseline", func(c *Config) { c.Baseline.K = 0 }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"data dir", func(c *Config) { c.Paths.DataDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.Baseline.Enabled = false
	cfg.Baseline.K = 0
	assert.NoError(t, cfg.Validate(), "baseline settings are ignored when disabled")
}
