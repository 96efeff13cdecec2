package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all speedcast configuration.
type Config struct {
	// Paths to inputs and artifacts
	Paths PathsConfig `yaml:"paths"`

	// Window framing and train/test split
	Data DataConfig `yaml:"data"`

	// Network architecture
	Model ModelConfig `yaml:"model"`

	// Optimizer and callbacks
	Training TrainingConfig `yaml:"training"`

	// Analog Monte Carlo baseline
	Baseline BaselineConfig `yaml:"baseline"`

	// Output chart
	Plot PlotConfig `yaml:"plot"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PathsConfig configures where data is read and artifacts are written.
type PathsConfig struct {
	DataDir       string `yaml:"data_dir"`       // <data_dir>/<nodeid>/<nodeid>.csv
	CheckpointDir string `yaml:"checkpoint_dir"` // <checkpoint_dir>/<nodeid>/model.ckpt
	ModelDir      string `yaml:"model_dir"`      // <model_dir>/<nodeid>/...
	RunLog        string `yaml:"run_log"`        // SQLite database, empty disables
}

// DataConfig configures supervised framing.
type DataConfig struct {
	TimeStep   int     `yaml:"time_step"`
	TrainSplit float64 `yaml:"train_split"`
}

// ModelConfig configures the LSTM stack.
type ModelConfig struct {
	HiddenSizes []int   `yaml:"hidden_sizes"`
	Dropout     float64 `yaml:"dropout"`
	OutputDim   int     `yaml:"output_dim"`
}

// TrainingConfig configures the optimizer and callbacks.
type TrainingConfig struct {
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	Beta1        float64 `yaml:"beta1"`
	Beta2        float64 `yaml:"beta2"`
	Epsilon      float64 `yaml:"epsilon"`
	ClipNorm     float64 `yaml:"clip_norm"`
	Patience     int     `yaml:"patience"`
	Seed         int64   `yaml:"seed"` // 0 = time based
}

// BaselineConfig configures the analog forecaster reported next to the LSTM.
type BaselineConfig struct {
	Enabled bool `yaml:"enabled"`
	K       int  `yaml:"k"`
	Sims    int  `yaml:"sims"`
	Workers int  `yaml:"workers"` // 0 = NumCPU
}

// PlotConfig configures the prediction chart.
type PlotConfig struct {
	Enabled      bool    `yaml:"enabled"`
	WidthInches  float64 `yaml:"width_inches"`
	HeightInches float64 `yaml:"height_inches"`
	TimeFormat   string  `yaml:"time_format"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:       "data",
			CheckpointDir: "checkpoints",
			ModelDir:      "models",
			RunLog:        "models/runs.db",
		},

		Data: DataConfig{
			TimeStep:   10,
			TrainSplit: 0.8,
		},

		Model: ModelConfig{
			HiddenSizes: []int{50, 50},
			Dropout:     0.2,
			OutputDim:   1,
		},

		Training: TrainingConfig{
			Epochs:       10,
			BatchSize:    1,
			LearningRate: 0.001,
			Beta1:        0.9,
			Beta2:        0.999,
			Epsilon:      1e-7,
			Patience:     10,
		},

		Baseline: BaselineConfig{
			Enabled: true,
			K:       8,
			Sims:    60,
		},

		Plot: PlotConfig{
			Enabled:      true,
			WidthInches:  18,
			HeightInches: 8,
			TimeFormat:   "2006-01-02\n15:04",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("SPEEDCAST_DATA_DIR"); dir != "" {
		c.Paths.DataDir = dir
	}
	if dir := os.Getenv("SPEEDCAST_CHECKPOINT_DIR"); dir != "" {
		c.Paths.CheckpointDir = dir
	}
	if dir := os.Getenv("SPEEDCAST_MODEL_DIR"); dir != "" {
		c.Paths.ModelDir = dir
	}
	if path, ok := os.LookupEnv("SPEEDCAST_RUN_LOG"); ok {
		c.Paths.RunLog = path
	}

	// Numeric overrides are ignored when they do not parse.
	if v := os.Getenv("SPEEDCAST_EPOCHS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Training.Epochs = n
		}
	}
	if v := os.Getenv("SPEEDCAST_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Training.BatchSize = n
		}
	}
	if v := os.Getenv("SPEEDCAST_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Training.Seed = n
		}
	}
	if lvl := os.Getenv("SPEEDCAST_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return fmt.Errorf("data directory not configured")
	}
	if c.Paths.CheckpointDir == "" || c.Paths.ModelDir == "" {
		return fmt.Errorf("checkpoint and model directories must be configured")
	}
	if c.Data.TimeStep < 1 {
		return fmt.Errorf("time_step must be >= 1, got %d", c.Data.TimeStep)
	}
	if c.Data.TrainSplit <= 0 || c.Data.TrainSplit >= 1 {
		return fmt.Errorf("train_split must be in (0, 1), got %v", c.Data.TrainSplit)
	}
	if len(c.Model.HiddenSizes) == 0 {
		return fmt.Errorf("model needs at least one LSTM layer")
	}
	for i, h := range c.Model.HiddenSizes {
		if h < 1 {
			return fmt.Errorf("hidden_sizes[%d] must be >= 1, got %d", i, h)
		}
	}
	if c.Model.Dropout < 0 || c.Model.Dropout >= 1 {
		return fmt.Errorf("dropout must be in [0, 1), got %v", c.Model.Dropout)
	}
	if c.Training.Epochs < 1 || c.Training.BatchSize < 1 {
		return fmt.Errorf("epochs and batch_size must be >= 1")
	}
	if c.Training.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0, got %v", c.Training.LearningRate)
	}
	if c.Baseline.Enabled && (c.Baseline.K < 1 || c.Baseline.Sims < 1) {
		return fmt.Errorf("baseline k and sims must be >= 1")
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}

	return nil
}
