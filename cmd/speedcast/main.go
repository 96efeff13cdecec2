package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Noofbiz/speedCast/config"
	"github.com/Noofbiz/speedCast/logging"
	"github.com/Noofbiz/speedCast/pipeline"
	"github.com/Noofbiz/speedCast/runlog"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	// Global flags
	configPath string
	verbose    bool
	logJSON    bool

	// train flags
	dataDir       string
	checkpointDir string
	modelDir      string
	epochs        int
	batchSize     int
	timeStep      int
	seed          int64
	noPlot        bool
	noBaseline    bool

	// history flags
	historyLimit int

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "speedcast",
	Short: "Train LSTM traffic-speed forecasters per road node",
	Long: `speedcast trains a two-layer LSTM on the processed speed series of one
node, checkpoints the best weights, saves the final model with its RMSE
report and draws the train/test predictions against the true series.

Data is read from <data_dir>/<nodeid>/<nodeid>.csv, which needs a
"datetime" and a "speed" column.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logger != nil {
			return nil
		}
		level := "info"
		if verbose {
			level = "debug"
		}
		format := "console"
		if logJSON {
			format = "json"
		}
		var err error
		logger, err = logging.New(level, format)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// trainCmd runs the full pipeline for one node
var trainCmd = &cobra.Command{
	Use:   "train [nodeid]",
	Short: "Train (or resume) the model for a node and report its RMSE",
	Long: `Loads the node series, scales it to [0, 1], frames windows of time_step
values, trains with checkpointing and early stopping, then saves the
model, model_info.txt and predictions.png under <model_dir>/<nodeid>/.

When nodeid is omitted it is read from standard input.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTrain,
}

// historyCmd lists recorded runs
var historyCmd = &cobra.Command{
	Use:   "history [nodeid]",
	Short: "List recorded training runs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

// configCmd prints the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "speedcast.yaml", "path to the YAML configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")

	for _, cmd := range []*cobra.Command{trainCmd, configCmd} {
		cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory holding <nodeid>/<nodeid>.csv")
		cmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "directory for per-node checkpoints")
		cmd.Flags().StringVar(&modelDir, "model-dir", "", "directory for per-node final models and reports")
		cmd.Flags().IntVar(&epochs, "epochs", 0, "training epochs")
		cmd.Flags().IntVar(&batchSize, "batch-size", 0, "mini-batch size")
		cmd.Flags().IntVar(&timeStep, "time-step", 0, "window length")
		cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 = time based)")
		cmd.Flags().BoolVar(&noPlot, "no-plot", false, "skip the prediction chart")
		cmd.Flags().BoolVar(&noBaseline, "no-baseline", false, "skip the analog baseline")
	}
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum runs to list (0 = all)")

	rootCmd.AddCommand(trainCmd, historyCmd, configCmd)
}

// loadConfig reads the YAML file and applies flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.Paths.DataDir = dataDir
	}
	if flags.Changed("checkpoint-dir") {
		cfg.Paths.CheckpointDir = checkpointDir
	}
	if flags.Changed("model-dir") {
		cfg.Paths.ModelDir = modelDir
	}
	if flags.Changed("epochs") {
		cfg.Training.Epochs = epochs
	}
	if flags.Changed("batch-size") {
		cfg.Training.BatchSize = batchSize
	}
	if flags.Changed("time-step") {
		cfg.Data.TimeStep = timeStep
	}
	if flags.Changed("seed") {
		cfg.Training.Seed = seed
	}
	if noPlot {
		cfg.Plot.Enabled = false
	}
	if noBaseline {
		cfg.Baseline.Enabled = false
	}
	return cfg, cfg.Validate()
}

// promptNodeID asks for a node id on the command's input.
func promptNodeID(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), "Enter nodeid: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read nodeid: %w", err)
	}
	id := strings.TrimSpace(line)
	if id == "" {
		return "", fmt.Errorf("nodeid is required")
	}
	return id, nil
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var nodeID string
	if len(args) == 1 {
		nodeID = strings.TrimSpace(args[0])
	} else if nodeID, err = promptNodeID(cmd); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	steps := logging.NewStepper(cmd.OutOrStdout(), logger)
	r := &pipeline.Runner{Config: cfg, Logger: logger, Steps: steps}
	res, err := r.Run(ctx, nodeID)
	if err != nil {
		if pipeline.IsReportable(err) {
			steps.Step("%v", err)
			return nil
		}
		return err
	}

	logger.Info("run complete",
		zap.String("run_id", res.RunID),
		zap.Int("epochs", res.History.EpochsRun),
		zap.Float64("train_rmse", res.TrainRMSE),
		zap.Float64("test_rmse", res.TestRMSE))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Paths.RunLog == "" {
		return fmt.Errorf("run log is disabled (paths.run_log is empty)")
	}
	store, err := runlog.Open(cfg.Paths.RunLog)
	if err != nil {
		return err
	}
	defer store.Close()

	nodeID := ""
	if len(args) == 1 {
		nodeID = args[0]
	}
	runs, err := store.List(cmd.Context(), nodeID, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
		return nil
	}

	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return cell.Bold(true)
			}
			return cell
		}).
		Headers("NODE", "STARTED", "TOOK", "EPOCHS", "RESUMED", "TRAIN RMSE", "TEST RMSE", "BASELINE", "RUN")
	for _, r := range runs {
		base := "-"
		if r.BaselineRMSE != nil {
			base = fmt.Sprintf("%.2f", *r.BaselineRMSE)
		}
		t.Row(r.NodeID,
			humanize.Time(r.StartedAt),
			r.FinishedAt.Sub(r.StartedAt).Round(10*time.Millisecond).String(),
			fmt.Sprintf("%d", r.EpochsRun),
			fmt.Sprintf("%t", r.Resumed),
			fmt.Sprintf("%.2f", r.TrainRMSE),
			fmt.Sprintf("%.2f", r.TestRMSE),
			base,
			r.ID)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return err
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
