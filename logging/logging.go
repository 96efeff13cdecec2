// Package logging builds the zap logger used across speedcast and prints the
// highlighted step messages shown while a run progresses.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger for level ("debug", "info", "warn", "error") and
// format ("json" or "console"). Output goes to stderr so step messages on
// stdout stay readable.
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var config zap.Config
	switch format {
	case "", "console":
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.DisableStacktrace = true
	case "json":
		config = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q (valid: json, console)", format)
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// Stepper prints progress messages in a highlighted style and mirrors them
// to the logger at debug level.
type Stepper struct {
	out    io.Writer
	style  lipgloss.Style
	logger *zap.Logger
}

// NewStepper returns a Stepper writing to out (stdout when nil).
func NewStepper(out io.Writer, logger *zap.Logger) *Stepper {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stepper{
		out:    out,
		style:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		logger: logger,
	}
}

// Step prints a formatted step message.
func (s *Stepper) Step(format string, args ...any) {
	if s == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(s.out, s.style.Render(msg))
	s.logger.Debug("step", zap.String("msg", msg))
}

// Println prints plain text (data previews and the like) without styling.
func (s *Stepper) Println(args ...any) {
	if s == nil {
		return
	}
	fmt.Fprintln(s.out, args...)
}

// Timed starts timing name and returns a func that reports the elapsed time
// as a step. Use it as `defer st.Timed("load_processed_data")()`.
func (s *Stepper) Timed(name string) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		s.Step("%s took %.2fs", name, elapsed.Seconds())
		if s != nil {
			s.logger.Debug("step timing", zap.String("step", name), zap.Duration("elapsed", elapsed))
		}
	}
}
