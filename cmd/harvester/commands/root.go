// Package commands implements the harvester CLI.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"toolharvest/internal/config"
	"toolharvest/internal/logger"
	"toolharvest/internal/output"
)

const defaultConfigPath = "configs/harvester.yaml"

// version is stamped into the manifest; overridden with -ldflags.
var version = "dev"

var (
	configPath string
	logLevel   string
	outputDir  string
)

var rootCmd = &cobra.Command{
	Use:           "harvester",
	Short:         "harvester crawls an AI-tool catalog and emits normalized, deduplicated records.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration file (default "+defaultConfigPath+" if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output", "", "Override output.dir")
}

// ExecuteContext runs the CLI.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// runtime is the per-invocation state shared by every stage.
type runtime struct {
	cfg    *config.Config
	log    *logger.Logger
	runID  string
	writer *output.Writer
}

func setup() (*runtime, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}

	rt := newRuntime(cfg, logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	if path != "" {
		rt.log.Info("⚙️  Configuration loaded", "path", path)
	}

	rt.log.Debug("effective configuration", "config", cfg.String())

	return rt, nil
}

func newRuntime(cfg *config.Config, log *logger.Logger) *runtime {
	runID := uuid.NewString()
	log = log.With("run_id", runID)

	writer := output.NewWriter(cfg.Output, runID, version, log)
	if previous, err := output.ReadManifest(cfg.Output.Dir); err == nil {
		writer.Carry(previous)
	}

	return &runtime{cfg: cfg, log: log, runID: runID, writer: writer}
}

// finish writes the manifest; it runs even when a stage failed part way.
func (rt *runtime) finish(stageErr error) error {
	if err := rt.writer.WriteManifest(); err != nil {
		rt.log.Error("failed to write manifest", "error", err)

		if stageErr == nil {
			return err
		}
	}

	return stageErr
}
