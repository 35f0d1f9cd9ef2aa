// Package cmd provides the CLI commands for medfuse.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/medfuse/medfuse/internal/config"
	"github.com/medfuse/medfuse/internal/logging"
	"github.com/medfuse/medfuse/pkg/version"
)

// Shared persistent flags.
var (
	configPath string
	presetName string
	debugMode  bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the medfuse CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "medfuse",
		Short: "Multi-path retrieval fusion engine",
		Long: `medfuse retrieves document chunks over four concurrent paths
(dense vectors plus BM25 over keywords, summary, and content),
deduplicates child chunks against their parents, fuses the paths
with weighted reciprocal rank fusion, and optionally reranks.

Run 'medfuse search' against a corpus file to get started.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("medfuse version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration file")
	cmd.PersistentFlags().StringVar(&presetName, "preset", "", "Configuration preset: "+presetList())
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.medfuse/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func presetList() string {
	names := config.PresetNames()
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

// loadConfig resolves the effective configuration from the persistent
// flags: an explicit file wins over a preset, which wins over defaults.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	if presetName != "" {
		cfg, err := config.FromPreset(presetName)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Default(), nil
}

func startLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)

	if debugMode {
		slog.Debug("debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}
