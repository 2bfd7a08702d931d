package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/config"
	"github.com/ShayCichocki/taskweave/internal/logging"
)

var (
	configPath string
	logLevel   string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "weave",
	Short: "Prompt slicing and parallel agent dispatch",
	Long: `Weave splits a prompt into atomic subtasks, groups the ones that can
run together, and dispatches each group to AI agents concurrently.

Every subtask prompt carries a checklist; agents report progress with
inline checkpoint markers that weave parses and tracks. Results are stored
with their dependency chains and a checksum so a workflow's outputs can be
reassembled and verified later.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.config/weave/config.yaml plus .weave.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Console log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Disable console logging")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(sliceCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(haltCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the configuration selected by --config.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// newLogger builds the logger for a command. The project debug log is
// always written; the console shows entries at the configured level.
func newLogger(cfg *config.Config, projectRoot string) *zap.Logger {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	file := cfg.Logging.File
	if file == "" {
		file = logging.DebugFilePath(projectRoot)
	}
	logger, err := logging.New(logging.Config{Level: level, File: file, Quiet: quiet})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v; logging to console only\n", err)
		if logger, err = logging.New(logging.Config{Level: level, Quiet: quiet}); err != nil {
			return zap.NewNop()
		}
	}
	return logger
}
