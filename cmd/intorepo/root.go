package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Gourav1632/into-the-repo/internal/config"
	"github.com/Gourav1632/into-the-repo/internal/logging"
	"github.com/Gourav1632/into-the-repo/internal/version"
)

var (
	// dataDirFlag is the CLI --data-dir flag value
	dataDirFlag string
)

var rootCmd = &cobra.Command{
	Use:   "intorepo",
	Short: "into-the-repo - Repository Analysis Engine",
	Long: `into-the-repo analyzes remote git repositories at a pinned commit:
it extracts per-file structure (functions, classes, imports, complexity),
builds repository-wide dependency and per-file call graphs, and serves the
results over an HTTP API with live task progress.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("into-the-repo version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "",
		"Data directory for config, cache, and snapshots (default: .intorepo)")
}

// resolveDataDir determines the effective data directory.
// Precedence: CLI flag > INTOREPO_DATA_DIR env var > default
func resolveDataDir() string {
	if dataDirFlag != "" {
		return dataDirFlag
	}
	if env := os.Getenv("INTOREPO_DATA_DIR"); env != "" {
		return env
	}
	return ""
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(resolveDataDir())
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.Level(cfg.Logging.Level),
	})
}
