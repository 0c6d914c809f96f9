package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gourav1632/into-the-repo/internal/analysis"
	"github.com/Gourav1632/into-the-repo/internal/cache"
	"github.com/Gourav1632/into-the-repo/internal/gitremote"
	"github.com/Gourav1632/into-the-repo/internal/snapshot"
	"github.com/Gourav1632/into-the-repo/internal/storage"
)

var (
	analyzeBranch string
	analyzeQuiet  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <repo-url>",
	Short: "Analyze a repository and print the result as JSON",
	Long: `Run one analysis synchronously, without the HTTP server. The result is
written to stdout as JSON and cached under the data directory, so a later
serve run can answer result queries for the same commit from cache.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeBranch, "branch", analysis.DefaultBranch, "Branch to analyze")
	analyzeCmd.Flags().BoolVar(&analyzeQuiet, "quiet", false, "Suppress progress output")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := newLogger(cfg)

	db, err := storage.Open(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	store, err := cache.NewStore(db, logger, cfg.Cache.MemoryEntries)
	if err != nil {
		return fmt.Errorf("creating result cache: %w", err)
	}

	cloneTimeout := time.Duration(cfg.Fetch.CloneTimeoutSeconds) * time.Second
	fetcher := snapshot.NewFetcher(cfg.Fetch.WorkDir, snapshot.Limits{
		MaxRepoBytes: cfg.Fetch.MaxRepoBytes,
		MaxFileCount: cfg.Fetch.MaxFileCount,
		MaxFileBytes: cfg.Fetch.MaxFileBytes,
	}, cloneTimeout, logger)

	pipeline := analysis.NewPipeline(gitremote.NewClient(cloneTimeout),
		analysis.NewSnapshotFetcher(fetcher), store, logger, cfg.Workers.ParseConcurrency)

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Workers.TaskTimeoutSeconds)*time.Second)
	defer cancel()

	progress := func(message string) {
		if !analyzeQuiet {
			fmt.Fprintln(os.Stderr, message)
		}
	}
	result, err := pipeline.Run(ctx, analysis.Request{
		RepoURL: args[0],
		Branch:  analyzeBranch,
	}, progress)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
