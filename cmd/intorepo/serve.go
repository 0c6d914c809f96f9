package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gourav1632/into-the-repo/internal/analysis"
	"github.com/Gourav1632/into-the-repo/internal/api"
	"github.com/Gourav1632/into-the-repo/internal/cache"
	"github.com/Gourav1632/into-the-repo/internal/gitremote"
	"github.com/Gourav1632/into-the-repo/internal/history"
	"github.com/Gourav1632/into-the-repo/internal/snapshot"
	"github.com/Gourav1632/into-the-repo/internal/storage"
	"github.com/Gourav1632/into-the-repo/internal/tasks"
)

var (
	servePort string
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the analysis engine HTTP API server. The server accepts analysis
submissions, streams task progress over SSE and websocket, and serves cached
results addressed by repository, branch, and commit.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := newLogger(cfg)

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := fmt.Sprintf("%d", cfg.Server.Port)
	if servePort != "" {
		port = servePort
	}
	addr := fmt.Sprintf("%s:%s", host, port)

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
	resolver := gitremote.NewClient(cloneTimeout)
	fetcher := snapshot.NewFetcher(cfg.Fetch.WorkDir, snapshot.Limits{
		MaxRepoBytes: cfg.Fetch.MaxRepoBytes,
		MaxFileCount: cfg.Fetch.MaxFileCount,
		MaxFileBytes: cfg.Fetch.MaxFileBytes,
	}, cloneTimeout, logger)

	pipeline := analysis.NewPipeline(resolver, analysis.NewSnapshotFetcher(fetcher),
		store, logger, cfg.Workers.ParseConcurrency)
	recorder := history.NewStore(db, logger)

	orchestrator := tasks.NewOrchestrator(pipeline, recorder, logger, tasks.Options{
		Workers:     cfg.Workers.PoolSize,
		QueueSize:   cfg.Workers.QueueSize,
		TaskTimeout: time.Duration(cfg.Workers.TaskTimeoutSeconds) * time.Second,
	})
	orchestrator.Start()

	server := api.NewServer(addr, api.Deps{
		Orchestrator: orchestrator,
		Pipeline:     pipeline,
		Resolver:     resolver,
		History:      recorder,
	}, logger)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP API server", map[string]interface{}{
			"addr": addr,
		})
		fmt.Printf("into-the-repo API server listening on http://%s\n", addr)
		fmt.Println("Press Ctrl+C to stop")
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Error during server shutdown", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}
		if err := orchestrator.Shutdown(ctx); err != nil {
			logger.Error("Error during orchestrator shutdown", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}

		logger.Info("Server stopped gracefully", nil)
	}

	return nil
}
