package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/Gourav1632/into-the-repo/internal/logging"
)

func main() {
	// Local overrides for development; a missing .env is fine.
	_ = godotenv.Load()

	logger := logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.InfoLevel,
	})

	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}
