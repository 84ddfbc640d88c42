package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rateright/rateright/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "rateright",
	Short: "Local-service price discovery pipeline",
	Long:  "Resolves free-text service queries, aggregates nearby providers, discovers new ones via places search, and extracts prices through a tiered scrape/LLM/web-search cascade.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
