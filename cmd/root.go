package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandforge/suggest-engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "suggest-engine",
	Short: "Multi-provider AI suggestion engine",
	Long:  "Fans brand-visibility questions out to multiple AI providers, parses their free-form answers, and aggregates them into canonical prompt, competitor, and industry-analysis suggestions.",
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
