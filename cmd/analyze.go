package main

import (
	"github.com/spf13/cobra"

	"github.com/brandforge/suggest-engine/internal/model"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Build an industry-position analysis for a brand",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSuggestion(cmd, model.KindIndustryAnalysis, nil)
	},
}

func init() {
	registerTargetFlags(analyzeCmd)
	rootCmd.AddCommand(analyzeCmd)
}
