package main

import (
	"github.com/spf13/cobra"

	"github.com/brandforge/suggest-engine/internal/model"
)

var competitorsExclude []string

var competitorsCmd = &cobra.Command{
	Use:   "competitors",
	Short: "Discover and rank competitors of a brand",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSuggestion(cmd, model.KindCompetitors, competitorsExclude)
	},
}

func init() {
	registerTargetFlags(competitorsCmd)
	competitorsCmd.Flags().StringSliceVar(&competitorsExclude, "exclude", nil, "domains to exclude from suggestions")
	rootCmd.AddCommand(competitorsCmd)
}
