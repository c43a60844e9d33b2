package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandforge/suggest-engine/internal/model"
	"github.com/brandforge/suggest-engine/internal/orchestrator"
)

var (
	suggestBrandID     string
	suggestName        string
	suggestURL         string
	suggestDescription string
	suggestCountry     string
	suggestForce       bool
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Generate search prompt suggestions for a brand",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSuggestion(cmd, model.KindPrompts, nil)
	},
}

// runSuggestion dispatches one request, blocks for the aggregated
// outcome, and prints it as JSON.
func runSuggestion(cmd *cobra.Command, kind model.OutputKind, excludeDomains []string) error {
	ctx := cmd.Context()

	e, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	target := model.Target{
		BrandID:     suggestBrandID,
		Name:        suggestName,
		URL:         suggestURL,
		Description: suggestDescription,
	}

	h, err := e.dispatcher.Dispatch(ctx, target, kind, suggestCountry, orchestrator.DispatchOptions{
		Force:          suggestForce,
		ExcludeDomains: excludeDomains,
	})
	if err != nil {
		return err
	}
	if h.Cached {
		zap.L().Info("returning cached suggestions", zap.String("fingerprint", h.Fingerprint))
	}

	result, err := h.Wait(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// registerTargetFlags attaches the shared brand-target flags to a
// suggestion command.
func registerTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&suggestBrandID, "brand-id", "", "stable brand identifier")
	cmd.Flags().StringVar(&suggestName, "name", "", "brand name")
	cmd.Flags().StringVar(&suggestURL, "url", "", "brand website URL (required)")
	cmd.Flags().StringVar(&suggestDescription, "description", "", "short brand description")
	cmd.Flags().StringVar(&suggestCountry, "country", "", "ISO country code to focus on")
	cmd.Flags().BoolVar(&suggestForce, "force", false, "regenerate even when a cached result exists")
	_ = cmd.MarkFlagRequired("url")
}

func init() {
	registerTargetFlags(suggestCmd)
	rootCmd.AddCommand(suggestCmd)
}
