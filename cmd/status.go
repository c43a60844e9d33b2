package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/brandforge/suggest-engine/internal/model"
	"github.com/brandforge/suggest-engine/internal/store"
)

var (
	statusID     string
	statusFilter string
	statusKind   string
	statusLimit  int
)

// requestDetail is the status output for a single request.
type requestDetail struct {
	Request    *model.Request          `json:"request"`
	Providers  []model.ProviderResult  `json:"providers"`
	Aggregated *model.AggregatedResult `json:"aggregated,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show request status, by id or as a filtered list",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if statusID != "" {
			detail, err := loadRequestDetail(cmd, st, statusID)
			if err != nil {
				return err
			}
			return enc.Encode(detail)
		}

		reqs, err := st.ListRequests(ctx, store.RequestFilter{
			Status: model.RequestStatus(statusFilter),
			Kind:   model.OutputKind(statusKind),
			Limit:  statusLimit,
		})
		if err != nil {
			return err
		}
		return enc.Encode(reqs)
	},
}

func loadRequestDetail(cmd *cobra.Command, st store.Store, id string) (*requestDetail, error) {
	ctx := cmd.Context()

	req, err := st.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	results, err := st.ListProviderResults(ctx, id)
	if err != nil {
		return nil, err
	}
	agg, err := st.GetAggregated(ctx, req.Fingerprint)
	if err != nil {
		return nil, err
	}
	return &requestDetail{Request: req, Providers: results, Aggregated: agg}, nil
}

func init() {
	statusCmd.Flags().StringVar(&statusID, "id", "", "request id to inspect")
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "filter by status (pending|in_progress|completed|failed)")
	statusCmd.Flags().StringVar(&statusKind, "kind", "", "filter by kind (prompts|competitors|industry-analysis)")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "max requests to list")
	rootCmd.AddCommand(statusCmd)
}
