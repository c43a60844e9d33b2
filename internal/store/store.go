// Package store persists suggestion requests, per-provider results, and
// aggregated outcomes. Two backends are provided: SQLite for single-node
// deployments and Postgres for shared ones.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/brandforge/suggest-engine/internal/model"
)

// ErrResultSettled is returned by UpdateProviderResult when the row has
// already left processing. Terminal provider results are immutable; a
// late outcome landing after a deadline settle must not overwrite the
// recorded one.
var ErrResultSettled = eris.New("store: provider result already settled")

// RequestFilter specifies criteria for listing requests.
type RequestFilter struct {
	Status model.RequestStatus `json:"status,omitempty"`
	Kind   model.OutputKind    `json:"kind,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the suggestion engine.
//
// Lookup methods that key on a fingerprint (GetRequestByFingerprint,
// GetAggregated) return (nil, nil) on a miss: absence is an expected
// outcome there, not an error.
type Store interface {
	// Requests
	CreateRequest(ctx context.Context, req *model.Request) error
	GetRequest(ctx context.Context, id string) (*model.Request, error)
	GetRequestByFingerprint(ctx context.Context, fingerprint string) (*model.Request, error)
	UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus) error
	ListRequests(ctx context.Context, filter RequestFilter) ([]model.Request, error)

	// Provider results. UpdateProviderResult only transitions rows that
	// are still processing and returns ErrResultSettled otherwise.
	CreateProviderResult(ctx context.Context, res *model.ProviderResult) error
	UpdateProviderResult(ctx context.Context, res *model.ProviderResult) error
	ListProviderResults(ctx context.Context, requestID string) ([]model.ProviderResult, error)

	// Aggregated results, keyed by fingerprint
	GetAggregated(ctx context.Context, fingerprint string) (*model.AggregatedResult, error)
	UpsertAggregated(ctx context.Context, result *model.AggregatedResult) error
	DeleteAggregated(ctx context.Context, fingerprint string) error

	// Competitor roster per brand
	ListCompetitors(ctx context.Context, brandID string) ([]model.Competitor, error)
	UpsertCompetitors(ctx context.Context, brandID string, competitors []model.Competitor) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
