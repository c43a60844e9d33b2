package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/brandforge/suggest-engine/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS requests (
	id          TEXT PRIMARY KEY,
	target      JSONB NOT NULL,
	kind        TEXT NOT NULL,
	country     TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	providers   JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS provider_results (
	id            TEXT PRIMARY KEY,
	request_id    TEXT NOT NULL REFERENCES requests(id),
	provider      TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'processing',
	raw_text      TEXT,
	payload       JSONB,
	error_message TEXT,
	latency_ms    BIGINT NOT NULL DEFAULT 0,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	cost_usd      DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(request_id, provider)
);

CREATE TABLE IF NOT EXISTS aggregated_results (
	fingerprint TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	request_id  TEXT NOT NULL,
	payload     JSONB NOT NULL,
	cost_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS competitors (
	brand_id   TEXT NOT NULL,
	domain     TEXT NOT NULL,
	data       JSONB NOT NULL,
	rank       INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (brand_id, domain)
);

CREATE INDEX IF NOT EXISTS idx_requests_fingerprint ON requests(fingerprint);
CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
CREATE INDEX IF NOT EXISTS idx_provider_results_request_id ON provider_results(request_id);
CREATE INDEX IF NOT EXISTS idx_competitors_brand_id ON competitors(brand_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRequest(ctx context.Context, req *model.Request) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = model.RequestPending
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	targetJSON, err := json.Marshal(req.Target)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal target")
	}
	providersJSON, err := json.Marshal(req.Providers)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal providers")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO requests (id, target, kind, country, fingerprint, status, providers, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID, targetJSON, string(req.Kind), req.Country, req.Fingerprint,
		string(req.Status), providersJSON, now, now,
	)
	return eris.Wrap(err, "postgres: insert request")
}

func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, target, kind, country, fingerprint, status, providers, created_at, updated_at
		 FROM requests WHERE id = $1`, id)
	req, err := scanPGRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("request not found: %s", id)
	}
	return req, err
}

func (s *PostgresStore) GetRequestByFingerprint(ctx context.Context, fingerprint string) (*model.Request, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, target, kind, country, fingerprint, status, providers, created_at, updated_at
		 FROM requests WHERE fingerprint = $1 ORDER BY created_at DESC LIMIT 1`, fingerprint)
	req, err := scanPGRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return req, err
}

func (s *PostgresStore) UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE requests SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update request status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("request not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListRequests(ctx context.Context, filter RequestFilter) ([]model.Request, error) {
	query := `SELECT id, target, kind, country, fingerprint, status, providers, created_at, updated_at
		 FROM requests WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.Kind != "" {
		query += ` AND kind = ` + arg(string(filter.Kind))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list requests")
	}
	defer rows.Close()

	var reqs []model.Request
	for rows.Next() {
		r, err := scanPGRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *r)
	}
	return reqs, eris.Wrap(rows.Err(), "postgres: list requests iterate")
}

func (s *PostgresStore) CreateProviderResult(ctx context.Context, res *model.ProviderResult) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if res.Status == "" {
		res.Status = model.ResultProcessing
	}
	res.CreatedAt = time.Now().UTC()

	payloadJSON, err := json.Marshal(res.Payload)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal payload")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO provider_results
		 (id, request_id, provider, status, raw_text, payload, error_message, latency_ms, input_tokens, output_tokens, cost_usd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		res.ID, res.RequestID, res.Provider, string(res.Status), res.RawText, payloadJSON,
		res.ErrorMessage, res.LatencyMS, res.Usage.InputTokens, res.Usage.OutputTokens, res.CostUSD, res.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert provider result for %s", res.RequestID)
}

func (s *PostgresStore) UpdateProviderResult(ctx context.Context, res *model.ProviderResult) error {
	payloadJSON, err := json.Marshal(res.Payload)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal payload")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE provider_results
		 SET status = $1, raw_text = $2, payload = $3, error_message = $4, latency_ms = $5, input_tokens = $6, output_tokens = $7, cost_usd = $8
		 WHERE id = $9 AND status = $10`,
		string(res.Status), res.RawText, payloadJSON, res.ErrorMessage,
		res.LatencyMS, res.Usage.InputTokens, res.Usage.OutputTokens, res.CostUSD,
		res.ID, string(model.ResultProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update provider result %s", res.ID)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := s.pool.QueryRow(ctx,
			`SELECT status FROM provider_results WHERE id = $1`, res.ID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Errorf("provider result not found: %s", res.ID)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: check provider result %s", res.ID)
		}
		return ErrResultSettled
	}
	return nil
}

func (s *PostgresStore) ListProviderResults(ctx context.Context, requestID string) ([]model.ProviderResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, request_id, provider, status, raw_text, payload, error_message, latency_ms, input_tokens, output_tokens, cost_usd, created_at
		 FROM provider_results WHERE request_id = $1 ORDER BY created_at`, requestID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list provider results %s", requestID)
	}
	defer rows.Close()

	var results []model.ProviderResult
	for rows.Next() {
		var r model.ProviderResult
		var rawText, errMsg *string
		var payloadJSON []byte
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Provider, &r.Status, &rawText, &payloadJSON,
			&errMsg, &r.LatencyMS, &r.Usage.InputTokens, &r.Usage.OutputTokens, &r.CostUSD, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider result")
		}
		if rawText != nil {
			r.RawText = *rawText
		}
		if errMsg != nil {
			r.ErrorMessage = *errMsg
		}
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &r.Payload); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal payload")
			}
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: list provider results iterate")
}

func (s *PostgresStore) GetAggregated(ctx context.Context, fingerprint string) (*model.AggregatedResult, error) {
	var payloadJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM aggregated_results WHERE fingerprint = $1`, fingerprint,
	).Scan(&payloadJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get aggregated")
	}

	var agg model.AggregatedResult
	if err := json.Unmarshal(payloadJSON, &agg); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal aggregated")
	}
	return &agg, nil
}

func (s *PostgresStore) UpsertAggregated(ctx context.Context, result *model.AggregatedResult) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	payloadJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal aggregated")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO aggregated_results (fingerprint, kind, request_id, payload, cost_usd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (fingerprint) DO UPDATE SET kind = $2, request_id = $3, payload = $4, cost_usd = $5, created_at = $6`,
		result.Fingerprint, string(result.Kind), result.RequestID, payloadJSON, result.CostUSD, result.CreatedAt,
	)
	return eris.Wrap(err, "postgres: upsert aggregated")
}

func (s *PostgresStore) DeleteAggregated(ctx context.Context, fingerprint string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM aggregated_results WHERE fingerprint = $1`, fingerprint)
	return eris.Wrap(err, "postgres: delete aggregated")
}

func (s *PostgresStore) ListCompetitors(ctx context.Context, brandID string) ([]model.Competitor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM competitors WHERE brand_id = $1 ORDER BY rank`, brandID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list competitors %s", brandID)
	}
	defer rows.Close()

	var comps []model.Competitor
	for rows.Next() {
		var dataJSON []byte
		if err := rows.Scan(&dataJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan competitor")
		}
		var c model.Competitor
		if err := json.Unmarshal(dataJSON, &c); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal competitor")
		}
		comps = append(comps, c)
	}
	return comps, eris.Wrap(rows.Err(), "postgres: list competitors iterate")
}

func (s *PostgresStore) UpsertCompetitors(ctx context.Context, brandID string, competitors []model.Competitor) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, c := range competitors {
		dataJSON, err := json.Marshal(c)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal competitor")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO competitors (brand_id, domain, data, rank, updated_at) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (brand_id, domain) DO UPDATE SET data = $3, rank = $4, updated_at = $5`,
			brandID, c.Domain, dataJSON, c.Rank, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert competitor %s", c.Domain)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit competitors")
}

func scanPGRequest(row pgx.Row) (*model.Request, error) {
	var r model.Request
	var targetJSON, providersJSON []byte

	err := row.Scan(&r.ID, &targetJSON, &r.Kind, &r.Country, &r.Fingerprint, &r.Status, &providersJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan request")
	}

	if err := json.Unmarshal(targetJSON, &r.Target); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal target")
	}
	if err := json.Unmarshal(providersJSON, &r.Providers); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal providers")
	}
	return &r, nil
}
