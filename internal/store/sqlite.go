package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/brandforge/suggest-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS requests (
	id          TEXT PRIMARY KEY,
	target      TEXT NOT NULL,
	kind        TEXT NOT NULL,
	country     TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	providers   TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS provider_results (
	id            TEXT PRIMARY KEY,
	request_id    TEXT NOT NULL REFERENCES requests(id),
	provider      TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'processing',
	raw_text      TEXT,
	payload       TEXT,
	error_message TEXT,
	latency_ms    INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(request_id, provider)
);

CREATE TABLE IF NOT EXISTS aggregated_results (
	fingerprint TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	request_id  TEXT NOT NULL,
	payload     TEXT NOT NULL,
	cost_usd    REAL NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS competitors (
	brand_id   TEXT NOT NULL,
	domain     TEXT NOT NULL,
	data       TEXT NOT NULL,
	rank       INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (brand_id, domain)
);

CREATE INDEX IF NOT EXISTS idx_requests_fingerprint ON requests(fingerprint);
CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
CREATE INDEX IF NOT EXISTS idx_provider_results_request_id ON provider_results(request_id);
CREATE INDEX IF NOT EXISTS idx_competitors_brand_id ON competitors(brand_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRequest(ctx context.Context, req *model.Request) error {
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
		return eris.Wrap(err, "sqlite: marshal target")
	}
	providersJSON, err := json.Marshal(req.Providers)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal providers")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO requests (id, target, kind, country, fingerprint, status, providers, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, string(targetJSON), string(req.Kind), req.Country, req.Fingerprint,
		string(req.Status), string(providersJSON), now, now,
	)
	return eris.Wrap(err, "sqlite: insert request")
}

func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, target, kind, country, fingerprint, status, providers, created_at, updated_at
		 FROM requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("request not found: %s", id)
	}
	return req, err
}

func (s *SQLiteStore) GetRequestByFingerprint(ctx context.Context, fingerprint string) (*model.Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, target, kind, country, fingerprint, status, providers, created_at, updated_at
		 FROM requests WHERE fingerprint = ? ORDER BY created_at DESC LIMIT 1`, fingerprint)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return req, err
}

func (s *SQLiteStore) UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE requests SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update request status %s", id)
	}
	return checkRowsAffected(res, "request", id)
}

func (s *SQLiteStore) ListRequests(ctx context.Context, filter RequestFilter) ([]model.Request, error) {
	query := `SELECT id, target, kind, country, fingerprint, status, providers, created_at, updated_at
		 FROM requests WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list requests")
	}
	defer rows.Close()

	var reqs []model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *r)
	}
	return reqs, eris.Wrap(rows.Err(), "sqlite: list requests iterate")
}

func (s *SQLiteStore) CreateProviderResult(ctx context.Context, res *model.ProviderResult) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if res.Status == "" {
		res.Status = model.ResultProcessing
	}
	res.CreatedAt = time.Now().UTC()

	payloadJSON, err := json.Marshal(res.Payload)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal payload")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO provider_results
		 (id, request_id, provider, status, raw_text, payload, error_message, latency_ms, input_tokens, output_tokens, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.RequestID, res.Provider, string(res.Status), res.RawText, string(payloadJSON),
		res.ErrorMessage, res.LatencyMS, res.Usage.InputTokens, res.Usage.OutputTokens, res.CostUSD, res.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert provider result for %s", res.RequestID)
}

func (s *SQLiteStore) UpdateProviderResult(ctx context.Context, res *model.ProviderResult) error {
	payloadJSON, err := json.Marshal(res.Payload)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal payload")
	}

	out, err := s.db.ExecContext(ctx,
		`UPDATE provider_results
		 SET status = ?, raw_text = ?, payload = ?, error_message = ?, latency_ms = ?, input_tokens = ?, output_tokens = ?, cost_usd = ?
		 WHERE id = ? AND status = ?`,
		string(res.Status), res.RawText, string(payloadJSON), res.ErrorMessage,
		res.LatencyMS, res.Usage.InputTokens, res.Usage.OutputTokens, res.CostUSD,
		res.ID, string(model.ResultProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update provider result %s", res.ID)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		var status string
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM provider_results WHERE id = ?`, res.ID).Scan(&status)
		if err == sql.ErrNoRows {
			return eris.Errorf("provider result not found: %s", res.ID)
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: check provider result %s", res.ID)
		}
		return ErrResultSettled
	}
	return nil
}

func (s *SQLiteStore) ListProviderResults(ctx context.Context, requestID string) ([]model.ProviderResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, provider, status, raw_text, payload, error_message, latency_ms, input_tokens, output_tokens, cost_usd, created_at
		 FROM provider_results WHERE request_id = ? ORDER BY created_at`, requestID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list provider results %s", requestID)
	}
	defer rows.Close()

	var results []model.ProviderResult
	for rows.Next() {
		var r model.ProviderResult
		var payloadJSON, rawText, errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Provider, &r.Status, &rawText, &payloadJSON,
			&errMsg, &r.LatencyMS, &r.Usage.InputTokens, &r.Usage.OutputTokens, &r.CostUSD, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provider result")
		}
		r.RawText = rawText.String
		r.ErrorMessage = errMsg.String
		if payloadJSON.Valid && payloadJSON.String != "" {
			if err := json.Unmarshal([]byte(payloadJSON.String), &r.Payload); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal payload")
			}
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: list provider results iterate")
}

func (s *SQLiteStore) GetAggregated(ctx context.Context, fingerprint string) (*model.AggregatedResult, error) {
	var payloadJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM aggregated_results WHERE fingerprint = ?`, fingerprint,
	).Scan(&payloadJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get aggregated")
	}

	var agg model.AggregatedResult
	if err := json.Unmarshal([]byte(payloadJSON), &agg); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal aggregated")
	}
	return &agg, nil
}

func (s *SQLiteStore) UpsertAggregated(ctx context.Context, result *model.AggregatedResult) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	payloadJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal aggregated")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO aggregated_results (fingerprint, kind, request_id, payload, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (fingerprint) DO UPDATE SET kind = ?, request_id = ?, payload = ?, cost_usd = ?, created_at = ?`,
		result.Fingerprint, string(result.Kind), result.RequestID, string(payloadJSON), result.CostUSD, result.CreatedAt,
		string(result.Kind), result.RequestID, string(payloadJSON), result.CostUSD, result.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: upsert aggregated")
}

func (s *SQLiteStore) DeleteAggregated(ctx context.Context, fingerprint string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM aggregated_results WHERE fingerprint = ?`, fingerprint)
	return eris.Wrap(err, "sqlite: delete aggregated")
}

func (s *SQLiteStore) ListCompetitors(ctx context.Context, brandID string) ([]model.Competitor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM competitors WHERE brand_id = ? ORDER BY rank`, brandID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list competitors %s", brandID)
	}
	defer rows.Close()

	var comps []model.Competitor
	for rows.Next() {
		var dataJSON string
		if err := rows.Scan(&dataJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan competitor")
		}
		var c model.Competitor
		if err := json.Unmarshal([]byte(dataJSON), &c); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal competitor")
		}
		comps = append(comps, c)
	}
	return comps, eris.Wrap(rows.Err(), "sqlite: list competitors iterate")
}

func (s *SQLiteStore) UpsertCompetitors(ctx context.Context, brandID string, competitors []model.Competitor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, c := range competitors {
		dataJSON, err := json.Marshal(c)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal competitor")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO competitors (brand_id, domain, data, rank, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (brand_id, domain) DO UPDATE SET data = ?, rank = ?, updated_at = ?`,
			brandID, c.Domain, string(dataJSON), c.Rank, now,
			string(dataJSON), c.Rank, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert competitor %s", c.Domain)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit competitors")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRequest(row scannable) (*model.Request, error) {
	var r model.Request
	var targetJSON, providersJSON string

	err := row.Scan(&r.ID, &targetJSON, &r.Kind, &r.Country, &r.Fingerprint, &r.Status, &providersJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan request")
	}

	if err := json.Unmarshal([]byte(targetJSON), &r.Target); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal target")
	}
	if err := json.Unmarshal([]byte(providersJSON), &r.Providers); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal providers")
	}
	return &r, nil
}
