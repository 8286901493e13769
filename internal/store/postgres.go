package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_case":            `INSERT INTO cases (id, record, status, current_step, sender, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"update_case":            `UPDATE cases SET record = $1, status = $2, current_step = $3, updated_at = $4 WHERE id = $5`,
	"get_case":               `SELECT record FROM cases WHERE id = $1`,
	"get_cached_signals":     `SELECT signals FROM signal_cache WHERE company = $1 AND expires_at > now() ORDER BY cached_at DESC LIMIT 1`,
	"set_cached_signals":     `INSERT INTO signal_cache (id, company, signals, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (company) DO UPDATE SET signals = $3, cached_at = $4, expires_at = $5`,
	"delete_expired_signals": `DELETE FROM signal_cache WHERE expires_at <= now()`,
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

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS cases (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	record       JSONB NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	current_step TEXT,
	sender       TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS signal_cache (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	company    TEXT NOT NULL UNIQUE,
	signals    JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status);
CREATE INDEX IF NOT EXISTS idx_cases_sender ON cases(sender);
CREATE INDEX IF NOT EXISTS idx_signal_cache_company ON signal_cache(company);
CREATE INDEX IF NOT EXISTS idx_signal_cache_expires_at ON signal_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateCase(ctx context.Context, rec *model.CaseRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = model.CaseStatusPending
	}

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal case")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO cases (id, record, status, current_step, sender, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, recordJSON, string(rec.Status), string(rec.CurrentStep), rec.Sender, now, now,
	)
	return eris.Wrap(err, "postgres: insert case")
}

func (s *PostgresStore) UpdateCase(ctx context.Context, rec *model.CaseRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal case")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE cases SET record = $1, status = $2, current_step = $3, updated_at = $4 WHERE id = $5`,
		recordJSON, string(rec.Status), string(rec.CurrentStep), rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update case %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("case not found: %s", rec.ID)
	}
	return nil
}

func (s *PostgresStore) GetCase(ctx context.Context, caseID string) (*model.CaseRecord, error) {
	var recordJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM cases WHERE id = $1`,
		caseID,
	).Scan(&recordJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("case not found: %s", caseID)
		}
		return nil, eris.Wrapf(err, "postgres: get case %s", caseID)
	}

	var rec model.CaseRecord
	if err := json.Unmarshal(recordJSON, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal case")
	}
	return &rec, nil
}

func (s *PostgresStore) ListCases(ctx context.Context, filter CaseFilter) ([]model.CaseRecord, error) {
	query := `SELECT record FROM cases WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Sender != "" {
		query += fmt.Sprintf(` AND sender = $%d`, argIdx)
		args = append(args, filter.Sender)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cases")
	}
	defer rows.Close()

	var cases []model.CaseRecord
	for rows.Next() {
		var recordJSON []byte
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan case")
		}
		var rec model.CaseRecord
		if err := json.Unmarshal(recordJSON, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal case")
		}
		cases = append(cases, rec)
	}
	return cases, eris.Wrap(rows.Err(), "postgres: list cases iterate")
}

func (s *PostgresStore) GetCachedSignals(ctx context.Context, companyName string) ([]model.CompanySignal, error) {
	var signalsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT signals FROM signal_cache
		 WHERE company = $1 AND expires_at > now()
		 ORDER BY cached_at DESC LIMIT 1`,
		companyName,
	).Scan(&signalsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached signals")
	}

	var signals []model.CompanySignal
	if err := json.Unmarshal(signalsJSON, &signals); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached signals")
	}
	return signals, nil
}

func (s *PostgresStore) SetCachedSignals(ctx context.Context, companyName string, signals []model.CompanySignal, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	signalsJSON, err := json.Marshal(signals)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal signals")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO signal_cache (id, company, signals, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (company) DO UPDATE SET signals = $3, cached_at = $4, expires_at = $5`,
		id, companyName, signalsJSON, now, expiresAt,
	)
	return eris.Wrap(err, "postgres: set cached signals")
}

func (s *PostgresStore) DeleteExpiredSignals(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM signal_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired signals")
	}
	return int(tag.RowsAffected()), nil
}
