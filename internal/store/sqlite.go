package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/atlas-specialty/underwrite-cli/internal/model"
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
CREATE TABLE IF NOT EXISTS cases (
	id           TEXT PRIMARY KEY,
	record       TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	current_step TEXT,
	sender       TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS signal_cache (
	id         TEXT PRIMARY KEY,
	company    TEXT NOT NULL,
	signals    TEXT NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status);
CREATE INDEX IF NOT EXISTS idx_cases_sender ON cases(sender);
CREATE INDEX IF NOT EXISTS idx_signal_cache_company ON signal_cache(company);
CREATE INDEX IF NOT EXISTS idx_signal_cache_expires_at ON signal_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateCase(ctx context.Context, rec *model.CaseRecord) error {
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
		return eris.Wrap(err, "sqlite: marshal case")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cases (id, record, status, current_step, sender, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(recordJSON), string(rec.Status), string(rec.CurrentStep), rec.Sender, now, now,
	)
	return eris.Wrap(err, "sqlite: insert case")
}

func (s *SQLiteStore) UpdateCase(ctx context.Context, rec *model.CaseRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal case")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE cases SET record = ?, status = ?, current_step = ?, updated_at = ? WHERE id = ?`,
		string(recordJSON), string(rec.Status), string(rec.CurrentStep), rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update case %s", rec.ID)
	}
	return checkRowsAffected(res, "case", rec.ID)
}

func (s *SQLiteStore) GetCase(ctx context.Context, caseID string) (*model.CaseRecord, error) {
	var recordJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM cases WHERE id = ?`,
		caseID,
	).Scan(&recordJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("case not found: %s", caseID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get case %s", caseID)
	}

	var rec model.CaseRecord
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal case")
	}
	return &rec, nil
}

func (s *SQLiteStore) ListCases(ctx context.Context, filter CaseFilter) ([]model.CaseRecord, error) {
	query := `SELECT record FROM cases WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Sender != "" {
		query += ` AND sender = ?`
		args = append(args, filter.Sender)
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
		return nil, eris.Wrap(err, "sqlite: list cases")
	}
	defer rows.Close()

	var cases []model.CaseRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan case")
		}
		var rec model.CaseRecord
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal case")
		}
		cases = append(cases, rec)
	}
	return cases, eris.Wrap(rows.Err(), "sqlite: list cases iterate")
}

func (s *SQLiteStore) GetCachedSignals(ctx context.Context, companyName string) ([]model.CompanySignal, error) {
	var signalsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT signals FROM signal_cache
		 WHERE company = ? AND expires_at > datetime('now')
		 ORDER BY cached_at DESC LIMIT 1`,
		companyName,
	).Scan(&signalsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached signals")
	}

	var signals []model.CompanySignal
	if err := json.Unmarshal([]byte(signalsJSON), &signals); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached signals")
	}
	return signals, nil
}

func (s *SQLiteStore) SetCachedSignals(ctx context.Context, companyName string, signals []model.CompanySignal, ttl time.Duration) error {
	id := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	signalsJSON, err := json.Marshal(signals)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal signals")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO signal_cache (id, company, signals, cached_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		id, companyName, string(signalsJSON), now, expiresAt,
	)
	return eris.Wrap(err, "sqlite: set cached signals")
}

func (s *SQLiteStore) DeleteExpiredSignals(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM signal_cache WHERE expires_at <= datetime('now')`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired signals")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

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
