package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-cli/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	request    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_stages (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	started_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS contacts (
	account_id   TEXT NOT NULL,
	identity_key TEXT NOT NULL,
	email        TEXT,
	confidence   TEXT NOT NULL DEFAULT 'none',
	data         TEXT NOT NULL,
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (account_id, identity_key)
);

CREATE TABLE IF NOT EXISTS accounts (
	id         TEXT PRIMARY KEY,
	balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS credit_transactions (
	id              TEXT PRIMARY KEY,
	account_id      TEXT NOT NULL REFERENCES accounts(id),
	idempotency_key TEXT NOT NULL UNIQUE,
	amount          INTEGER NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);
CREATE INDEX IF NOT EXISTS idx_contacts_account ON contacts(account_id);
CREATE INDEX IF NOT EXISTS idx_credit_tx_account ON credit_transactions(account_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateAccount inserts an account row if one does not exist. Exposed
// for provisioning and tests; postgres accounts are provisioned by the
// billing system.
func (s *SQLiteStore) CreateAccount(ctx context.Context, accountID string, balance int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, balance, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		accountID, balance, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: create account")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, req model.SearchRequest) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal request")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, request, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(reqJSON), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Request:   req,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, request, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, request, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.AccountID != "" {
		query += ` AND json_extract(request, '$.account_id') = ?`
		args = append(args, filter.AccountID)
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
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_stages (id, run_id, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, runID, name, string(model.StageStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert stage for run %s", runID)
	}

	return &model.RunStage{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.StageStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE run_stages SET status = ?, result = ? WHERE id = ?`,
		string(result.Status), string(resultJSON), stageID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete stage %s", stageID)
	}
	return checkRowsAffected(res, "stage", stageID)
}

func (s *SQLiteStore) UpsertContacts(ctx context.Context, accountID string, contacts []model.EnrichedContact) error {
	if len(contacts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert contacts: begin tx")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, c := range contacts {
		if c.IdentityKey == "" {
			continue
		}
		data, err := json.Marshal(c)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal contact")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO contacts (account_id, identity_key, email, confidence, data, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (account_id, identity_key) DO UPDATE SET
			   email = excluded.email, confidence = excluded.confidence,
			   data = excluded.data, updated_at = excluded.updated_at`,
			accountID, c.IdentityKey, c.Email, string(c.Confidence), string(data), now,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: upsert contact")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: upsert contacts: commit")
}

func (s *SQLiteStore) ListContactKeys(ctx context.Context, accountID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity_key FROM contacts WHERE account_id = ?`,
		accountID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contact keys")
	}
	defer rows.Close()

	keys := map[string]struct{}{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact key")
		}
		keys[key] = struct{}{}
	}
	return keys, eris.Wrap(rows.Err(), "sqlite: list contact keys iterate")
}

func (s *SQLiteStore) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	var a model.Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, balance FROM accounts WHERE id = ?`,
		accountID,
	).Scan(&a.ID, &a.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("account not found: %s", accountID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get account %s", accountID)
	}
	return &a, nil
}

func (s *SQLiteStore) DeductCredits(ctx context.Context, accountID string, amount int, idempotencyKey string) (*model.CreditTransaction, error) {
	if amount < 0 {
		return nil, eris.Errorf("sqlite: negative deduction %d", amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: deduct: begin tx")
	}
	defer tx.Rollback()

	var existing model.CreditTransaction
	err = tx.QueryRowContext(ctx,
		`SELECT id, account_id, idempotency_key, amount, created_at FROM credit_transactions WHERE idempotency_key = ?`,
		idempotencyKey,
	).Scan(&existing.ID, &existing.AccountID, &existing.IdempotencyKey, &existing.Amount, &existing.CreatedAt)
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(err, "sqlite: deduct: check idempotency key")
	}

	var balance int
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = ?`,
		accountID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("account not found: %s", accountID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: deduct: read balance")
	}
	if balance < amount {
		return nil, ErrInsufficientFunds
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance - ?, updated_at = ? WHERE id = ?`,
		amount, now, accountID,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: deduct: update balance")
	}

	txn := model.CreditTransaction{
		ID:             uuid.New().String(),
		AccountID:      accountID,
		IdempotencyKey: idempotencyKey,
		Amount:         amount,
		CreatedAt:      now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, account_id, idempotency_key, amount, created_at) VALUES (?, ?, ?, ?, ?)`,
		txn.ID, txn.AccountID, txn.IdempotencyKey, txn.Amount, txn.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: deduct: insert transaction")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: deduct: commit tx")
	}
	return &txn, nil
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

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var reqJSON string
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &reqJSON, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(reqJSON), &r.Request); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal request")
	}
	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}
