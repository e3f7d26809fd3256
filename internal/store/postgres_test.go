package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), testRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("failed", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing", model.RunStatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	resultJSON := []byte(`{"contacts_returned":3,"credits_charged":7,"stages":[]}`)
	mock.ExpectQuery(`SELECT id, request, status, result, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "request", "status", "result", "created_at", "updated_at"}).
			AddRow("run-1", []byte(`{"id":"req-1","account_id":"acct-1","role":"engineer","count":5}`), "complete", &resultJSON, now, now))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", run.Request.AccountID)
	require.NotNil(t, run.Result)
	assert.Equal(t, 3, run.Result.ContactsReturned)
	assert.Equal(t, 7, run.Result.CreditsCharged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, request, status, result, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListContactKeys(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT identity_key FROM contacts WHERE account_id = \$1`).
		WithArgs("acct-1").
		WillReturnRows(pgxmock.NewRows([]string{"identity_key"}).
			AddRow("key-a").
			AddRow("key-b"))

	keys, err := s.ListContactKeys(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "key-a")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeductCredits(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, account_id, idempotency_key, amount, created_at FROM credit_transactions`).
		WithArgs("req-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT balance FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(20))
	mock.ExpectExec(`UPDATE accounts SET balance = balance - \$1`).
		WithArgs(12, pgxmock.AnyArg(), "acct-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO credit_transactions`).
		WithArgs(pgxmock.AnyArg(), "acct-1", "req-1", 12, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	txn, err := s.DeductCredits(context.Background(), "acct-1", 12, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 12, txn.Amount)
	assert.Equal(t, "req-1", txn.IdempotencyKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeductCredits_Replay(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, account_id, idempotency_key, amount, created_at FROM credit_transactions`).
		WithArgs("req-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "account_id", "idempotency_key", "amount", "created_at"}).
			AddRow("tx-1", "acct-1", "req-1", 12, now))
	mock.ExpectRollback()

	txn, err := s.DeductCredits(context.Background(), "acct-1", 12, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", txn.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeductCredits_Insufficient(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, account_id, idempotency_key, amount, created_at FROM credit_transactions`).
		WithArgs("req-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT balance FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(5))
	mock.ExpectRollback()

	_, err := s.DeductCredits(context.Background(), "acct-1", 12, "req-1")
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}
