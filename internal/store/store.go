// Package store persists runs, contacts and the credit ledger behind a
// driver-neutral interface with postgres and sqlite implementations.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// ErrInsufficientFunds is returned by DeductCredits when the account
// balance cannot cover the amount. No partial deduction is made.
var ErrInsufficientFunds = eris.New("store: insufficient credit balance")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status    model.RunStatus `json:"status,omitempty"`
	AccountID string          `json:"account_id,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the outreach pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, req model.SearchRequest) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error)
	CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error

	// Contacts
	UpsertContacts(ctx context.Context, accountID string, contacts []model.EnrichedContact) error
	ListContactKeys(ctx context.Context, accountID string) (map[string]struct{}, error)

	// Credit ledger
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
	DeductCredits(ctx context.Context, accountID string, amount int, idempotencyKey string) (*model.CreditTransaction, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
