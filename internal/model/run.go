package model

import "time"

// RunStatus represents the current state of an outreach run.
type RunStatus string

const (
	RunStatusQueued        RunStatus = "queued"
	RunStatusRetrieving    RunStatus = "retrieving"
	RunStatusEnriching     RunStatus = "enriching"
	RunStatusPersonalizing RunStatus = "personalizing"
	RunStatusDrafting      RunStatus = "drafting"
	RunStatusCharging      RunStatus = "charging"
	RunStatusComplete      RunStatus = "complete"
	RunStatusFailed        RunStatus = "failed"
)

// Run represents a single pipeline execution for a search request.
type Run struct {
	ID        string        `json:"id"`
	Request   SearchRequest `json:"request"`
	Status    RunStatus     `json:"status"`
	Result    *RunResult    `json:"result,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	ContactsRequested  int           `json:"contacts_requested"`
	ContactsReturned   int           `json:"contacts_returned"`
	DraftsCreated      int           `json:"drafts_created"`
	CreditsCharged     int           `json:"credits_charged"`
	InsufficientCredit bool          `json:"insufficient_credit,omitempty"`
	Stages             []StageResult `json:"stages"`
	Warnings           []Warning     `json:"warnings,omitempty"`
	Error              string        `json:"error,omitempty"`
}

// StageStatus represents the current state of a pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageResult holds the outcome of a pipeline stage.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RunStage represents a stage row within a run.
type RunStage struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    StageStatus  `json:"status"`
	Result    *StageResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// Account is a credit account row as read from the ledger.
type Account struct {
	ID      string `json:"id"`
	Balance int    `json:"balance"`
}

// CreditTransaction records one atomic deduction, keyed by the request id
// so a retried request never double-charges.
type CreditTransaction struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Amount         int       `json:"amount"`
	CreatedAt      time.Time `json:"created_at"`
}
