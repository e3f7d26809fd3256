// Package credit turns pipeline output into an atomic, idempotent
// account charge. The charge is the last pipeline action; everything
// before it is free if the run dies early.
package credit

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// ErrInsufficientCredit means the account balance cannot cover the
// charge. The run's work is surfaced as an unpaid preview.
var ErrInsufficientCredit = eris.New("credit: insufficient balance")

// AccountStore is the slice of the store the ledger needs.
type AccountStore interface {
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
	DeductCredits(ctx context.Context, accountID string, amount int, idempotencyKey string) (*model.CreditTransaction, error)
}

// Ledger prices and charges pipeline runs.
type Ledger struct {
	store AccountStore
	calc  *cost.Calculator
}

// New creates a Ledger. A nil calculator uses the default rates.
func New(s AccountStore, calc *cost.Calculator) *Ledger {
	if calc == nil {
		calc = cost.NewCalculator(cost.DefaultRates())
	}
	return &Ledger{store: s, calc: calc}
}

// Quote returns the worst-case credit cost of a request for the given
// contact count.
func (l *Ledger) Quote(count int) int {
	return l.calc.Quote(count)
}

// CheckBalance verifies the account can cover the worst case for count
// contacts before any provider spend. Returns ErrInsufficientCredit
// when it cannot.
func (l *Ledger) CheckBalance(ctx context.Context, accountID string, count int) error {
	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return eris.Wrap(err, "credit: load account")
	}
	if quote := l.calc.Quote(count); account.Balance < quote {
		zap.L().Warn("credit: balance below quote",
			zap.String("account_id", accountID),
			zap.Int("balance", account.Balance),
			zap.Int("quote", quote),
		)
		return eris.Wrapf(ErrInsufficientCredit, "balance %d below quote %d", account.Balance, quote)
	}
	return nil
}

// Charge deducts the actual cost of the delivered work, keyed by the
// request id so a retried request never pays twice. A zero amount is a
// no-op. Returns ErrInsufficientCredit when the balance ran down since
// the precheck.
func (l *Ledger) Charge(ctx context.Context, req model.SearchRequest, contacts, verifiedEmails, drafts int) (int, error) {
	amount := l.calc.Request(contacts, verifiedEmails, drafts)
	if amount <= 0 {
		return 0, nil
	}

	tx, err := l.store.DeductCredits(ctx, req.AccountID, amount, req.ID)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			return 0, eris.Wrapf(ErrInsufficientCredit, "charge of %d failed", amount)
		}
		return 0, eris.Wrap(err, "credit: deduct")
	}

	// A replayed idempotency key returns the original transaction; its
	// amount is what the account actually paid.
	if tx.Amount != amount {
		zap.L().Info("credit: idempotent replay",
			zap.String("request_id", req.ID),
			zap.Int("computed", amount),
			zap.Int("charged", tx.Amount),
		)
	}

	zap.L().Info("credit: charged",
		zap.String("account_id", req.AccountID),
		zap.String("request_id", req.ID),
		zap.Int("amount", tx.Amount),
		zap.Int("contacts", contacts),
		zap.Int("verified_emails", verifiedEmails),
		zap.Int("drafts", drafts),
	)
	return tx.Amount, nil
}
