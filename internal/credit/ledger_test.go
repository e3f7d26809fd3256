package credit

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

type stubAccounts struct {
	account   *model.Account
	getErr    error
	deductErr error

	deductions []deduction
	replay     *model.CreditTransaction
}

type deduction struct {
	accountID string
	amount    int
	key       string
}

func (s *stubAccounts) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.account, nil
}

func (s *stubAccounts) DeductCredits(ctx context.Context, accountID string, amount int, key string) (*model.CreditTransaction, error) {
	if s.deductErr != nil {
		return nil, s.deductErr
	}
	s.deductions = append(s.deductions, deduction{accountID, amount, key})
	if s.replay != nil {
		return s.replay, nil
	}
	return &model.CreditTransaction{
		ID: "tx-1", AccountID: accountID, IdempotencyKey: key, Amount: amount,
	}, nil
}

func testRequest() model.SearchRequest {
	return model.SearchRequest{ID: "req-1", AccountID: "acct-1", Role: "vp sales", Count: 5}
}

func TestCheckBalance(t *testing.T) {
	// Default rates quote 3 credits per contact (contact + verified + draft).
	ledger := New(&stubAccounts{account: &model.Account{ID: "acct-1", Balance: 15}}, nil)
	assert.NoError(t, ledger.CheckBalance(context.Background(), "acct-1", 5))

	ledger = New(&stubAccounts{account: &model.Account{ID: "acct-1", Balance: 14}}, nil)
	err := ledger.CheckBalance(context.Background(), "acct-1", 5)
	assert.ErrorIs(t, err, ErrInsufficientCredit)
}

func TestCheckBalance_StoreError(t *testing.T) {
	ledger := New(&stubAccounts{getErr: eris.New("store: down")}, nil)
	err := ledger.CheckBalance(context.Background(), "acct-1", 5)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInsufficientCredit))
}

func TestCharge_ActualDeliveredWork(t *testing.T) {
	accounts := &stubAccounts{}
	ledger := New(accounts, cost.NewCalculator(cost.Rates{
		Credits: cost.CreditRates{PerContact: 2, PerVerifiedEmail: 1, PerDraft: 3},
	}))

	charged, err := ledger.Charge(context.Background(), testRequest(), 5, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 5*2+3*1+4*3, charged)

	require.Len(t, accounts.deductions, 1)
	assert.Equal(t, "acct-1", accounts.deductions[0].accountID)
	// The request id is the idempotency key.
	assert.Equal(t, "req-1", accounts.deductions[0].key)
}

func TestCharge_ZeroAmountSkipsLedger(t *testing.T) {
	accounts := &stubAccounts{}
	ledger := New(accounts, nil)

	charged, err := ledger.Charge(context.Background(), testRequest(), 0, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, charged)
	assert.Empty(t, accounts.deductions)
}

func TestCharge_InsufficientFundsMapped(t *testing.T) {
	accounts := &stubAccounts{deductErr: store.ErrInsufficientFunds}
	ledger := New(accounts, nil)

	charged, err := ledger.Charge(context.Background(), testRequest(), 5, 5, 5)
	assert.Zero(t, charged)
	assert.ErrorIs(t, err, ErrInsufficientCredit)
}

func TestCharge_ReplayReturnsOriginalAmount(t *testing.T) {
	accounts := &stubAccounts{replay: &model.CreditTransaction{
		ID: "tx-0", AccountID: "acct-1", IdempotencyKey: "req-1", Amount: 9,
	}}
	ledger := New(accounts, nil)

	charged, err := ledger.Charge(context.Background(), testRequest(), 5, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, 9, charged)
}

func TestQuote(t *testing.T) {
	ledger := New(&stubAccounts{}, cost.NewCalculator(cost.Rates{
		Credits: cost.CreditRates{PerContact: 1, PerVerifiedEmail: 1, PerDraft: 1},
	}))
	assert.Equal(t, 15, ledger.Quote(5))
}
