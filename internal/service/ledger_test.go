package service

import (
	"context"
	"testing"
	"time"

	"simmarket/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositAndWithdraw(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	user := env.newUser(t, model.RoleBuyer, 1000)

	resp, err := env.svc.Ledger.Deposit(ctx, user.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), resp.WalletBalance)
	assert.Equal(t, int64(1000), resp.Transaction.BalanceBefore)
	assert.Equal(t, int64(1500), resp.Transaction.BalanceAfter)
	assert.Equal(t, env.clock.Now(), resp.Transaction.CreatedAt)

	resp, err = env.svc.Ledger.Withdraw(ctx, user.ID, 1500)
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.WalletBalance)
	assert.Equal(t, int64(-1500), resp.Transaction.Amount)

	_, err = env.svc.Ledger.Withdraw(ctx, user.ID, 1)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = env.svc.Ledger.Deposit(ctx, user.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.svc.Ledger.Deposit(ctx, 9999, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyTransactionKindSign(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	user := env.newUser(t, model.RoleBuyer, 1000)

	cases := []struct {
		kind   string
		amount int64
	}{
		{model.TransactionKindDeposit, -10},
		{model.TransactionKindSale, -10},
		{model.TransactionKindWithdrawal, 10},
		{model.TransactionKindPurchase, 10},
		{model.TransactionKindDeposit, 0},
		{"gift", 10},
	}
	for _, tc := range cases {
		_, err := env.svc.Ledger.ApplyTransaction(ctx, &TransactionRequest{
			UserID: user.ID,
			Amount: tc.amount,
			Kind:   tc.kind,
		})
		assert.ErrorIs(t, err, ErrInvalidRequest, "%s %d", tc.kind, tc.amount)
	}

	assert.Equal(t, int64(1000), env.reload(t, user.ID).WalletBalance)
	assert.Len(t, env.store.Transactions(user.ID), 1)
}

func TestApplyTransactionDoesNotTouchBlocked(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	seller := env.newUser(t, model.RoleSeller, 0)
	user := env.newUser(t, model.RoleBuyer, 1000)
	auction := env.seedAuction(t, seller.ID, 0, time.Hour)

	_, err := env.bid(auction.ID, user.ID, 800)
	require.NoError(t, err)

	// 冻结资金不可花费
	_, err = env.svc.Ledger.Withdraw(ctx, user.ID, 300)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	resp, err := env.svc.Ledger.Withdraw(ctx, user.ID, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(800), resp.BlockedBalance)
	assert.Equal(t, int64(1000), resp.Transaction.BalanceBefore)
	assert.Equal(t, int64(800), resp.Transaction.BalanceAfter)
}

func TestLedgerWritesTransactionEvent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	user := env.newUser(t, model.RoleBuyer, 0)

	resp, err := env.svc.Ledger.Deposit(ctx, user.ID, 700)
	require.NoError(t, err)

	msgs, err := env.store.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.EventTransactionRecorded, msgs[0].EventType)
	assert.Equal(t, resp.Transaction.TransactionNo, msgs[0].MessageKey)
	assert.Contains(t, msgs[0].Payload, `"amount":700`)
}
