package service

import (
	"context"
	"testing"

	"simmarket/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserBooksInitialBalance(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	user, err := env.svc.Account.CreateUser(ctx, &CreateUserRequest{Name: "sara", Role: model.RoleBuyer, InitialBalance: 1200})
	require.NoError(t, err)
	assert.Equal(t, int64(1200), user.WalletBalance)

	resp, err := env.svc.Account.ListTransactions(ctx, user.ID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), resp.Total)
	assert.Equal(t, model.TransactionKindDeposit, resp.List[0].Kind)
	assert.Equal(t, int64(1200), resp.List[0].Amount)

	empty, err := env.svc.Account.CreateUser(ctx, &CreateUserRequest{Name: "reza", Role: model.RoleSeller})
	require.NoError(t, err)
	assert.Empty(t, env.store.Transactions(empty.ID))
}

func TestCreateUserValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.svc.Account.CreateUser(ctx, &CreateUserRequest{Name: "x", Role: "guest"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.svc.Account.CreateUser(ctx, &CreateUserRequest{Name: " ", Role: model.RoleBuyer})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.svc.Account.CreateUser(ctx, &CreateUserRequest{Name: "x", Role: model.RoleBuyer, InitialBalance: -1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGetUserNotFound(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.Account.GetUser(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.Account.ListTransactions(context.Background(), 42, 1, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUsersAdminOnly(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	admin := env.newUser(t, model.RoleAdmin, 0)
	buyer := env.newUser(t, model.RoleBuyer, 500)
	env.newUser(t, model.RoleSeller, 0)

	_, err := env.svc.Account.ListUsers(ctx, buyer.ID, 1, 10)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = env.svc.Account.ListUsers(ctx, 404, 1, 10)
	assert.ErrorIs(t, err, ErrNotFound)

	resp, err := env.svc.Account.ListUsers(ctx, admin.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Total)
	require.Len(t, resp.List, 2)
	assert.Equal(t, admin.ID, resp.List[0].ID)
	assert.Equal(t, int64(500), resp.List[1].WalletBalance)

	resp, err = env.svc.Account.ListUsers(ctx, admin.ID, 2, 2)
	require.NoError(t, err)
	assert.Len(t, resp.List, 1)
}
