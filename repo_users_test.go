package ethauth_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ethauth"
)

func TestOpenDB_UnsupportedDriver(t *testing.T) {
	_, err := ethauth.OpenDB("mysql", "root@/db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestMigrate_SeedsRolesAndRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := ethauth.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())

	for _, roleType := range []string{ethauth.RoleTypeAuthenticated, ethauth.RoleTypePublic} {
		role, err := repo.Roles().FindByType(ctx, roleType)
		require.NoError(t, err)
		assert.Equal(t, roleType, role.Type)
	}

	_, err := repo.Roles().FindByType(ctx, "admin")
	assert.True(t, ethauth.IsNotFound(err))

	group, err := ethauth.Rollback(ctx, db)
	require.NoError(t, err)
	assert.False(t, group.IsZero())

	again, err := ethauth.Migrate(ctx, db)
	require.NoError(t, err)
	assert.False(t, again.IsZero())
}

func TestUsers_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	user := seedUser(t, repo, &ethauth.User{
		EthereumAddress: "0xDEF456",
		Username:        "dora",
		Email:           "Dora@Example.com",
		Nonce:           7,
	})

	assert.Equal(t, "0xdef456", user.EthereumAddress)
	assert.Equal(t, "dora@example.com", user.Email)
	assert.Equal(t, ethauth.ProviderLocal, user.Provider)
	require.NotNil(t, user.Role)
	assert.Equal(t, ethauth.RoleTypeAuthenticated, user.Role.Type)

	found, err := repo.Users().FindOne(ctx, ethauth.UserQuery{EthereumAddress: "0xDeF456"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	found, err = repo.Users().FindOne(ctx, ethauth.UserQuery{Email: "DORA@example.com", Provider: ethauth.ProviderLocal})
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = repo.Users().FindOne(ctx, ethauth.UserQuery{Email: "dora@example.com", Provider: "github"})
	assert.True(t, ethauth.IsNotFound(err))

	_, err = repo.Users().FindOne(ctx, ethauth.UserQuery{})
	assert.Error(t, err)
	assert.False(t, ethauth.IsNotFound(err))
}

func TestUsers_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedUser(t, repo, &ethauth.User{EthereumAddress: "0xabc", Username: "first"})

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := repo.Users().CreateTx(ctx, tx, &ethauth.User{EthereumAddress: "0xABC", Username: "second"})
		return err
	})
	require.Error(t, err)
	assert.True(t, ethauth.IsDuplicateRecord(err))
}

func TestUsers_UpdateTx(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := seedUser(t, repo, &ethauth.User{EthereumAddress: "0xabc", Username: "upd"})

	token := "confirm-me"
	blocked := true
	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		updated, err := repo.Users().UpdateTx(ctx, tx, user.ID, ethauth.UserUpdate{
			ConfirmationToken: &token,
			Blocked:           &blocked,
		})
		if err != nil {
			return err
		}
		assert.True(t, updated.Blocked)
		require.NotNil(t, updated.ConfirmationToken)
		assert.Equal(t, token, *updated.ConfirmationToken)
		return nil
	})
	require.NoError(t, err)

	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := repo.Users().UpdateTx(ctx, tx, user.ID, ethauth.UserUpdate{ClearConfirmationToken: true})
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, reload(t, repo, user.ID).ConfirmationToken)

	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := repo.Users().UpdateTx(ctx, tx, uuid.New(), ethauth.UserUpdate{Blocked: &blocked})
		return err
	})
	assert.True(t, ethauth.IsNotFound(err))
}

func TestUsers_RotateNonceTxIsConditional(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	user := seedUser(t, repo, &ethauth.User{EthereumAddress: "0xabc", Username: "nonce", Nonce: 42})

	var first, second bool
	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if first, err = repo.Users().RotateNonceTx(ctx, tx, user.ID, 42, 43); err != nil {
			return err
		}
		second, err = repo.Users().RotateNonceTx(ctx, tx, user.ID, 42, 44)
		return err
	})
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, int64(43), reload(t, repo, user.ID).Nonce)
}

func TestUsers_ConsumeResetTokenTx(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	hash := ethauth.HashResetCode("secret-code")
	user := seedUser(t, repo, &ethauth.User{
		EthereumAddress:    "0xabc",
		Username:           "reset",
		Email:              "reset@example.com",
		ResetPasswordToken: &hash,
	})
	assert.True(t, user.HasResetPasswordToken())

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		consumed, err := repo.Users().ConsumeResetTokenTx(ctx, tx, hash, "bcrypt-hash")
		if err != nil {
			return err
		}
		assert.Equal(t, user.ID, consumed.ID)
		assert.False(t, consumed.HasResetPasswordToken())
		return nil
	})
	require.NoError(t, err)

	stored := reload(t, repo, user.ID)
	assert.Equal(t, "bcrypt-hash", stored.PasswordHash)
	assert.Nil(t, stored.ResetPasswordToken)

	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := repo.Users().ConsumeResetTokenTx(ctx, tx, hash, "other")
		return err
	})
	assert.True(t, ethauth.IsNotFound(err))
}

func TestUser_Sanitize(t *testing.T) {
	token := "secret"
	user := &ethauth.User{
		ID:                 uuid.New(),
		EthereumAddress:    "0xabc",
		Username:           "alice",
		PasswordHash:       "hash",
		ResetPasswordToken: &token,
		ConfirmationToken:  &token,
		Role:               &ethauth.Role{ID: uuid.New(), Name: "Authenticated", Type: "authenticated"},
	}

	view := user.Sanitize()
	assert.Equal(t, user.ID.String(), view.ID)
	assert.Equal(t, "authenticated", view.Role.Type)

	var nilUser *ethauth.User
	assert.Nil(t, nilUser.Sanitize())
}
