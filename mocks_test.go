package ethauth_test

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ethauth"
)

// MockRepositoryManager implements ethauth.RepositoryManager
type MockRepositoryManager struct {
	mock.Mock
}

// RunInTx runs f with a zero transaction unless an error was configured
func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx, opts, f)
	if err := args.Error(0); err != nil {
		return err
	}
	var tx bun.Tx
	return f(ctx, tx)
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) Users() ethauth.UserStore {
	args := m.Called()
	return args.Get(0).(ethauth.UserStore)
}

func (m *MockRepositoryManager) Roles() ethauth.RoleStore {
	args := m.Called()
	return args.Get(0).(ethauth.RoleStore)
}

// MockUsers implements ethauth.UserStore
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) FindOne(ctx context.Context, query ethauth.UserQuery) (*ethauth.User, error) {
	args := m.Called(ctx, query)
	user, _ := args.Get(0).(*ethauth.User)
	return user, args.Error(1)
}

func (m *MockUsers) FindOneTx(ctx context.Context, tx bun.IDB, query ethauth.UserQuery) (*ethauth.User, error) {
	args := m.Called(ctx, tx, query)
	user, _ := args.Get(0).(*ethauth.User)
	return user, args.Error(1)
}

func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, user *ethauth.User) (*ethauth.User, error) {
	args := m.Called(ctx, tx, user)
	created, _ := args.Get(0).(*ethauth.User)
	return created, args.Error(1)
}

func (m *MockUsers) UpdateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, update ethauth.UserUpdate) (*ethauth.User, error) {
	args := m.Called(ctx, tx, id, update)
	user, _ := args.Get(0).(*ethauth.User)
	return user, args.Error(1)
}

func (m *MockUsers) RotateNonceTx(ctx context.Context, tx bun.IDB, id uuid.UUID, prev, next int64) (bool, error) {
	args := m.Called(ctx, tx, id, prev, next)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, tokenHash, passwordHash string) (*ethauth.User, error) {
	args := m.Called(ctx, tx, tokenHash, passwordHash)
	user, _ := args.Get(0).(*ethauth.User)
	return user, args.Error(1)
}

// MockRoles implements ethauth.RoleStore
type MockRoles struct {
	mock.Mock
}

func (m *MockRoles) FindByType(ctx context.Context, roleType string) (*ethauth.Role, error) {
	args := m.Called(ctx, roleType)
	role, _ := args.Get(0).(*ethauth.Role)
	return role, args.Error(1)
}

func (m *MockRoles) FindByTypeTx(ctx context.Context, tx bun.IDB, roleType string) (*ethauth.Role, error) {
	args := m.Called(ctx, tx, roleType)
	role, _ := args.Get(0).(*ethauth.Role)
	return role, args.Error(1)
}

// MockActivitySink implements ethauth.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event ethauth.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockTokenIssuer implements ethauth.TokenIssuer
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) Issue(claims ethauth.TokenClaims) (string, error) {
	args := m.Called(claims)
	return args.String(0), args.Error(1)
}

// MockConnector implements ethauth.ProviderConnector
type MockConnector struct {
	mock.Mock
}

func (m *MockConnector) Connect(ctx context.Context, provider string, query map[string]string, policy *ethauth.Policy) (*ethauth.User, error) {
	args := m.Called(ctx, provider, query, policy)
	user, _ := args.Get(0).(*ethauth.User)
	return user, args.Error(1)
}

func (m *MockConnector) RedirectURL(ctx context.Context, provider string, settings ethauth.ProviderSettings, callback string) (string, error) {
	args := m.Called(ctx, provider, settings, callback)
	return args.String(0), args.Error(1)
}
