package ethauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RegistrationGuard enforces the uniqueness rules for new accounts and
// initializes their nonce and role.
type RegistrationGuard struct {
	users  UserStore
	roles  RoleStore
	nonces *NonceManager
	logger Logger
}

// NewRegistrationGuard returns a guard
func NewRegistrationGuard(users UserStore, roles RoleStore, nonces *NonceManager) *RegistrationGuard {
	return &RegistrationGuard{
		users:  users,
		roles:  roles,
		nonces: nonces,
		logger: defLogger{},
	}
}

// WithLogger sets the logger
func (g *RegistrationGuard) WithLogger(logger Logger) *RegistrationGuard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// Register validates candidate against the existing accounts and creates
// the user inside tx. Checks short circuit in order: address, username,
// email.
func (g *RegistrationGuard) Register(ctx context.Context, tx bun.IDB, candidate RegisterUserMessage, policy *Policy) (*User, error) {
	if policy == nil {
		policy = DefaultPolicy()
	}

	address := NormalizeAddress(candidate.EthereumAddress)
	if address == "" {
		return nil, NewFieldError(KindMissingField, IDAddressProvide,
			"Please provide your Ethereum Address.", "ethereumAddress")
	}

	username := strings.TrimSpace(candidate.Username)
	if username == "" {
		return nil, NewFieldError(KindMissingField, IDUsernameProvide,
			"Please provide your username.", "username")
	}

	email := strings.TrimSpace(candidate.Email)
	if IsEmail(email) {
		email = NormalizeEmail(email)
	}

	if taken, err := g.exists(ctx, tx, UserQuery{EthereumAddress: address}); err != nil {
		return nil, err
	} else if taken != nil {
		return nil, errAddressTaken()
	}

	if taken, err := g.exists(ctx, tx, UserQuery{Username: username}); err != nil {
		return nil, err
	} else if taken != nil {
		return nil, errUsernameTaken()
	}

	if email != "" {
		taken, err := g.exists(ctx, tx, UserQuery{Email: email})
		if err != nil {
			return nil, err
		}
		if taken != nil && (taken.Provider == ProviderLocal || policy.Advanced.UniqueEmail) {
			return nil, errEmailTaken()
		}
	}

	role, err := g.roles.FindByTypeTx(ctx, tx, policy.Advanced.DefaultRole)
	if err != nil {
		if IsNotFound(err) {
			return nil, errDefaultRoleMissing()
		}
		return nil, WrapDownstream(err, IDInternal, "failed to look up default role")
	}
	if role == nil {
		return nil, errDefaultRoleMissing()
	}

	nonce, err := g.nonces.Issue()
	if err != nil {
		return nil, err
	}

	user := &User{
		EthereumAddress: address,
		Username:        username,
		Email:           email,
		Provider:        ProviderLocal,
		Nonce:           nonce,
		Confirmed:       !policy.Advanced.EmailConfirmation,
		RoleID:          role.ID,
	}

	if user.ID, err = newUserID(address, candidate.UseHashid); err != nil {
		return nil, WrapDownstream(err, IDInternal, "failed to generate user id")
	}

	if policy.Advanced.EmailConfirmation {
		token, err := randomToken(20)
		if err != nil {
			return nil, WrapDownstream(err, IDInternal, "failed to generate confirmation token")
		}
		user.ConfirmationToken = &token
	}

	created, err := g.users.CreateTx(ctx, tx, user)
	if err != nil {
		if IsDuplicateRecord(err) {
			return nil, errAddressOrUsernameTaken()
		}
		g.logger.Error("register create user failed", "error", err)
		return nil, WrapDownstream(err, IDInternal, "failed to create user")
	}

	created.Role = role

	return created, nil
}

func (g *RegistrationGuard) exists(ctx context.Context, tx bun.IDB, query UserQuery) (*User, error) {
	user, err := g.users.FindOneTx(ctx, tx, query)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, WrapDownstream(err, IDInternal, "failed to check existing accounts")
	}
	return user, nil
}

// newUserID derives a stable id from the address when useHashid is set
func newUserID(address string, useHashid bool) (uuid.UUID, error) {
	if useHashid {
		return hashid.NewUUID(address)
	}
	return uuid.New(), nil
}

func randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
