package ethauth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// CredentialResolver maps a login identifier to a user and enforces the
// account gates.
type CredentialResolver struct {
	users  UserStore
	logger Logger
}

// NewCredentialResolver returns a resolver backed by users
func NewCredentialResolver(users UserStore) *CredentialResolver {
	return &CredentialResolver{
		users:  users,
		logger: defLogger{},
	}
}

// WithLogger sets the logger
func (r *CredentialResolver) WithLogger(logger Logger) *CredentialResolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Resolve looks up the account for identifier under provider. An identifier
// matching the email grammar is looked up by email, anything else by
// Ethereum address. The gates run in order: not found, not confirmed (only
// when the policy requires confirmation), blocked.
func (r *CredentialResolver) Resolve(ctx context.Context, identifier, provider string, policy *Policy) (*User, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, NewFieldError(KindMissingField, IDIdentifierProvide,
			"Please provide your ethereum address, username or your e-mail.", "identifier")
	}

	if provider == "" {
		provider = ProviderLocal
	}

	query := UserQuery{Provider: provider}
	value, kind := ClassifyIdentifier(identifier)
	switch kind {
	case IdentifierEmail:
		query.Email = value
	default:
		query.EthereumAddress = value
	}

	user, err := r.users.FindOne(ctx, query)
	if err != nil {
		if IsNotFound(err) {
			return nil, errAccountNotFound()
		}
		r.logger.Error("resolve identifier lookup failed", "error", err)
		return nil, WrapDownstream(err, IDInternal, "failed to look up account")
	}

	if user == nil {
		return nil, errAccountNotFound()
	}

	if err := CheckAccountGates(user, policy); err != nil {
		return nil, err
	}

	return user, nil
}

// CheckAccountGates applies the confirmation and block gates to a user
// that was already found.
func CheckAccountGates(user *User, policy *Policy) error {
	if policy != nil && policy.Advanced.EmailConfirmation && !user.Confirmed {
		return errNotConfirmed()
	}

	if user.Blocked {
		return errBlocked()
	}

	return nil
}

// IsNotFound reports whether err means the record does not exist
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	return goerrors.IsNotFound(err)
}
