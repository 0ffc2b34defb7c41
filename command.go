package ethauth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// commandTimeout bounds every command transaction
const commandTimeout = time.Second * 10

// AuthResponse is returned by the flows that authenticate a user. JWT is
// empty when the account still has to confirm its email.
type AuthResponse struct {
	JWT  string    `json:"jwt,omitempty"`
	User *UserView `json:"user"`
}

// resolvePolicy returns given, or a fresh snapshot from store when the
// caller did not take one.
func resolvePolicy(ctx context.Context, store PolicyStore, given *Policy) (*Policy, error) {
	if given != nil {
		return given, nil
	}

	if store == nil {
		return nil, NewError(KindPolicyMisconfigured, IDInternal, "policy store is not configured")
	}

	policy, err := store.Snapshot(ctx)
	if err != nil {
		return nil, WrapDownstream(err, IDInternal, "failed to load auth settings")
	}

	if policy == nil {
		return nil, NewError(KindPolicyMisconfigured, IDInternal, "auth settings are empty")
	}

	return policy, nil
}

// cancelled wraps a done context the way every command reports it
func cancelled(ctx context.Context, operation string) error {
	return goerrors.Wrap(
		ctx.Err(),
		goerrors.CategoryOperation,
		"context cancelled during "+operation,
	)
}

// txError keeps tagged errors and reports anything else as a downstream
// failure.
func txError(err error, message string) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return richErr
	}

	return WrapDownstream(err, IDInternal, message)
}

func issueToken(tokens TokenIssuer, user *User) (string, error) {
	token, err := tokens.Issue(ClaimsForUser(user))
	if err != nil {
		return "", WrapDownstream(err, IDInternal, "failed to issue token")
	}
	return token, nil
}
