// Package grant connects third-party OAuth providers to the local account
// store. Providers are configured from the "grant" section of the auth
// policy.
package grant

import (
	"context"
	"fmt"

	"github.com/goliatone/go-ethauth"
)

// Provider defines the interface for OAuth2 login providers.
type Provider interface {
	// Name returns the provider identifier, as used in the grant settings.
	Name() string

	// AuthCodeURL returns the URL to redirect users for authorization.
	AuthCodeURL(settings ethauth.ProviderSettings, callback, state string) string

	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, settings ethauth.ProviderSettings, code, callback string) (string, error)

	// Profile fetches the user's profile using the access token.
	Profile(ctx context.Context, accessToken string) (*Profile, error)
}

// Profile is the part of a provider account used to create local users
type Profile struct {
	ProviderUserID string
	Username       string
	Email          string
	EmailVerified  bool
}

// ProviderError captures normalized provider response details.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	scope := "provider"
	if e.Provider != "" && e.Operation != "" {
		scope = fmt.Sprintf("%s %s", e.Provider, e.Operation)
	} else if e.Provider != "" {
		scope = e.Provider
	}

	if e.Description != "" {
		return fmt.Sprintf("%s failed: %s", scope, e.Description)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s failed: %s", scope, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", scope, e.Err)
	}

	return fmt.Sprintf("%s failed", scope)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
