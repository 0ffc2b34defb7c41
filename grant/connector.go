package grant

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ethauth"
)

// NonceIssuer draws the nonce of newly created accounts
type NonceIssuer interface {
	Issue() (int64, error)
}

// Connector implements ethauth.ProviderConnector over a set of providers.
// Provider accounts are matched by email and provider; unknown ones are
// created confirmed with the default role.
type Connector struct {
	repo      ethauth.RepositoryManager
	nonces    NonceIssuer
	providers map[string]Provider
	logger    ethauth.Logger
}

var _ ethauth.ProviderConnector = (*Connector)(nil)

// NewConnector returns a connector serving providers
func NewConnector(repo ethauth.RepositoryManager, nonces NonceIssuer, providers ...Provider) *Connector {
	c := &Connector{
		repo:      repo,
		nonces:    nonces,
		providers: make(map[string]Provider, len(providers)),
		logger:    ethauth.NewSlogLogger(nil),
	}
	for _, p := range providers {
		c.Register(p)
	}
	return c
}

// Register adds or replaces a provider
func (c *Connector) Register(p Provider) *Connector {
	if p != nil {
		c.providers[p.Name()] = p
	}
	return c
}

// WithLogger sets the logger
func (c *Connector) WithLogger(logger ethauth.Logger) *Connector {
	if logger != nil {
		c.logger = logger
	}
	return c
}

func (c *Connector) RedirectURL(ctx context.Context, provider string, settings ethauth.ProviderSettings, callback string) (string, error) {
	p, err := c.provider(provider)
	if err != nil {
		return "", err
	}

	state, err := randomState()
	if err != nil {
		return "", err
	}

	return p.AuthCodeURL(settings, redirectURI(settings, callback), state), nil
}

func (c *Connector) Connect(ctx context.Context, provider string, query map[string]string, policy *ethauth.Policy) (*ethauth.User, error) {
	p, err := c.provider(provider)
	if err != nil {
		return nil, err
	}

	settings, _ := policy.Provider(provider)

	accessToken := strings.TrimSpace(query["access_token"])
	if accessToken == "" && query["code"] != "" {
		accessToken, err = p.Exchange(ctx, settings, query["code"], redirectURI(settings, settings.Callback))
		if err != nil {
			return nil, ethauth.WrapDownstream(err, ethauth.IDProviderConnectFailed, "failed to exchange authorization code")
		}
	}

	if accessToken == "" {
		return nil, ethauth.NewFieldError(ethauth.KindMissingField, ethauth.IDParamsProvide, "No access_token.", "access_token")
	}

	profile, err := p.Profile(ctx, accessToken)
	if err != nil {
		return nil, ethauth.WrapDownstream(err, ethauth.IDProviderConnectFailed, "failed to fetch provider profile")
	}

	email := ethauth.NormalizeEmail(profile.Email)
	if email == "" {
		return nil, ethauth.NewFieldError(ethauth.KindMissingField, ethauth.IDMissingEmail, "Email was not available.", "email")
	}

	// accounts are matched by email, so only an address the provider
	// verified may select one
	if !profile.EmailVerified {
		c.logger.Warn("provider email not verified", "provider", provider)
		return nil, ethauth.NewFieldError(ethauth.KindAccountNotConfirmed, ethauth.IDEmailNotVerified,
			"Your provider email is not verified.", "email")
	}

	var user *ethauth.User
	err = c.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = c.findOrCreate(ctx, tx, provider, email, profile, policy)
		return err
	})
	if err != nil {
		c.logger.Error("provider connect failed", "provider", provider, "error", err)
		return nil, err
	}

	return user, nil
}

func (c *Connector) findOrCreate(ctx context.Context, tx bun.IDB, provider, email string, profile *Profile, policy *ethauth.Policy) (*ethauth.User, error) {
	users := c.repo.Users()

	existing, err := users.FindOneTx(ctx, tx, ethauth.UserQuery{Email: email, Provider: provider})
	if err == nil {
		return existing, nil
	}
	if !ethauth.IsNotFound(err) {
		return nil, ethauth.WrapDownstream(err, ethauth.IDInternal, "failed to look up provider account")
	}

	if !policy.Advanced.AllowRegister {
		return nil, ethauth.NewError(ethauth.KindProviderDisabled, ethauth.IDRegisterDisabled,
			"Register action is currently disabled.")
	}

	if policy.Advanced.UniqueEmail {
		taken, err := users.FindOneTx(ctx, tx, ethauth.UserQuery{Email: email})
		if err != nil && !ethauth.IsNotFound(err) {
			return nil, ethauth.WrapDownstream(err, ethauth.IDInternal, "failed to check existing accounts")
		}
		if taken != nil {
			return nil, ethauth.NewFieldError(ethauth.KindConflict, ethauth.IDEmailTaken, "Email is already taken.", "email")
		}
	}

	role, err := c.repo.Roles().FindByTypeTx(ctx, tx, policy.Advanced.DefaultRole)
	if err != nil || role == nil {
		if err == nil || ethauth.IsNotFound(err) {
			return nil, ethauth.NewError(ethauth.KindPolicyMisconfigured, ethauth.IDRoleNotFound,
				"Impossible to find the default role.")
		}
		return nil, ethauth.WrapDownstream(err, ethauth.IDInternal, "failed to look up default role")
	}

	nonce, err := c.nonces.Issue()
	if err != nil {
		return nil, err
	}

	username := strings.TrimSpace(profile.Username)
	if username == "" {
		username = email
	}

	created, err := users.CreateTx(ctx, tx, &ethauth.User{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		Provider:  provider,
		Confirmed: true,
		Nonce:     nonce,
		RoleID:    role.ID,
	})
	if err != nil {
		if ethauth.IsDuplicateRecord(err) {
			return nil, ethauth.NewFieldError(ethauth.KindConflict, ethauth.IDUsernameTaken,
				"Username is already taken.", "username")
		}
		return nil, ethauth.WrapDownstream(err, ethauth.IDInternal, "failed to create provider account")
	}

	created.Role = role
	return created, nil
}

func (c *Connector) provider(name string) (Provider, error) {
	p, ok := c.providers[name]
	if !ok {
		return nil, ethauth.NewError(ethauth.KindProviderDisabled, ethauth.IDProviderDisabled, "This provider is disabled.")
	}
	return p, nil
}

// redirectURI is where the provider sends the user back; it defaults to
// the callback when the grant settings do not name one.
func redirectURI(settings ethauth.ProviderSettings, callback string) string {
	if settings.RedirectURI != "" {
		return settings.RedirectURI
	}
	return callback
}
