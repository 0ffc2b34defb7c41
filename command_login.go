package ethauth

import (
	"context"
	"strings"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
)

// LoginMessage authenticates through provider. For the local provider
// Identifier is an email or Ethereum address and Signature the signed
// challenge; other providers receive Query from their callback.
type LoginMessage struct {
	Provider   string
	Identifier string
	Signature  string
	Query      map[string]string
	Policy     *Policy
	OnResponse func(resp *AuthResponse)
}

func (m LoginMessage) Type() string { return "user.login" }

// LoginHandler runs the login flow: resolve the account, check the gates,
// verify the signature and rotate the nonce before a token is issued.
type LoginHandler struct {
	repo      RepositoryManager
	policies  PolicyStore
	resolver  *CredentialResolver
	verifier  *SignatureVerifier
	nonces    *NonceManager
	tokens    TokenIssuer
	connector ProviderConnector
	activity  ActivitySink
	metrics   *Metrics
	logger    Logger
}

// NewLoginHandler creates a handler with sane defaults.
func NewLoginHandler(repo RepositoryManager, policies PolicyStore, nonces *NonceManager, tokens TokenIssuer) *LoginHandler {
	return &LoginHandler{
		repo:     repo,
		policies: policies,
		resolver: NewCredentialResolver(repo.Users()),
		verifier: NewSignatureVerifier(),
		nonces:   nonces,
		tokens:   tokens,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithProviderConnector enables logins through third-party providers.
func (h *LoginHandler) WithProviderConnector(connector ProviderConnector) *LoginHandler {
	h.connector = connector
	return h
}

// WithActivitySink sets the sink used to emit login events.
func (h *LoginHandler) WithActivitySink(sink ActivitySink) *LoginHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithMetrics records login outcomes
func (h *LoginHandler) WithMetrics(metrics *Metrics) *LoginHandler {
	h.metrics = metrics
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *LoginHandler) WithLogger(logger Logger) *LoginHandler {
	if logger != nil {
		h.logger = logger
		h.resolver.WithLogger(logger)
		h.verifier.WithLogger(logger)
	}
	return h
}

func (h *LoginHandler) Execute(ctx context.Context, event LoginMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "login")
	default:
		return h.execute(ctx, event)
	}
}

func (h *LoginHandler) execute(ctx context.Context, event LoginMessage) (err error) {
	provider := strings.TrimSpace(event.Provider)
	if provider == "" {
		provider = ProviderLocal
	}

	ctx, span := startSpan(ctx, "ethauth.login", attribute.String("ethauth.provider", provider))
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var user *User
	defer func() {
		h.metrics.loginAttempt(provider, err)
		h.recordActivity(ctx, provider, event.Identifier, user, err)
	}()

	policy, err := resolvePolicy(ctx, h.policies, event.Policy)
	if err != nil {
		return err
	}

	if !policy.ProviderEnabled(provider) {
		return errProviderDisabled()
	}

	if provider == ProviderLocal {
		user, err = h.localLogin(ctx, event, policy)
	} else {
		user, err = h.providerLogin(ctx, provider, event.Query, policy)
	}
	if err != nil {
		return err
	}

	token, err := issueToken(h.tokens, user)
	if err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(&AuthResponse{JWT: token, User: user.Sanitize()})
	}

	return nil
}

func (h *LoginHandler) localLogin(ctx context.Context, event LoginMessage, policy *Policy) (*User, error) {
	req := LoginRequest{
		Identifier: strings.TrimSpace(event.Identifier),
		Password:   strings.TrimSpace(event.Signature),
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := h.resolver.Resolve(ctx, event.Identifier, ProviderLocal, policy)
	if err != nil {
		return nil, err
	}

	if _, err := h.verifier.Verify(user, event.Signature); err != nil {
		return nil, err
	}

	// the token is only issued once the rotation committed
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := h.nonces.Rotate(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, txError(err, "login transaction failed")
	}

	return user, nil
}

func (h *LoginHandler) providerLogin(ctx context.Context, provider string, query map[string]string, policy *Policy) (*User, error) {
	if h.connector == nil {
		return nil, errProviderDisabled()
	}

	user, err := h.connector.Connect(ctx, provider, query, policy)
	if err != nil {
		h.logger.Error("provider connect failed", "provider", provider, "error", err)
		if KindOf(err) == KindDownstreamFailure {
			return nil, WrapDownstream(err, IDProviderConnectFailed, "failed to connect with provider")
		}
		return nil, err
	}

	if user == nil {
		return nil, errAccountNotFound()
	}

	if err := CheckAccountGates(user, policy); err != nil {
		return nil, err
	}

	return user, nil
}

func (h *LoginHandler) recordActivity(ctx context.Context, provider, identifier string, user *User, err error) {
	event := ActivityEvent{
		EventType:  ActivityEventLoginSuccess,
		Provider:   provider,
		Identifier: identifier,
	}

	if provider != ProviderLocal {
		event.EventType = ActivityEventProviderLogin
	}

	if err != nil {
		event.EventType = ActivityEventLoginFailure
		event.ErrorKind = KindOf(err)
	}

	if user != nil {
		event.UserID = user.ID.String()
	}

	recordActivity(ctx, h.activity, h.logger, event)
}
