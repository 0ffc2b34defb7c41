package ethauth

import (
	"context"

	"github.com/uptrace/bun"
)

// RegisterUserMessage registers a local account
type RegisterUserMessage struct {
	EthereumAddress string `json:"ethereumAddress"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	UseHashid       bool   `json:"-"`
	Policy          *Policy
	OnResponse      func(resp *AuthResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserHandler creates local accounts through the RegistrationGuard.
type RegisterUserHandler struct {
	repo      RepositoryManager
	policies  PolicyStore
	guard     *RegistrationGuard
	tokens    TokenIssuer
	mailer    *ConfirmationMailer
	useHashid bool
	activity  ActivitySink
	metrics   *Metrics
	logger    Logger
}

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(repo RepositoryManager, policies PolicyStore, nonces *NonceManager, tokens TokenIssuer, mailer *ConfirmationMailer) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		policies: policies,
		guard:    NewRegistrationGuard(repo.Users(), repo.Roles(), nonces),
		tokens:   tokens,
		mailer:   mailer,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithHashid derives user ids from the Ethereum address
func (h *RegisterUserHandler) WithHashid(enabled bool) *RegisterUserHandler {
	h.useHashid = enabled
	return h
}

// WithActivitySink sets the sink used to emit registration events.
func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithMetrics records registration outcomes
func (h *RegisterUserHandler) WithMetrics(metrics *Metrics) *RegisterUserHandler {
	h.metrics = metrics
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
		h.guard.WithLogger(logger)
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "user registration")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (err error) {
	ctx, span := startSpan(ctx, "ethauth.register")
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	defer func() { h.metrics.registration(err) }()

	policy, err := resolvePolicy(ctx, h.policies, event.Policy)
	if err != nil {
		return err
	}

	if !policy.Advanced.AllowRegister {
		return errRegisterDisabled()
	}

	if err := (RegisterRequest{
		EthereumAddress: event.EthereumAddress,
		Username:        event.Username,
		Email:           event.Email,
	}).Validate(); err != nil {
		return err
	}

	event.UseHashid = event.UseHashid || h.useHashid

	var user *User
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := h.guard.Register(ctx, tx, event, policy)
		if err != nil {
			return err
		}
		user = created

		// a failed confirmation email rolls the account back. Accounts
		// without email stay unconfirmed until an email is attached.
		if policy.Advanced.EmailConfirmation && user.Email != "" {
			if h.mailer == nil {
				return NewError(KindPolicyMisconfigured, IDEmailDeliveryFailed, "email confirmation requires an email sender")
			}
			return h.mailer.SendTx(ctx, tx, user, policy)
		}

		return nil
	})
	if err != nil {
		h.logger.Error("register user failed", "error", err)
		return txError(err, "user registration transaction failed")
	}

	resp := &AuthResponse{User: user.Sanitize()}
	if !policy.Advanced.EmailConfirmation {
		if resp.JWT, err = issueToken(h.tokens, user); err != nil {
			return err
		}
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventRegistration,
		UserID:     user.ID.String(),
		Provider:   ProviderLocal,
		Identifier: user.EthereumAddress,
		Metadata:   map[string]any{"confirmed": user.Confirmed},
	})

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
