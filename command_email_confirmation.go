package ethauth

import (
	"context"
	"strings"

	"github.com/uptrace/bun"
)

// ConfirmationMailer sends the account confirmation email
type ConfirmationMailer struct {
	users  UserStore
	emails EmailSender
	url    string
}

// NewConfirmationMailer returns a mailer linking to confirmationURL, the
// public address of the email confirmation endpoint.
func NewConfirmationMailer(users UserStore, emails EmailSender, confirmationURL string) *ConfirmationMailer {
	return &ConfirmationMailer{
		users:  users,
		emails: emails,
		url:    confirmationURL,
	}
}

// SendTx makes sure user has a confirmation token and emails it. The
// token is stored through tx so a failed delivery can be rolled back.
func (m *ConfirmationMailer) SendTx(ctx context.Context, tx bun.IDB, user *User, policy *Policy) error {
	if user.Email == "" {
		return NewFieldError(KindMissingField, IDMissingEmail, "missing.email", "email")
	}

	if user.ConfirmationToken == nil || *user.ConfirmationToken == "" {
		token, err := randomToken(20)
		if err != nil {
			return WrapDownstream(err, IDInternal, "failed to generate confirmation token")
		}
		if _, err := m.users.UpdateTx(ctx, tx, user.ID, UserUpdate{ConfirmationToken: &token}); err != nil {
			return WrapDownstream(err, IDInternal, "failed to store confirmation token")
		}
		user.ConfirmationToken = &token
	}

	msg, err := RenderEmail(policy.Email.EmailConfirmation, user.Email, map[string]any{
		"URL":  m.url,
		"USER": emailUserVars(user),
		"CODE": *user.ConfirmationToken,
	})
	if err != nil {
		return err
	}

	if err := m.emails.Send(ctx, msg); err != nil {
		return WrapDownstream(err, IDEmailDeliveryFailed, "failed to send confirmation email")
	}

	return nil
}

// EmailConfirmationMessage confirms the account owning Token
type EmailConfirmationMessage struct {
	Token      string
	ReturnUser bool
	Policy     *Policy
	OnResponse func(resp *EmailConfirmationResponse)
}

func (m EmailConfirmationMessage) Type() string { return "user.email_confirmation" }

// EmailConfirmationResponse carries either the authenticated user, when
// ReturnUser was set, or the redirect target.
type EmailConfirmationResponse struct {
	Redirect string
	Auth     *AuthResponse
}

// EmailConfirmationHandler marks accounts as confirmed
type EmailConfirmationHandler struct {
	repo     RepositoryManager
	policies PolicyStore
	tokens   TokenIssuer
	activity ActivitySink
	metrics  *Metrics
	logger   Logger
}

// NewEmailConfirmationHandler creates a handler with sane defaults.
func NewEmailConfirmationHandler(repo RepositoryManager, policies PolicyStore, tokens TokenIssuer) *EmailConfirmationHandler {
	return &EmailConfirmationHandler{
		repo:     repo,
		policies: policies,
		tokens:   tokens,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit confirmation events.
func (h *EmailConfirmationHandler) WithActivitySink(sink ActivitySink) *EmailConfirmationHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithMetrics records confirmation outcomes
func (h *EmailConfirmationHandler) WithMetrics(metrics *Metrics) *EmailConfirmationHandler {
	h.metrics = metrics
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *EmailConfirmationHandler) WithLogger(logger Logger) *EmailConfirmationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *EmailConfirmationHandler) Execute(ctx context.Context, event EmailConfirmationMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "email confirmation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *EmailConfirmationHandler) execute(ctx context.Context, event EmailConfirmationMessage) (err error) {
	ctx, span := startSpan(ctx, "ethauth.email_confirmation")
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	defer func() { h.metrics.emailConfirmation("confirm", err) }()

	token := strings.TrimSpace(event.Token)
	if token == "" {
		return NewFieldError(KindMissingField, IDTokenInvalid, "token.invalid", "confirmation")
	}

	policy, err := resolvePolicy(ctx, h.policies, event.Policy)
	if err != nil {
		return err
	}

	var user *User
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := h.repo.Users().FindOneTx(ctx, tx, UserQuery{ConfirmationToken: token})
		if err != nil {
			if IsNotFound(err) {
				return NewError(KindNotFound, IDTokenInvalid, "token.invalid")
			}
			return err
		}

		confirmed := true
		user, err = h.repo.Users().UpdateTx(ctx, tx, found.ID, UserUpdate{
			Confirmed:              &confirmed,
			ClearConfirmationToken: true,
		})
		return err
	})
	if err != nil {
		return txError(err, "email confirmation transaction failed")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventEmailConfirmed,
		UserID:    user.ID.String(),
		Provider:  user.Provider,
	})

	resp := &EmailConfirmationResponse{}
	if event.ReturnUser {
		jwt, err := issueToken(h.tokens, user)
		if err != nil {
			return err
		}
		resp.Auth = &AuthResponse{JWT: jwt, User: user.Sanitize()}
	} else {
		resp.Redirect = policy.Advanced.EmailConfirmationRedirection
		if resp.Redirect == "" {
			resp.Redirect = "/"
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// SendEmailConfirmationMessage asks for a new confirmation email
type SendEmailConfirmationMessage struct {
	Email      string
	Policy     *Policy
	OnResponse func(resp *SendEmailConfirmationResponse)
}

func (m SendEmailConfirmationMessage) Type() string { return "user.send_email_confirmation" }

// SendEmailConfirmationResponse reports the address the email went to
type SendEmailConfirmationResponse struct {
	Email string `json:"email"`
	Sent  bool   `json:"sent"`
}

// SendEmailConfirmationHandler resends the confirmation email
type SendEmailConfirmationHandler struct {
	repo     RepositoryManager
	policies PolicyStore
	mailer   *ConfirmationMailer
	metrics  *Metrics
	logger   Logger
}

// NewSendEmailConfirmationHandler creates a handler with sane defaults.
func NewSendEmailConfirmationHandler(repo RepositoryManager, policies PolicyStore, mailer *ConfirmationMailer) *SendEmailConfirmationHandler {
	return &SendEmailConfirmationHandler{
		repo:     repo,
		policies: policies,
		mailer:   mailer,
		logger:   defLogger{},
	}
}

// WithMetrics records resend outcomes
func (h *SendEmailConfirmationHandler) WithMetrics(metrics *Metrics) *SendEmailConfirmationHandler {
	h.metrics = metrics
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *SendEmailConfirmationHandler) WithLogger(logger Logger) *SendEmailConfirmationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *SendEmailConfirmationHandler) Execute(ctx context.Context, event SendEmailConfirmationMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "send email confirmation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *SendEmailConfirmationHandler) execute(ctx context.Context, event SendEmailConfirmationMessage) (err error) {
	ctx, span := startSpan(ctx, "ethauth.send_email_confirmation")
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	defer func() { h.metrics.emailConfirmation("send", err) }()

	if err := (SendEmailConfirmationRequest{Email: event.Email}).Validate(); err != nil {
		return err
	}

	policy, err := resolvePolicy(ctx, h.policies, event.Policy)
	if err != nil {
		return err
	}

	email := NormalizeEmail(event.Email)

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().FindOneTx(ctx, tx, UserQuery{Email: email})
		if err != nil {
			if IsNotFound(err) {
				return NewError(KindNotFound, IDUserNotExist, "This email does not exist.")
			}
			return err
		}

		if user.Confirmed {
			return NewError(KindConflict, IDAlreadyConfirmed, "already.confirmed")
		}

		if user.Blocked {
			return NewError(KindAccountBlocked, IDBlockedUser, "blocked.user")
		}

		return h.mailer.SendTx(ctx, tx, user, policy)
	})
	if err != nil {
		return txError(err, "send email confirmation transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(&SendEmailConfirmationResponse{Email: email, Sent: true})
	}

	return nil
}
