package ethauth

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// FinalizePasswordResetMessage completes the recovery flow
type FinalizePasswordResetMessage struct {
	Code                 string `json:"code" doc:"Reset code received by email"`
	Password             string `json:"password" example:"some_secret_word" doc:"Password"`
	PasswordConfirmation string `json:"passwordConfirmation" doc:"Password confirmation"`
	OnResponse           func(resp *AuthResponse)
}

func (m FinalizePasswordResetMessage) Type() string { return "user.password_reset.finalize" }

// FinalizePasswordResetHandler consumes a reset code, sets the new password
// and authenticates the user.
type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	tokens   TokenIssuer
	activity ActivitySink
	metrics  *Metrics
	logger   Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager, hasher PasswordHasher, tokens TokenIssuer) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithMetrics records reset completion outcomes
func (h *FinalizePasswordResetHandler) WithMetrics(metrics *Metrics) *FinalizePasswordResetHandler {
	h.metrics = metrics
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "password reset finalization")
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) (err error) {
	ctx, span := startSpan(ctx, "ethauth.password_reset.finalize")
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	defer func() { h.metrics.passwordReset("finalize", err) }()

	req := ResetPasswordRequest{
		Code:                 event.Code,
		Password:             event.Password,
		PasswordConfirmation: event.PasswordConfirmation,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	passwordHash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		return WrapDownstream(err, IDInternal, "failed to hash password")
	}

	var user *User
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		consumed, err := h.repo.Users().ConsumeResetTokenTx(ctx, tx, HashResetCode(event.Code), passwordHash)
		if err != nil {
			if IsNotFound(err) {
				return NewFieldError(KindNotFound, IDCodeProvide, "Incorrect code provided.", "code")
			}
			return err
		}

		// blocked accounts keep their code unconsumed and get no token
		if consumed.Blocked {
			return errBlocked()
		}

		user = consumed
		return nil
	})
	if err != nil {
		return txError(err, "failed to finalize password reset")
	}

	token, err := issueToken(h.tokens, user)
	if err != nil {
		return err
	}

	h.recordActivity(ctx, user)

	if event.OnResponse != nil {
		event.OnResponse(&AuthResponse{JWT: token, User: user.Sanitize()})
	}

	return nil
}

func (h *FinalizePasswordResetHandler) recordActivity(ctx context.Context, user *User) {
	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventPasswordResetSuccess,
		UserID:     user.ID.String(),
		Provider:   user.Provider,
		OccurredAt: time.Now(),
	})
}
