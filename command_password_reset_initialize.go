package ethauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/uptrace/bun"
)

// resetCodeBytes is the entropy of an emailed reset code
const resetCodeBytes = 64

// InitializePasswordResetMessage starts the recovery flow for Email
type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	Policy     *Policy
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// InitializePasswordResetResponse is always {ok: true} on success
type InitializePasswordResetResponse struct {
	OK bool `json:"ok"`
}

// InitializePasswordResetHandler emails a single use reset code. Only the
// sha256 hash of the code is stored.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	policies PolicyStore
	emails   EmailSender
	activity ActivitySink
	metrics  *Metrics
	logger   Logger
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, policies PolicyStore, emails EmailSender) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		policies: policies,
		emails:   emails,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithMetrics records reset request outcomes
func (h *InitializePasswordResetHandler) WithMetrics(metrics *Metrics) *InitializePasswordResetHandler {
	h.metrics = metrics
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return cancelled(ctx, "password reset initialization")
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) (err error) {
	ctx, span := startSpan(ctx, "ethauth.password_reset.request")
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	defer func() { h.metrics.passwordReset("request", err) }()

	if err := (ForgotPasswordRequest{Email: event.Email}).Validate(); err != nil {
		return err
	}

	policy, err := resolvePolicy(ctx, h.policies, event.Policy)
	if err != nil {
		return err
	}

	email := NormalizeEmail(event.Email)

	var user *User
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := h.repo.Users().FindOneTx(ctx, tx, UserQuery{Email: email})
		if err != nil {
			if IsNotFound(err) {
				return NewFieldError(KindNotFound, IDUserNotExist, "This email does not exist.", "email")
			}
			return err
		}
		user = found

		code, err := randomToken(resetCodeBytes)
		if err != nil {
			return WrapDownstream(err, IDInternal, "failed to generate reset code")
		}

		hash := HashResetCode(code)
		if _, err := h.repo.Users().UpdateTx(ctx, tx, user.ID, UserUpdate{ResetPasswordToken: &hash}); err != nil {
			return err
		}

		msg, err := RenderEmail(policy.Email.ResetPassword, user.Email, map[string]any{
			"URL":   policy.Advanced.EmailResetPassword,
			"USER":  emailUserVars(user),
			"TOKEN": code,
		})
		if err != nil {
			return err
		}

		// delivery failure rolls the stored hash back
		if err := h.emails.Send(ctx, msg); err != nil {
			return WrapDownstream(err, IDEmailDeliveryFailed, "failed to send reset password email")
		}

		return nil
	})
	if err != nil {
		return txError(err, "failed to initialize password reset")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetRequested,
		UserID:    user.ID.String(),
		Provider:  user.Provider,
	})

	if event.OnResponse != nil {
		event.OnResponse(&InitializePasswordResetResponse{OK: true})
	}

	return nil
}

// HashResetCode returns the stored form of a reset code
func HashResetCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
