package ethauth_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-ethauth"
)

func TestRenderEmail(t *testing.T) {
	tpl := ethauth.EmailTemplate{
		FromName:      "Support",
		FromEmail:     "support@example.com",
		ResponseEmail: "help@example.com",
		Object:        "Hello {{ USER.username }}",
		Message:       "<p>{{ URL }}?code={{ TOKEN }}</p>",
	}

	msg, err := ethauth.RenderEmail(tpl, "alice@example.com", map[string]any{
		"URL":   "https://app.example.com/reset",
		"TOKEN": "abc123",
		"USER":  map[string]any{"username": "alice"},
	})
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Support <support@example.com>", msg.From)
	assert.Equal(t, "help@example.com", msg.ReplyTo)
	assert.Equal(t, "Hello alice", msg.Subject)
	assert.Equal(t, "<p>https://app.example.com/reset?code=abc123</p>", msg.Text)
	assert.Equal(t, msg.Text, msg.HTML)
}

func TestRenderEmail_Sender(t *testing.T) {
	msg, err := ethauth.RenderEmail(ethauth.EmailTemplate{FromEmail: "a@example.com"}, "b@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", msg.From)

	msg, err = ethauth.RenderEmail(ethauth.EmailTemplate{}, "b@example.com", nil)
	require.NoError(t, err)
	assert.Empty(t, msg.From)
	assert.Empty(t, msg.Text)
}

func TestRenderEmail_InvalidTemplate(t *testing.T) {
	_, err := ethauth.RenderEmail(ethauth.EmailTemplate{Message: "{% if %}"}, "b@example.com", nil)
	requireKind(t, err, ethauth.KindPolicyMisconfigured, "")
}

func TestDefaultTemplatesRender(t *testing.T) {
	policy := ethauth.DefaultPolicy()

	msg, err := ethauth.RenderEmail(policy.Email.EmailConfirmation, "a@example.com", map[string]any{
		"URL":  "https://auth.example.com/auth/email-confirmation",
		"CODE": "feedbeef",
	})
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "https://auth.example.com/auth/email-confirmation?confirmation=feedbeef")
}

func TestLoggingEmailSender(t *testing.T) {
	var buf strings.Builder
	sender := ethauth.NewLoggingEmailSender(ethauth.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	err := sender.Send(context.Background(), ethauth.EmailMessage{
		To:      "a@example.com",
		Subject: "Hi",
		Text:    "https://auth.example.com/reset-password?code=5ec12e7",
		HTML:    `<a href="https://auth.example.com/reset-password?code=5ec12e7">reset</a>`,
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "to=a@example.com")
	assert.Contains(t, buf.String(), "subject=Hi")
	assert.NotContains(t, buf.String(), "5ec12e7")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, sender.Send(ctx, ethauth.EmailMessage{}))
}

func TestEmailSenderFunc(t *testing.T) {
	var got ethauth.EmailMessage
	sender := ethauth.EmailSenderFunc(func(_ context.Context, msg ethauth.EmailMessage) error {
		got = msg
		return nil
	})

	require.NoError(t, sender.Send(context.Background(), ethauth.EmailMessage{To: "x@example.com"}))
	assert.Equal(t, "x@example.com", got.To)

	var nilSender ethauth.EmailSenderFunc
	assert.NoError(t, nilSender.Send(context.Background(), ethauth.EmailMessage{}))
}
