package ethauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"
	goerrors "github.com/goliatone/go-errors"
)

// EmailMessage is an outbound email
type EmailMessage struct {
	To      string
	From    string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

// EmailSenderFunc adapts a function to the EmailSender interface.
type EmailSenderFunc func(ctx context.Context, msg EmailMessage) error

// Send implements EmailSender.
func (f EmailSenderFunc) Send(ctx context.Context, msg EmailMessage) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

// LoggingEmailSender records outbound emails in the log instead of
// delivering them. Only the recipient and subject are logged: bodies carry
// reset codes and confirmation tokens. Meant for local development.
type LoggingEmailSender struct {
	logger Logger
}

// NewLoggingEmailSender returns a sender logging to logger
func NewLoggingEmailSender(logger Logger) *LoggingEmailSender {
	if logger == nil {
		logger = defLogger{}
	}
	return &LoggingEmailSender{logger: logger}
}

func (s *LoggingEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("email not delivered", "to", msg.To, "subject", msg.Subject)
	return nil
}

// RenderEmail renders tpl with vars and addresses it to `to`. Both the
// subject (Object) and the body are pongo2 templates.
func RenderEmail(tpl EmailTemplate, to string, vars map[string]any) (EmailMessage, error) {
	ctx := pongo2.Context{}
	for k, v := range vars {
		ctx[k] = v
	}

	body, err := renderString(tpl.Message, ctx)
	if err != nil {
		return EmailMessage{}, err
	}

	subject, err := renderString(tpl.Object, ctx)
	if err != nil {
		return EmailMessage{}, err
	}

	return EmailMessage{
		To:      to,
		From:    formatSender(tpl.FromName, tpl.FromEmail),
		ReplyTo: tpl.ResponseEmail,
		Subject: strings.TrimSpace(subject),
		Text:    body,
		HTML:    body,
	}, nil
}

func renderString(src string, ctx pongo2.Context) (string, error) {
	if src == "" {
		return "", nil
	}

	tpl, err := pongo2.FromString(src)
	if err != nil {
		return "", NewError(KindPolicyMisconfigured, IDInternal, "invalid email template").
			WithMetadata(map[string]any{"cause": err.Error()})
	}

	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render email template").
			WithTextCode(string(KindPolicyMisconfigured))
	}

	return out, nil
}

func formatSender(name, email string) string {
	switch {
	case name == "" && email == "":
		return ""
	case name == "":
		return email
	default:
		return fmt.Sprintf("%s <%s>", name, email)
	}
}

// emailUserVars is the USER variable exposed to templates
func emailUserVars(user *User) map[string]any {
	view := user.Sanitize()
	if view == nil {
		return map[string]any{}
	}
	return map[string]any{
		"id":              view.ID,
		"username":        view.Username,
		"email":           view.Email,
		"ethereumAddress": view.EthereumAddress,
		"provider":        view.Provider,
	}
}
