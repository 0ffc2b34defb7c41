package ethauth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// UserQuery is the predicate accepted by UserStore.FindOne. Empty fields
// are ignored; at least one field must be set.
type UserQuery struct {
	ID                 uuid.UUID
	EthereumAddress    string
	Email              string
	Username           string
	Provider           string
	ResetPasswordToken string
	ConfirmationToken  string
}

// IsEmpty reports whether the query carries no predicate at all.
func (q UserQuery) IsEmpty() bool {
	return q.ID == uuid.Nil &&
		q.EthereumAddress == "" &&
		q.Email == "" &&
		q.Username == "" &&
		q.ResetPasswordToken == "" &&
		q.ConfirmationToken == ""
}

// UserUpdate lists the mutable fields. Nil pointers are left untouched,
// ClearResetToken and ClearConfirmationToken set the column to NULL.
type UserUpdate struct {
	Nonce                  *int64
	Confirmed              *bool
	Blocked                *bool
	PasswordHash           *string
	ResetPasswordToken     *string
	ConfirmationToken      *string
	ClearResetToken        bool
	ClearConfirmationToken bool
}

// UserStore persists user records
type UserStore interface {
	FindOne(ctx context.Context, query UserQuery) (*User, error)
	FindOneTx(ctx context.Context, tx bun.IDB, query UserQuery) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	UpdateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, update UserUpdate) (*User, error)
	// RotateNonceTx sets nonce to next only if it still equals prev.
	RotateNonceTx(ctx context.Context, tx bun.IDB, id uuid.UUID, prev, next int64) (bool, error)
	// ConsumeResetTokenTx sets the password hash and clears the reset token
	// in a single conditional update keyed on the token hash.
	ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, tokenHash, passwordHash string) (*User, error)
}

// RoleStore resolves roles
type RoleStore interface {
	FindByType(ctx context.Context, roleType string) (*Role, error)
	FindByTypeTx(ctx context.Context, tx bun.IDB, roleType string) (*Role, error)
}

// TransactionManager runs a function inside a database transaction
type TransactionManager interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
}

// TokenIssuer mints session tokens after a successful authentication
type TokenIssuer interface {
	Issue(claims TokenClaims) (string, error)
}

// EmailSender delivers outbound email
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// PolicyStore returns the current policy. Callers take one snapshot per
// request and pass it down.
type PolicyStore interface {
	Snapshot(ctx context.Context) (*Policy, error)
}

// PasswordHasher hashes passwords for the recovery flow
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// ProviderConnector delegates authentication to a third-party provider.
type ProviderConnector interface {
	// Connect exchanges the provider callback query for a local user,
	// creating the account when policy allows it.
	Connect(ctx context.Context, provider string, query map[string]string, policy *Policy) (*User, error)
	// RedirectURL returns the provider authorization URL.
	RedirectURL(ctx context.Context, provider string, settings ProviderSettings, callback string) (string, error)
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] ETHAUTH " + newline(formatLog(msg, args...)))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] ETHAUTH " + newline(formatLog(msg, args...)))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] ETHAUTH " + newline(formatLog(msg, args...)))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] ETHAUTH " + newline(formatLog(msg, args...)))
}

// formatLog renders a message followed by its key/value pairs
func formatLog(msg string, args ...any) string {
	if len(args) == 0 {
		return msg
	}

	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return b.String()
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
