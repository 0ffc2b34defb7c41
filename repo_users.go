package ethauth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// TextCodeDuplicateRecord tags storage unique violations
const TextCodeDuplicateRecord = "DUPLICATE_RECORD"

// Users is the bun backed UserStore
type Users struct {
	db *bun.DB
}

var _ UserStore = (*Users)(nil)

// NewUsersRepository returns a user store over db
func NewUsersRepository(db *bun.DB) *Users {
	return &Users{db: db}
}

func (a *Users) FindOne(ctx context.Context, query UserQuery) (*User, error) {
	return a.FindOneTx(ctx, a.db, query)
}

func (a *Users) FindOneTx(ctx context.Context, tx bun.IDB, query UserQuery) (*User, error) {
	if query.IsEmpty() {
		return nil, goerrors.New("user query requires at least one predicate", goerrors.CategoryBadInput)
	}

	record := &User{}
	q := tx.NewSelect().
		Model(record).
		Relation("Role")

	if query.ID != uuid.Nil {
		q = q.Where("?TableAlias.id = ?", query.ID)
	}
	if query.EthereumAddress != "" {
		q = q.Where("?TableAlias.ethereum_address = ?", NormalizeAddress(query.EthereumAddress))
	}
	if query.Email != "" {
		q = q.Where("?TableAlias.email = ?", NormalizeEmail(query.Email))
	}
	if query.Username != "" {
		q = q.Where("?TableAlias.username = ?", query.Username)
	}
	if query.Provider != "" {
		q = q.Where("?TableAlias.provider = ?", query.Provider)
	}
	if query.ResetPasswordToken != "" {
		q = q.Where("?TableAlias.reset_password_token = ?", query.ResetPasswordToken)
	}
	if query.ConfirmationToken != "" {
		q = q.Where("?TableAlias.confirmation_token = ?", query.ConfirmationToken)
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, newRecordNotFound(query)
		}
		return nil, err
	}

	if record.Role != nil && record.Role.ID == uuid.Nil {
		record.Role = nil
	}

	return record, nil
}

func (a *Users) CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)

	if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "user already exists").
				WithTextCode(TextCodeDuplicateRecord).
				WithCode(goerrors.CodeConflict)
		}
		return nil, err
	}

	return user, nil
}

func (a *Users) UpdateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, update UserUpdate) (*User, error) {
	q := tx.NewUpdate().
		Model((*User)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)

	if update.Nonce != nil {
		q = q.Set("nonce = ?", *update.Nonce)
	}
	if update.Confirmed != nil {
		q = q.Set("confirmed = ?", *update.Confirmed)
	}
	if update.Blocked != nil {
		q = q.Set("blocked = ?", *update.Blocked)
	}
	if update.PasswordHash != nil {
		q = q.Set("password_hash = ?", *update.PasswordHash)
	}
	if update.ClearResetToken {
		q = q.Set("reset_password_token = NULL")
	} else if update.ResetPasswordToken != nil {
		q = q.Set("reset_password_token = ?", *update.ResetPasswordToken)
	}
	if update.ClearConfirmationToken {
		q = q.Set("confirmation_token = NULL")
	} else if update.ConfirmationToken != nil {
		q = q.Set("confirmation_token = ?", *update.ConfirmationToken)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, newRecordNotFound(UserQuery{ID: id})
	}

	return a.FindOneTx(ctx, tx, UserQuery{ID: id})
}

func (a *Users) RotateNonceTx(ctx context.Context, tx bun.IDB, id uuid.UUID, prev, next int64) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("nonce = ?", next).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("nonce = ?", prev).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (a *Users) ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, tokenHash, passwordHash string) (*User, error) {
	user, err := a.FindOneTx(ctx, tx, UserQuery{ResetPasswordToken: tokenHash})
	if err != nil {
		return nil, err
	}

	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("reset_password_token = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", user.ID).
		Where("reset_password_token = ?", tokenHash).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		// consumed by a concurrent request
		return nil, newRecordNotFound(UserQuery{ResetPasswordToken: tokenHash})
	}

	user.ResetPasswordToken = nil
	user.PasswordHash = passwordHash

	return user, nil
}

// IsDuplicateRecord reports whether err is a storage unique violation
func IsDuplicateRecord(err error) bool {
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.TextCode == TextCodeDuplicateRecord
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.Provider == "" {
		record.Provider = ProviderLocal
	}

	now := time.Now().UTC()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}

	record.EthereumAddress = NormalizeAddress(record.EthereumAddress)
	record.Email = NormalizeEmail(record.Email)
}

func newRecordNotFound(query UserQuery) error {
	meta := map[string]any{}
	if query.ID != uuid.Nil {
		meta["id"] = query.ID.String()
	}
	if query.EthereumAddress != "" {
		meta["ethereum_address"] = query.EthereumAddress
	}
	if query.Email != "" {
		meta["email"] = query.Email
	}
	if query.Username != "" {
		meta["username"] = query.Username
	}

	return goerrors.New("record not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(meta)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}

	// sqlite drivers only expose the message
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
