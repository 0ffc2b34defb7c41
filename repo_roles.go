package ethauth

import (
	"context"
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles is the bun backed RoleStore
type Roles struct {
	db *bun.DB
}

var _ RoleStore = (*Roles)(nil)

// NewRolesRepository returns a role store over db
func NewRolesRepository(db *bun.DB) *Roles {
	return &Roles{db: db}
}

// FindByType returns the role with the given type key
func (r *Roles) FindByType(ctx context.Context, roleType string) (*Role, error) {
	return r.FindByTypeTx(ctx, r.db, roleType)
}

func (r *Roles) FindByTypeTx(ctx context.Context, tx bun.IDB, roleType string) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.type = ?", roleType).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerrors.New("role not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithMetadata(map[string]any{"type": roleType})
		}
		return nil, err
	}
	return record, nil
}

// EnsureTx creates role unless a role with the same type exists
func (r *Roles) EnsureTx(ctx context.Context, tx bun.IDB, role *Role) (*Role, error) {
	existing, err := r.FindByTypeTx(ctx, tx, role.Type)
	if err == nil {
		return existing, nil
	}
	if !goerrors.IsNotFound(err) {
		return nil, err
	}

	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}

	if _, err := tx.NewInsert().Model(role).Exec(ctx); err != nil {
		return nil, err
	}

	return role, nil
}
