package ethauth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProviderLocal is the provider tag for accounts authenticated by
// Ethereum signature.
const ProviderLocal = "local"

// User is the user model
type User struct {
	bun.BaseModel      `bun:"table:users,alias:usr"`
	ID                 uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	EthereumAddress    string     `bun:"ethereum_address,nullzero,unique" json:"ethereumAddress"`
	Username           string     `bun:"username,notnull,unique" json:"username"`
	Email              string     `bun:"email,nullzero" json:"email,omitempty"`
	Provider           string     `bun:"provider,notnull" json:"provider"`
	Nonce              int64      `bun:"nonce,notnull" json:"nonce"`
	Confirmed          bool       `bun:"confirmed,notnull" json:"confirmed"`
	Blocked            bool       `bun:"blocked,notnull" json:"blocked"`
	RoleID             uuid.UUID  `bun:"role_id,nullzero,type:uuid" json:"role_id,omitempty"`
	Role               *Role      `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
	PasswordHash       string     `bun:"password_hash,nullzero" json:"-"`
	ResetPasswordToken *string    `bun:"reset_password_token,nullzero" json:"-"`
	ConfirmationToken  *string    `bun:"confirmation_token,nullzero" json:"-"`
	CreatedAt          *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Role is the role model. Type is the stable key policies refer to.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rl"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Name          string    `bun:"name,notnull" json:"name"`
	Type          string    `bun:"type,notnull,unique" json:"type"`
	Description   string    `bun:"description" json:"description,omitempty"`
}

// Default role types seeded by the migrations.
const (
	RoleTypeAuthenticated = "authenticated"
	RoleTypePublic        = "public"
)

// UserView is the sanitized user representation returned to clients.
type UserView struct {
	ID              string     `json:"id"`
	EthereumAddress string     `json:"ethereumAddress"`
	Username        string     `json:"username"`
	Email           string     `json:"email,omitempty"`
	Provider        string     `json:"provider"`
	Nonce           int64      `json:"nonce"`
	Confirmed       bool       `json:"confirmed"`
	Blocked         bool       `json:"blocked"`
	Role            *RoleView  `json:"role,omitempty"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// RoleView is the sanitized role representation
type RoleView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Sanitize strips private fields (password hash, reset and confirmation
// tokens) from the user.
func (u *User) Sanitize() *UserView {
	if u == nil {
		return nil
	}

	view := &UserView{
		ID:              u.ID.String(),
		EthereumAddress: u.EthereumAddress,
		Username:        u.Username,
		Email:           u.Email,
		Provider:        u.Provider,
		Nonce:           u.Nonce,
		Confirmed:       u.Confirmed,
		Blocked:         u.Blocked,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}

	if u.Role != nil {
		view.Role = &RoleView{
			ID:   u.Role.ID.String(),
			Name: u.Role.Name,
			Type: u.Role.Type,
		}
	}

	return view
}

// HasResetPasswordToken reports whether a recovery code is pending
func (u *User) HasResetPasswordToken() bool {
	return u != nil && u.ResetPasswordToken != nil && *u.ResetPasswordToken != ""
}
