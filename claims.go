package ethauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenClaims is what the flows hand to the TokenIssuer after a successful
// authentication. Only the user id is required.
type TokenClaims struct {
	UserID   string
	Role     string
	Provider string
}

// ClaimsForUser builds the token claims for user
func ClaimsForUser(user *User) TokenClaims {
	claims := TokenClaims{
		UserID:   user.ID.String(),
		Provider: user.Provider,
	}
	if user.Role != nil {
		claims.Role = user.Role.Type
	}
	return claims
}

// JWTClaims is the signed payload
type JWTClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"id,omitempty"`
	UserRole string `json:"role,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the role type
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
