package ethauth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// ClaimsLocalsKey is where the JWT middleware stores the validated claims
const ClaimsLocalsKey = "user"

var userCtxKey = &contextKey{"user"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok && raw != nil
}

// WithClaimsContext sets the claims in the given context
func WithClaimsContext(r context.Context, claims *JWTClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the claims from the standard context
func GetClaims(ctx context.Context) (*JWTClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*JWTClaims)
	return raw, ok && raw != nil
}

// GetFiberClaims extracts the claims stored by the JWT middleware
func GetFiberClaims(c *fiber.Ctx, key string) (*JWTClaims, bool) {
	if key == "" {
		key = ClaimsLocalsKey
	}
	raw, ok := c.Locals(key).(*JWTClaims)
	return raw, ok && raw != nil
}
