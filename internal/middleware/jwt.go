package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ridesync/ridesync/internal/auth"
)

const (
	// IdentityIDKey is the Locals key holding the authenticated identity id.
	IdentityIDKey = "identity_id"
	// RoleKey is the Locals key holding the role claimed by the token.
	RoleKey = "role"
)

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(token string) (auth.Claims, error)
}

// JWTAuth returns a middleware that validates bearer tokens and exposes the
// subject to downstream handlers.
func JWTAuth(tokens TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals(IdentityIDKey, claims.Subject)
		c.Locals(RoleKey, claims.Role)
		return c.Next()
	}
}
