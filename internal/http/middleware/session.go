package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/linkpulse/internal/http/util"
)

const (
	// SessionCookie carries the signed session token.
	SessionCookie = "session"
	// UserIDKey is the fiber Locals key holding the authenticated user id.
	UserIDKey = "user_id"
)

// RequireSession rejects requests without a valid session token, read from
// the session cookie or an Authorization bearer header.
func RequireSession(tokens *util.TokenSigner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies(SessionCookie)
		if token == "" {
			if auth := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			}
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authentication required",
			})
		}

		userID, err := tokens.Validate(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid session",
			})
		}

		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

// UserID returns the id stored by RequireSession.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(UserIDKey).(string)
	return id
}
