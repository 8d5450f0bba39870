package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CORS answers preflight requests and sets CORS headers. Session cookies
// need a concrete origin, so when allowedOrigins is non-empty a matching
// request origin is echoed back with credentials allowed; otherwise any
// origin is accepted without credentials.
func CORS(allowedOrigins ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		if len(allowed) == 0 {
			c.Set("Access-Control-Allow-Origin", "*")
		} else if origin := c.Get(fiber.HeaderOrigin); origin != "" {
			if _, ok := allowed[origin]; ok {
				c.Set("Access-Control-Allow-Origin", origin)
				c.Set("Access-Control-Allow-Credentials", "true")
				c.Vary(fiber.HeaderOrigin)
			}
		}
		c.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Set("Access-Control-Expose-Headers", "Content-Length, Content-Type, X-Request-ID")
		c.Set("Access-Control-Max-Age", "86400")

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}
