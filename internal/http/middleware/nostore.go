package middleware

import "github.com/gofiber/fiber/v2"

// NoStore marks responses as uncacheable. Mounted on routes that return
// document content or one-time links.
func NoStore() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderCacheControl, "no-store")
		c.Set("Pragma", "no-cache")
		return c.Next()
	}
}
