package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	// OwnerIDHeader carries the caller identity established by the upstream auth layer.
	OwnerIDHeader = "X-Owner-ID"
	// OwnerLocalKey is the locals key holding the owner id.
	OwnerLocalKey = "owner_id"
)

// Owner requires an authenticated caller identity. The header is trusted as-is;
// this service sits behind the component that authenticates users.
func Owner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner := strings.TrimSpace(c.Get(OwnerIDHeader))
		if owner == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "owner required")
		}
		c.Locals(OwnerLocalKey, owner)
		return c.Next()
	}
}

// OwnerFromCtx returns the owner id stored by Owner, or "".
func OwnerFromCtx(c *fiber.Ctx) string {
	owner, _ := c.Locals(OwnerLocalKey).(string)
	return owner
}
