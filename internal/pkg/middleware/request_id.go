package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ManuelReschke/AskFox/internal/pkg/usercontext"
)

const HeaderRequestID = "X-Request-ID"

// RequestID propagates an inbound X-Request-ID or assigns a new UUID.
func RequestID(c *fiber.Ctx) error {
	id := c.Get(HeaderRequestID)
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	c.Locals(usercontext.KeyRequestID, id)
	c.Set(HeaderRequestID, id)
	return c.Next()
}
